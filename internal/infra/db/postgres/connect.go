package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the reports and departments tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS reports (
  id                  VARCHAR(64)  PRIMARY KEY,
  owner_id            VARCHAR(64)  NOT NULL,
  title               VARCHAR(255) NOT NULL,
  category            VARCHAR(64)  NOT NULL,
  status              VARCHAR(32)  NOT NULL,
  priority            VARCHAR(16)  NOT NULL,
  assigned_department VARCHAR(128) NOT NULL DEFAULT '',
  photo_url           TEXT         NOT NULL DEFAULT '',
  photo_public_id     VARCHAR(255) NOT NULL DEFAULT '',
  s3_key              VARCHAR(512) NOT NULL DEFAULT '',
  s3_bucket           VARCHAR(128) NOT NULL DEFAULT '',
  ai_tags             JSONB,
  ml                  JSONB,
  created_at          BIGINT NOT NULL,
  updated_at          BIGINT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS departments (
  category   VARCHAR(64)  PRIMARY KEY,
  department VARCHAR(128) NOT NULL,
  priority   VARCHAR(16)  NOT NULL DEFAULT 'Medium'
)`}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
