package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Connect opens the MySQL pool shared by the report store and the job queue.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	// workers hold a connection per in-flight job plus the poller
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// schema is plain enough to run on MySQL and SQLite alike.
var schema = []string{`
CREATE TABLE IF NOT EXISTS reports (
  id                  VARCHAR(64)  NOT NULL PRIMARY KEY,
  owner_id            VARCHAR(64)  NOT NULL,
  title               VARCHAR(255) NOT NULL,
  category            VARCHAR(64)  NOT NULL,
  status              VARCHAR(32)  NOT NULL,
  priority            VARCHAR(16)  NOT NULL,
  assigned_department VARCHAR(128) NOT NULL DEFAULT '',
  photo_url           VARCHAR(1024) NOT NULL DEFAULT '',
  photo_public_id     VARCHAR(255) NOT NULL DEFAULT '',
  s3_key              VARCHAR(512) NOT NULL DEFAULT '',
  s3_bucket           VARCHAR(128) NOT NULL DEFAULT '',
  ai_tags             TEXT NULL,
  ml                  TEXT NULL,
  created_at          BIGINT NOT NULL,
  updated_at          BIGINT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS departments (
  category   VARCHAR(64)  NOT NULL PRIMARY KEY,
  department VARCHAR(128) NOT NULL,
  priority   VARCHAR(16)  NOT NULL DEFAULT 'Medium'
)`}

// EnsureSchema creates the reports and departments tables when missing.
// Production databases are owned by the reporting platform; this exists
// for local runs and tests.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
