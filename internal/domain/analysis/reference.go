package analysis

import (
	"errors"
	"fmt"
)

// ReferenceKind tells where an image lives.
type ReferenceKind string

const (
	KindObjectStore ReferenceKind = "object-store"
	KindPublicURL   ReferenceKind = "public-url"
	KindCDNID       ReferenceKind = "cdn-id"
)

// StorageReference points at the bytes of one uploaded photo. Only the fields
// of its Kind are populated.
type StorageReference struct {
	Kind     ReferenceKind `json:"kind"`
	Bucket   string        `json:"bucket,omitempty"`
	Key      string        `json:"key,omitempty"`
	URL      string        `json:"url,omitempty"`
	PublicID string        `json:"publicId,omitempty"`
}

// Validate checks that the reference carries what its kind needs. An empty
// bucket is allowed for object-store references; the fetcher applies its
// default bucket.
func (r StorageReference) Validate() error {
	switch r.Kind {
	case KindObjectStore:
		if r.Key == "" {
			return errors.New("object-store reference requires key")
		}
		if r.URL != "" || r.PublicID != "" {
			return errors.New("object-store reference must not carry url or publicId")
		}
	case KindPublicURL:
		if r.URL == "" {
			return errors.New("public-url reference requires url")
		}
		if r.Key != "" || r.Bucket != "" || r.PublicID != "" {
			return errors.New("public-url reference must not carry key, bucket or publicId")
		}
	case KindCDNID:
		if r.PublicID == "" {
			return errors.New("cdn-id reference requires publicId")
		}
		if r.URL != "" || r.Key != "" || r.Bucket != "" {
			return errors.New("cdn-id reference must not carry url, key or bucket")
		}
	default:
		return fmt.Errorf("unknown reference kind %q", r.Kind)
	}
	return nil
}

func (r StorageReference) String() string {
	switch r.Kind {
	case KindObjectStore:
		return fmt.Sprintf("object-store:%s/%s", r.Bucket, r.Key)
	case KindPublicURL:
		return "public-url:" + r.URL
	case KindCDNID:
		return "cdn-id:" + r.PublicID
	}
	return string(r.Kind)
}
