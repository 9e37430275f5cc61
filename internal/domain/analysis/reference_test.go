package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageReferenceValidate(t *testing.T) {
	ok := []StorageReference{
		{Kind: KindObjectStore, Bucket: "photos", Key: "a.jpg"},
		{Kind: KindObjectStore, Key: "a.jpg"},
		{Kind: KindPublicURL, URL: "https://cdn.example.org/a.jpg"},
		{Kind: KindCDNID, PublicID: "civic-reports/photos/abc"},
	}
	for _, r := range ok {
		assert.NoError(t, r.Validate(), r.String())
	}

	bad := []StorageReference{
		{},
		{Kind: KindObjectStore},
		{Kind: KindObjectStore, Key: "a", URL: "http://x"},
		{Kind: KindPublicURL},
		{Kind: KindPublicURL, URL: "http://x", PublicID: "p"},
		{Kind: KindCDNID},
		{Kind: KindCDNID, PublicID: "p", Bucket: "b"},
	}
	for _, r := range bad {
		assert.Error(t, r.Validate(), r.String())
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	var err error = &BlobFetchError{Reference: StorageReference{Kind: KindPublicURL, URL: "u"}, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "public-url:u")

	err = &InferenceError{Backend: SourceExternalAPI, Cause: ErrRateLimited}
	assert.ErrorIs(t, err, ErrRateLimited)
	var ie *InferenceError
	assert.ErrorAs(t, err, &ie)
	assert.Equal(t, SourceExternalAPI, ie.Backend)
}
