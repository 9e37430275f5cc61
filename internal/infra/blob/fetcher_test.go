package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

type fakeObjects struct {
	data       map[string][]byte
	lastBucket string
}

func (f *fakeObjects) Open(_ context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	f.lastBucket = bucket
	b, ok := f.data[bucket+"/"+key]
	if !ok {
		return nil, 0, errors.New("NoSuchKey")
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func TestFetchPublicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/photos/a.jpg", r.URL.Path)
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	b, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindPublicURL, URL: srv.URL + "/photos/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), b)
}

func TestFetchNon2xxIsBlobFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	ref := domain.StorageReference{Kind: domain.KindPublicURL, URL: srv.URL + "/x.jpg?sig=secret"}
	_, err := f.Fetch(context.Background(), ref)
	require.Error(t, err)

	var fe *domain.BlobFetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ref, fe.Reference)
	assert.Contains(t, err.Error(), "status 404")
	assert.NotContains(t, err.Error(), "secret")
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := &Fetcher{Client: srv.Client(), Timeout: 30 * time.Millisecond}
	_, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindPublicURL, URL: srv.URL})
	var fe *domain.BlobFetchError
	assert.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), MaxBytes: 32}
	_, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindPublicURL, URL: srv.URL})
	assert.ErrorIs(t, err, errTooLarge)
}

func TestFetchCDN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload/civic/report%201", r.URL.EscapedPath())
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), CDNBaseURL: srv.URL + "/demo/image/upload/"}
	b, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindCDNID, PublicID: "civic/report 1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), b)

	f.CDNBaseURL = ""
	_, err = f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindCDNID, PublicID: "x"})
	assert.Error(t, err)
}

func TestCloudinaryBase(t *testing.T) {
	assert.Equal(t, "https://res.cloudinary.com/civic/image/upload", CloudinaryBase("civic"))
	assert.Equal(t, "", CloudinaryBase(""))
}

func TestFetchObjectStore(t *testing.T) {
	objs := &fakeObjects{data: map[string][]byte{
		"photos/reports/r1.jpg": []byte("obj"),
		"other/k.jpg":           []byte("other"),
	}}
	f := &Fetcher{Objects: objs, DefaultBucket: "photos"}

	b, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindObjectStore, Key: "reports/r1.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []byte("obj"), b)
	assert.Equal(t, "photos", objs.lastBucket)

	b, err = f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindObjectStore, Bucket: "other", Key: "k.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), b)

	_, err = f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindObjectStore, Key: "missing"})
	var fe *domain.BlobFetchError
	assert.ErrorAs(t, err, &fe)
}

func TestFetchObjectStoreUnconfigured(t *testing.T) {
	f := &Fetcher{}
	_, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindObjectStore, Key: "k"})
	assert.Error(t, err)
}

func TestFetchInvalidReference(t *testing.T) {
	f := &Fetcher{}
	_, err := f.Fetch(context.Background(), domain.StorageReference{Kind: domain.KindPublicURL})
	var fe *domain.BlobFetchError
	assert.ErrorAs(t, err, &fe)
}
