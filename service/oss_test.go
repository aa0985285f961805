package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"voiceovers/p/a.mp3":     "audio/mpeg",
		"projects/p/000-x.MP4":   "video/mp4",
		"thumbs/a.jpeg":          "image/jpeg",
		"blobs/unknown.bin":      "application/octet-stream",
		"no-extension":           "application/octet-stream",
		"results/report.json":    "application/json",
		"projects/p/scene.webm":  "video/webm",
		"voiceovers/p/take.wav":  "audio/wav",
		"thumbs/cover.webp":      "image/webp",
		"thumbs/cover.final.png": "image/png",
	}
	for name, want := range cases {
		assert.Equal(t, want, contentTypeFor(name), name)
	}
}

func TestMirrorCopiesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	store := &fakeStore{}
	url, err := Mirror(context.Background(), store, srv.Client(), srv.URL+"/out.mp4", "projects/p1/scenes/000-a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/projects/p1/scenes/000-a.mp4", url)
	assert.Equal(t, []byte("video-bytes"), store.objects["projects/p1/scenes/000-a.mp4"])
}

func TestMirrorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Mirror(context.Background(), &fakeStore{}, srv.Client(), srv.URL, "a.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download status: 404")

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer ok.Close()
	_, err = Mirror(context.Background(), &fakeStore{err: errors.New("bucket gone")}, ok.Client(), ok.URL, "a.mp4")
	assert.EqualError(t, err, "bucket gone")
}
