package storage

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/internal/config"
)

func TestPictureKey(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ext  string
		want string
	}{
		{"plain", "abc", "png", "things/pictures/abc.png"},
		{"dotted", "abc", ".JPG", "things/pictures/abc.jpg"},
		{"no extension", "abc", "", "things/pictures/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PictureKey(tt.id, tt.ext))
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", EndpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", EndpointURL("s3.example.com", true))
	assert.Equal(t, "https://minio:9000", EndpointURL("https://minio:9000", false))
}

func TestDisabledService(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Bucket: "b"}}
	svc, err := NewService(cfg, slog.Default())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	_, err = svc.Upload(context.Background(), "k", strings.NewReader("x"), 1, UploadOptions{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, svc.Delete(context.Background(), "k"), ErrDisabled)
	_, err = svc.SignedURL(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrDisabled)
}
