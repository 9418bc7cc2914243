// Package storage keeps uploaded avatar images. LocalStore writes to a
// directory served under /media; MinioStore puts objects in an S3-compatible
// bucket. Profiles only record the key, and the URL is derived on read.
package storage

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/rs/xid"
)

// MaxAvatarBytes is the largest avatar upload accepted.
const MaxAvatarBytes = 5 << 20

var (
	ErrTooLarge  = errors.New("storage: file exceeds 5 MiB")
	ErrNotImage  = errors.New("storage: file is not an image")
	ErrEmptyFile = errors.New("storage: file is empty")
	ErrBadKey    = errors.New("storage: invalid key")
)

// AvatarStore is implemented by LocalStore and MinioStore.
type AvatarStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns the public address of key.
	URL(key string) string
}

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DetectImage sniffs data and returns its content type. The client-supplied
// content type and filename are ignored.
func DetectImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxAvatarBytes {
		return "", ErrTooLarge
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "", ErrNotImage
	}
	return ct, nil
}

// NewAvatarKey returns a fresh key such as "avatars/cs3v1bq3a1l2s8ngd0og.png".
func NewAvatarKey(contentType string) string {
	ext, ok := imageExt[contentType]
	if !ok {
		ext = ".img"
	}
	return "avatars/" + xid.New().String() + ext
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrBadKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrBadKey
	}
	return cleaned, nil
}
