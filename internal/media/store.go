// Package media stores listing photos. The primary backend is an
// S3-compatible bucket; a local directory served under /media is used when
// no bucket is configured or an upload to the bucket fails.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// MaxImageBytes is the largest accepted upload.
const MaxImageBytes = 5 << 20

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("image is empty")
	// ErrTooLarge is returned when an upload exceeds MaxImageBytes.
	ErrTooLarge = errors.New("image exceeds 5 MiB")
	// ErrUnsupportedType is returned for anything that is not jpeg, png, gif or webp.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrUnknownID is returned by Delete for an id another store issued.
	ErrUnknownID = errors.New("unknown media id")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Transform is the resize hint attached to an upload.
type Transform struct {
	Width  int
	Height int
	Crop   string // "limit", "fill", ...
}

// ListingTransform is applied to every listing photo.
var ListingTransform = Transform{Width: 800, Height: 800, Crop: "limit"}

// Upload is one file to store.
type Upload struct {
	Folder      string
	Name        string // optional; a random name is generated when empty
	ContentType string
	Data        []byte
	Transform   Transform
}

// Stored identifies a stored file.
type Stored struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// Store is an image hosting backend.
type Store interface {
	Upload(ctx context.Context, u Upload) (Stored, error)
	Delete(ctx context.Context, id string) error
}

// Validate checks size and sniffed type and returns the detected content type.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxImageBytes {
		return "", ErrTooLarge
	}
	ct := http.DetectContentType(data)
	if _, ok := allowedTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return ct, nil
}

// objectName returns u.Name, or a random name with an extension matching
// the content type, stripped of any path component.
func objectName(u Upload) string {
	name := strings.TrimSpace(u.Name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		name = uuid.NewString() + allowedTypes[u.ContentType]
	}
	return name
}

func cleanFolder(folder string) string {
	folder = strings.ReplaceAll(strings.TrimSpace(folder), "..", "")
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" {
		return "misc"
	}
	return folder
}
