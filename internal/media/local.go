package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const localPrefix = "local:"

// LocalStore writes files below Dir and serves them under BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string // e.g. "/media"
}

// NewLocalStore returns a LocalStore rooted at dir.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Upload implements Store.
func (s *LocalStore) Upload(ctx context.Context, u Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	folder := cleanFolder(u.Folder)
	name := objectName(u)
	dir := filepath.Join(s.Dir, filepath.FromSlash(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), u.Data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("write media file: %w", err)
	}
	rel := path.Join(folder, name)
	return Stored{URL: s.BaseURL + "/" + rel, ID: localPrefix + rel}, nil
}

// Delete implements Store. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	rel, ok := strings.CutPrefix(id, localPrefix)
	if !ok {
		return ErrUnknownID
	}
	rel = path.Clean("/" + rel)[1:]
	if rel == "" {
		return ErrUnknownID
	}
	err := os.Remove(filepath.Join(s.Dir, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
