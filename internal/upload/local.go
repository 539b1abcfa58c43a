package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// LocalStore writes files under Dir/<category>/ and exposes them below
// /uploads, which the router serves statically from the same directory.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

func (s *LocalStore) Save(ctx context.Context, f File) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	dir := filepath.Join(s.Dir, filepath.Base(f.Category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create upload dir: %w", err)
	}
	name := storedName(f.OriginalName)
	out, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(out, io.LimitReader(f.Body, MaxSize+1)); err != nil {
		out.Close()
		os.Remove(out.Name())
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return Stored{}, fmt.Errorf("close upload: %w", err)
	}
	return Stored{FileName: name, Path: path.Join("/uploads", f.Category, name)}, nil
}
