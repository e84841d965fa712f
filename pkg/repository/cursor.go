package repository

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/goerr/v2"
)

// CursorKey is the object key of the cursor in Cloud Storage
const CursorKey = "cursor.txt"

// FileCursor stores the cursor as a decimal number in a local file
type FileCursor struct {
	path string
}

// NewFileCursor creates a cursor store at path
func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

func (c *FileCursor) Load(ctx context.Context) (int64, bool, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, goerr.Wrap(err, "failed to read cursor file", goerr.V("path", c.path))
	}

	cursor, err := parseCursor(raw)
	if err != nil {
		return 0, false, goerr.Wrap(err, "invalid cursor file", goerr.V("path", c.path))
	}
	return cursor, true, nil
}

// Save replaces the file through a rename so a crash never leaves a partial cursor
func (c *FileCursor) Save(ctx context.Context, cursor int64) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create cursor directory", goerr.V("dir", dir))
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(cursor, 10)), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write cursor file", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return goerr.Wrap(err, "failed to replace cursor file", goerr.V("path", c.path))
	}
	return nil
}

// StorageCursor stores the cursor as an object of adapter.Storage
type StorageCursor struct {
	storage adapter.Storage
	key     string
}

// NewStorageCursor creates a cursor store under CursorKey
func NewStorageCursor(storage adapter.Storage) *StorageCursor {
	return &StorageCursor{storage: storage, key: CursorKey}
}

func (c *StorageCursor) Load(ctx context.Context) (int64, bool, error) {
	r, err := c.storage.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, adapter.ErrObjectNotFound) {
			return 0, false, nil
		}
		return 0, false, goerr.Wrap(err, "failed to open cursor object", goerr.V("key", c.key))
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, false, goerr.Wrap(err, "failed to read cursor object", goerr.V("key", c.key))
	}

	cursor, err := parseCursor(raw)
	if err != nil {
		return 0, false, goerr.Wrap(err, "invalid cursor object", goerr.V("key", c.key))
	}
	return cursor, true, nil
}

func (c *StorageCursor) Save(ctx context.Context, cursor int64) error {
	w, err := c.storage.Put(ctx, c.key)
	if err != nil {
		return goerr.Wrap(err, "failed to open cursor object", goerr.V("key", c.key))
	}

	if _, err := io.WriteString(w, strconv.FormatInt(cursor, 10)); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write cursor object", goerr.V("key", c.key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit cursor object", goerr.V("key", c.key))
	}
	return nil
}

func parseCursor(raw []byte) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
}
