package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore keeps blobs as files below a root directory. Content types are
// derived from the file extension.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("blobstore: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p, nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, readerWithContext(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, fmt.Errorf("storing %s: %w", key, err)
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &Object{Key: key, Size: size, ContentType: contentTypeFor(key, contentType), ModTime: info.ModTime().UTC()}, nil
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("opening %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, s.object(key, info), nil
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]*Object, error) {
	// Walk the deepest directory fully contained in prefix, then filter.
	dirKey := prefix
	if i := strings.LastIndex(dirKey, "/"); i >= 0 {
		dirKey = dirKey[:i]
	} else {
		dirKey = ""
	}
	dir := s.root
	if dirKey != "" {
		p, err := s.path(dirKey)
		if err != nil {
			return nil, err
		}
		dir = p
	}

	var out []*Object
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, s.object(key, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeletePrefix only accepts folder prefixes ending in "/".
func (s *FSStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if !strings.HasSuffix(prefix, "/") {
		return 0, fmt.Errorf("%w: prefix %q must end with /", ErrInvalidKey, prefix)
	}
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	p, err := s.path(prefix)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(p); err != nil {
		return 0, fmt.Errorf("deleting %s: %w", prefix, err)
	}
	return len(objs), nil
}

func (s *FSStore) object(key string, info fs.FileInfo) *Object {
	return &Object{
		Key:         key,
		Size:        info.Size(),
		ContentType: contentTypeFor(key, ""),
		ModTime:     info.ModTime().UTC(),
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Store = (*FSStore)(nil)
