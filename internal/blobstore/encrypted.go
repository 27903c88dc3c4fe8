package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/jwalitptl/health-records/pkg/security"
)

// EncryptedStore seals blob contents before handing them to the wrapped
// store. Reported sizes are plaintext sizes.
type EncryptedStore struct {
	Store
	enc security.Encryptor
}

func NewEncryptedStore(inner Store, enc security.Encryptor) *EncryptedStore {
	return &EncryptedStore{Store: inner, enc: enc}
}

func (s *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	sealed, err := s.enc.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", key, err)
	}
	obj, err := s.Store.Put(ctx, key, bytes.NewReader(sealed), contentType)
	if err != nil {
		return nil, err
	}
	obj.Size = int64(len(plain))
	return obj, nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	rc, obj, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	sealed, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", key, err)
	}
	plain, err := s.enc.Decrypt(sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	obj.Size = int64(len(plain))
	return io.NopCloser(bytes.NewReader(plain)), obj, nil
}

func (s *EncryptedStore) List(ctx context.Context, prefix string) ([]*Object, error) {
	objs, err := s.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	overhead := int64(s.enc.Overhead())
	for _, o := range objs {
		if o.Size >= overhead {
			o.Size -= overhead
		}
	}
	return objs, nil
}

var _ Store = (*EncryptedStore)(nil)
