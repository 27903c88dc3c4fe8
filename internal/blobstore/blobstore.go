// Package blobstore stores patient files under hierarchical keys of the form
// patients/{patientID}/{folder}/{unixMillis}_{fileName}.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidKey  = errors.New("invalid blob key")
	ErrInvalidName = errors.New("invalid file name")
	ErrTooLarge    = errors.New("file exceeds maximum allowed size")
)

const patientsRoot = "patients"

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is implemented by every blob backend.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	// List returns objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]*Object, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix and reports how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// PatientPrefix is the key prefix owning all of a patient's files.
func PatientPrefix(patientID uuid.UUID) string {
	return patientsRoot + "/" + patientID.String() + "/"
}

// FolderPrefix is the key prefix of one folder of a patient.
func FolderPrefix(patientID uuid.UUID, folder string) string {
	return PatientPrefix(patientID) + folder + "/"
}

// NewKey builds the key for an upload. The millisecond prefix keeps repeated
// uploads of the same file name apart.
func NewKey(patientID uuid.UUID, folder, name string, at time.Time) (string, error) {
	if err := ValidateFolder(folder); err != nil {
		return "", err
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return FolderPrefix(patientID, folder) + strconv.FormatInt(at.UnixMilli(), 10) + "_" + clean, nil
}

// Key is a parsed object key.
type Key struct {
	PatientID uuid.UUID
	Folder    string
	// Name is the stored file name including the timestamp prefix.
	Name string
	// Original is the uploaded file name.
	Original   string
	UploadedAt time.Time
}

// ParseKey splits a key produced by NewKey.
func ParseKey(key string) (*Key, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != patientsRoot {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	k := &Key{PatientID: id, Folder: parts[2], Name: parts[3], Original: parts[3]}
	if ts, rest, ok := strings.Cut(parts[3], "_"); ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			k.UploadedAt = time.UnixMilli(ms).UTC()
			k.Original = rest
		}
	}
	return k, nil
}

// ValidateKey rejects empty segments and path traversal.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(strings.TrimSuffix(key, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// ValidateFolder accepts a single path segment.
func ValidateFolder(folder string) error {
	if folder == "" || folder == "." || folder == ".." || strings.ContainsAny(folder, "/\\") {
		return fmt.Errorf("%w: folder %q", ErrInvalidKey, folder)
	}
	return nil
}

// SanitizeName strips directories from an uploaded file name.
func SanitizeName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidName
	}
	return name, nil
}

func contentTypeFor(key, given string) string {
	if given != "" {
		return given
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
