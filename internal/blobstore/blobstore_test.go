package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/pkg/security"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	enc, err := security.NewEncryptorFromSecret("blob-secret", "blobstore")
	require.NoError(t, err)

	return map[string]Store{
		"memory":    NewMemoryStore(),
		"fs":        fsStore,
		"encrypted": NewEncryptedStore(NewMemoryStore(), enc),
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	patient := uuid.New()
	other := uuid.New()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			at := time.UnixMilli(1700000000000)
			scan, err := NewKey(patient, "documents", "scan.pdf", at)
			require.NoError(t, err)
			xray, err := NewKey(patient, "imaging", "chest.png", at.Add(time.Second))
			require.NoError(t, err)
			foreign, err := NewKey(other, "documents", "scan.pdf", at)
			require.NoError(t, err)

			obj, err := store.Put(ctx, scan, strings.NewReader("pdf-bytes"), "")
			require.NoError(t, err)
			assert.Equal(t, int64(len("pdf-bytes")), obj.Size)
			assert.Equal(t, "application/pdf", obj.ContentType)

			_, err = store.Put(ctx, xray, strings.NewReader("png"), "image/png")
			require.NoError(t, err)
			_, err = store.Put(ctx, foreign, strings.NewReader("theirs"), "")
			require.NoError(t, err)

			rc, meta, err := store.Get(ctx, scan)
			require.NoError(t, err)
			assert.Equal(t, "pdf-bytes", readAll(t, rc))
			assert.Equal(t, int64(9), meta.Size)

			docs, err := store.List(ctx, FolderPrefix(patient, "documents"))
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, scan, docs[0].Key)
			assert.Equal(t, int64(9), docs[0].Size)

			all, err := store.List(ctx, PatientPrefix(patient))
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, store.Delete(ctx, xray))
			assert.ErrorIs(t, store.Delete(ctx, xray), ErrNotFound)
			_, _, err = store.Get(ctx, xray)
			assert.ErrorIs(t, err, ErrNotFound)

			n, err := store.DeletePrefix(ctx, PatientPrefix(patient))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			left, err := store.List(ctx, PatientPrefix(patient))
			require.NoError(t, err)
			assert.Empty(t, left)

			theirs, err := store.List(ctx, PatientPrefix(other))
			require.NoError(t, err)
			assert.Len(t, theirs, 1, "other patients keep their files")
		})
	}
}

func TestListMissingPrefix(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			objs, err := store.List(context.Background(), PatientPrefix(uuid.New()))
			require.NoError(t, err)
			assert.Empty(t, objs)
		})
	}
}

func TestKeys(t *testing.T) {
	id := uuid.New()
	at := time.UnixMilli(1700000000123)

	key, err := NewKey(id, "lab", `C:\Users\me\results.pdf`, at)
	require.NoError(t, err)
	assert.Equal(t, "patients/"+id.String()+"/lab/1700000000123_results.pdf", key)

	parsed, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, id, parsed.PatientID)
	assert.Equal(t, "lab", parsed.Folder)
	assert.Equal(t, "1700000000123_results.pdf", parsed.Name)
	assert.Equal(t, "results.pdf", parsed.Original)
	assert.True(t, at.Equal(parsed.UploadedAt))

	_, err = NewKey(id, "../etc", "x", at)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewKey(id, "docs", "..", at)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = ParseKey("patients/not-a-uuid/docs/x")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseKey("patients/" + id.String() + "/../x/y")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, _, err = store.Get(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = store.DeletePrefix(context.Background(), "patients")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptedStoreSealsContent(t *testing.T) {
	inner := NewMemoryStore()
	enc, err := security.NewEncryptorFromSecret("blob-secret", "blobstore")
	require.NoError(t, err)
	store := NewEncryptedStore(inner, enc)

	key, err := NewKey(uuid.New(), "documents", "note.txt", time.Now())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), key, strings.NewReader("confidential"), "")
	require.NoError(t, err)

	rc, _, err := inner.Get(context.Background(), key)
	require.NoError(t, err)
	assert.NotContains(t, readAll(t, rc), "confidential")

	rc, _, err = store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "confidential", readAll(t, rc))
}
