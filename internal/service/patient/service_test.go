package patient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/blobstore"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/repository/memory"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
)

func str(s string) *string { return &s }

func setup(t *testing.T) (*Service, *repository.Repositories, *blobstore.MemoryStore) {
	t.Helper()
	repos := memory.NewStore().Repositories()
	blobs := blobstore.NewMemoryStore()
	return NewService(repos.Patients, blobs, nil), repos, blobs
}

func TestSaveCreatesThenMerges(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	id := uuid.New()

	p, created, err := svc.Save(ctx, id, &model.PatientRequest{FullName: str("Jane Doe"), Email: str("jane@example.com"), Phone: str("555")})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, p.ID)

	p, created, err = svc.Save(ctx, id, &model.PatientRequest{BloodType: str("O+")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, "555", p.Phone)
	assert.Equal(t, "O+", p.BloodType)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "O+", got.BloodType)
}

func TestSaveValidation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, _, err := svc.Save(ctx, uuid.New(), &model.PatientRequest{Email: str("x@example.com")})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "full name required on create")

	_, _, err = svc.Save(ctx, uuid.New(), &model.PatientRequest{FullName: str("A"), Gender: str("unknown")})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, _, err = svc.Save(ctx, uuid.New(), &model.PatientRequest{FullName: str(strings.Repeat("a", 101))})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	id := uuid.New()
	_, _, err = svc.Save(ctx, id, &model.PatientRequest{FullName: str("A")})
	require.NoError(t, err)
	_, _, err = svc.Save(ctx, id, &model.PatientRequest{FullName: str("")})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "full name cannot be cleared")
}

func TestGetMissing(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListSearch(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	for _, name := range []string{"Alice Smith", "Bob Jones", "alicia keys"} {
		_, _, err := svc.Save(ctx, uuid.New(), &model.PatientRequest{FullName: str(name)})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := svc.List(ctx, &model.PatientFilter{SearchTerm: "ALIC"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestDeleteCascadesToFiles(t *testing.T) {
	svc, repos, blobs := setup(t)
	ctx := context.Background()
	id := uuid.New()
	_, _, err := svc.Save(ctx, id, &model.PatientRequest{FullName: str("Jane")})
	require.NoError(t, err)

	require.NoError(t, repos.Records.Create(ctx, &model.MedicalRecord{PatientID: id, Diagnosis: "flu", VisitDate: time.Now()}))
	key, err := blobstore.NewKey(id, "documents", "scan.pdf", time.Now())
	require.NoError(t, err)
	_, err = blobs.Put(ctx, key, strings.NewReader("x"), "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, id))

	records, err := repos.Records.ListByPatient(ctx, id, model.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
	files, err := blobs.List(ctx, blobstore.PatientPrefix(id))
	require.NoError(t, err)
	assert.Empty(t, files)

	err = svc.Delete(ctx, id)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
