package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository/memory"
)

const export = `{
  "patients": [
    {
      "id": "Xk2fP9aQ0bUser1",
      "fullName": "Jane Doe",
      "email": "jane@example.com",
      "gender": "Female",
      "dateOfBirth": "1990-04-12",
      "createdAt": {"_seconds": 1700000000, "_nanoseconds": 0},
      "medicalRecords": [
        {"id": "rec1", "diagnosis": "Seasonal flu", "visitDate": {"seconds": 1710000000, "nanoseconds": 0}}
      ],
      "vaccinations": [
        {"id": "vac1", "vaccineName": "Hepatitis B", "dateGiven": "2026-02-01", "nextDoseDate": "2026-03-13", "status": "pending"},
        {"id": "vac2", "vaccineName": "", "dateGiven": "2026-02-01"}
      ],
      "appointments": [
        {"id": "apt1", "reason": "Checkup", "appointmentDate": "2026-03-11T10:30"}
      ]
    },
    {
      "id": "noName",
      "email": "nobody@example.com"
    }
  ]
}`

func TestImport(t *testing.T) {
	repos := memory.NewStore().Repositories()
	imp := New(repos, time.UTC)
	ctx := context.Background()

	report, err := imp.Import(ctx, strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Patients)
	assert.Equal(t, 1, report.Records)
	assert.Equal(t, 1, report.Vaccinations)
	assert.Equal(t, 1, report.Appointments)
	require.Len(t, report.Rejected, 2)
	assert.Contains(t, report.Rejected[0], "patients/Xk2fP9aQ0bUser1/vaccinations/vac2")
	assert.Contains(t, report.Rejected[1], "patients/noName")

	id, err := DocumentID("Xk2fP9aQ0bUser1")
	require.NoError(t, err)
	p, err := repos.Patients.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, model.GenderFemale, p.Gender)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.CreatedAt.UTC())
	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, 1990, p.DateOfBirth.Year())

	vaccs, err := repos.Vaccinations.ListByPatient(ctx, id, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, vaccs, 1)
	require.NotNil(t, vaccs[0].NextDoseDate)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), vaccs[0].NextDoseDate.UTC())

	appts, err := repos.Appointments.ListByPatient(ctx, id, model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, model.AppointmentStatusScheduled, appts[0].Status)
	assert.Equal(t, time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC), appts[0].AppointmentDate.UTC())
}

func TestImportIsIdempotent(t *testing.T) {
	repos := memory.NewStore().Repositories()
	imp := New(repos, time.UTC)
	ctx := context.Background()

	_, err := imp.Import(ctx, strings.NewReader(export))
	require.NoError(t, err)
	_, err = imp.Import(ctx, strings.NewReader(export))
	require.NoError(t, err)

	n, err := repos.Patients.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, _ := DocumentID("Xk2fP9aQ0bUser1")
	vaccs, err := repos.Vaccinations.ListByPatient(ctx, id, model.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, vaccs, 1)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	repos := memory.NewStore().Repositories()
	report, err := New(repos, time.UTC, WithDryRun()).Import(context.Background(), strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Vaccinations)

	n, err := repos.Patients.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportRejectsMalformedJSON(t *testing.T) {
	_, err := New(memory.NewStore().Repositories(), nil).Import(context.Background(), strings.NewReader(`{"patients": [`))
	assert.Error(t, err)
}

func TestImportChildIDsAreScopedToPatient(t *testing.T) {
	repos := memory.NewStore().Repositories()
	ctx := context.Background()
	const shared = "0b7e0c6e-4d4f-4f63-9a52-3c1f2a9d8e11"
	doc := `{"patients": [
		{"id": "alice", "fullName": "Alice", "vaccinations": [
			{"id": "v1", "vaccineName": "MMR", "dateGiven": "2026-01-05"},
			{"id": "` + shared + `", "vaccineName": "Tetanus", "dateGiven": "2026-01-05"}
		]},
		{"id": "bob", "fullName": "Bob", "vaccinations": [
			{"id": "v1", "vaccineName": "MMR", "dateGiven": "2026-01-06"},
			{"id": "` + shared + `", "vaccineName": "Tetanus", "dateGiven": "2026-01-06"}
		]}
	]}`

	report, err := New(repos, time.UTC).Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Vaccinations)
	require.Len(t, report.Rejected, 1)
	assert.Contains(t, report.Rejected[0], "patients/bob/vaccinations/"+shared)

	alice, _ := DocumentID("alice")
	bob, _ := DocumentID("bob")
	aliceVaccs, err := repos.Vaccinations.ListByPatient(ctx, alice, model.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, aliceVaccs, 2)
	bobVaccs, err := repos.Vaccinations.ListByPatient(ctx, bob, model.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, bobVaccs, 1)

	report, err = New(repos, time.UTC).Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Vaccinations)
}

func TestDocumentID(t *testing.T) {
	a, err := DocumentID("abc")
	require.NoError(t, err)
	b, err := DocumentID("abc")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	const raw = "1f0c6a52-51a4-4c43-9a8e-6b2f3f1d7c10"
	u, err := DocumentID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, u.String())

	_, err = DocumentID("")
	assert.Error(t, err)

	x, err := ChildID("patients/alice/vaccinations/v1", "v1")
	require.NoError(t, err)
	y, err := ChildID("patients/bob/vaccinations/v1", "v1")
	require.NoError(t, err)
	assert.NotEqual(t, x, y)

	u, err = ChildID("patients/alice/vaccinations/"+raw, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, u.String())
}

func TestTimestampLocalStrings(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2026-03-11T10:30"`)))
	v, err := ts.Resolve(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 30, 0, 0, time.UTC), v.UTC())

	require.NoError(t, ts.UnmarshalJSON([]byte(`"2026-03-11T10:30:00Z"`)))
	v, err = ts.Resolve(loc)
	require.NoError(t, err)
	assert.Equal(t, 10, v.UTC().Hour())

	var empty Timestamp
	require.NoError(t, empty.UnmarshalJSON([]byte(`null`)))
	v, err = empty.Resolve(loc)
	require.NoError(t, err)
	assert.Nil(t, v)

	var bad Timestamp
	require.NoError(t, bad.UnmarshalJSON([]byte(`"next tuesday"`)))
	_, err = bad.Resolve(loc)
	assert.Error(t, err)
}
