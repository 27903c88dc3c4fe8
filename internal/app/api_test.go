package app

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/config"
	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxUploadBytes: 1 << 20,
			Driver:         "memory",
		},
		JWT: config.JWTConfig{
			Secret:           "test-secret-with-enough-entropy",
			Issuer:           "health-records-test",
			ExpiryHours:      1,
			FileURLTTL:       time.Minute,
			AllowStaffSignup: true,
		},
		Storage: config.StorageConfig{Driver: "memory"},
		Reminders: config.RemindersConfig{
			VaccinationHorizonDays: 7,
			AppointmentHorizonDays: 1,
			Timezone:               "UTC",
			ReadTimeout:            time.Second,
			Deadline:               5 * time.Second,
			ScanConcurrency:        4,
		},
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newClient(t *testing.T, cfg *config.Config) *client {
	t.Helper()
	a, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	r, err := a.NewAPI()
	require.NoError(t, err)
	return &client{t: t, handler: r.Engine()}
}

func (c *client) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func (c *client) register(email, name, role string) model.TokenResponse {
	c.t.Helper()
	w := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "s3cret-pass", "full_name": name, "role": role,
	})
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
	var resp model.TokenResponse
	decode(c.t, w, &resp)
	require.NotEmpty(c.t, resp.AccessToken)
	return resp
}

func TestAPIFlow(t *testing.T) {
	c := newClient(t, testConfig())

	doctor := c.register("house@example.com", "Greg House", model.RoleDoctor)
	patient := c.register("jane@example.com", "Jane Doe", model.RolePatient)
	patientID := patient.User.ID
	base := "/api/v1/patients/" + patientID.String()

	w := c.do(http.MethodPut, base, patient.AccessToken, map[string]string{"phone": "555-0101", "gender": "female"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile model.Patient
	decode(t, w, &profile)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, "555-0101", profile.Phone)

	w = c.do(http.MethodGet, "/api/v1/patients/"+uuid.NewString(), patient.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	now := time.Now().UTC()
	next := now.Add(3 * 24 * time.Hour)
	w = c.do(http.MethodPost, base+"/vaccinations", patient.AccessToken, map[string]interface{}{
		"vaccine_name":   "Hepatitis B",
		"date_given":     now.AddDate(0, -1, 0),
		"next_dose_date": next,
		"status":         "pending",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tomorrowNoon := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	w = c.do(http.MethodPost, base+"/appointments", patient.AccessToken, map[string]interface{}{
		"reason":           "Checkup",
		"appointment_date": tomorrowNoon,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = c.do(http.MethodGet, "/api/v1/dashboard/vaccinations", patient.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var vaccs struct {
		Items []model.UpcomingVaccination `json:"items"`
		Count int                         `json:"count"`
	}
	w = c.do(http.MethodGet, "/api/v1/dashboard/vaccinations", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &vaccs)
	require.Equal(t, 1, vaccs.Count)
	assert.Equal(t, "Hepatitis B", vaccs.Items[0].VaccineName)
	assert.Equal(t, "Jane Doe", vaccs.Items[0].PatientName)
	assert.Equal(t, 3, vaccs.Items[0].DaysUntil)

	w = c.do(http.MethodGet, "/api/v1/dashboard/vaccinations?days=1", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &vaccs)
	assert.Zero(t, vaccs.Count)

	w = c.do(http.MethodGet, "/api/v1/dashboard/vaccinations?days=120000", doctor.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var appts struct {
		Items []model.UpcomingAppointment `json:"items"`
		Count int                         `json:"count"`
	}
	w = c.do(http.MethodGet, "/api/v1/dashboard/appointments", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &appts)
	require.Equal(t, 1, appts.Count)
	assert.Equal(t, "Checkup", appts.Items[0].Reason)

	var stats model.DoctorStats
	w = c.do(http.MethodGet, "/api/v1/dashboard/stats", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TotalPatients)

	w = c.do(http.MethodDelete, base, doctor.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = c.do(http.MethodGet, base, doctor.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = c.do(http.MethodGet, "/api/v1/dashboard/vaccinations", doctor.AccessToken, nil)
	decode(t, w, &vaccs)
	assert.Zero(t, vaccs.Count, "cascade removed the patient's vaccinations")
}

func TestAPIFiles(t *testing.T) {
	c := newClient(t, testConfig())
	patient := c.register("jane@example.com", "Jane Doe", model.RolePatient)
	base := "/api/v1/patients/" + patient.User.ID.String()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("folder", "labs"))
	part, err := mw.CreateFormFile("files", "blood work.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 results"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, base+"/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+patient.AccessToken)
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var stored []model.StoredFile
	decode(t, w, &stored)
	require.Len(t, stored, 1)
	assert.Equal(t, "labs", stored[0].Folder)
	require.NotEmpty(t, stored[0].URL)

	w = c.do(http.MethodGet, base+"/files?folder=labs", patient.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []model.StoredFile
	decode(t, w, &listed)
	require.Len(t, listed, 1)

	w = c.do(http.MethodGet, stored[0].URL, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "%PDF-1.4 results", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "blood work.pdf")

	w = c.do(http.MethodGet, "/api/v1/files/download?token=forged", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodDelete, base+"/files/labs/"+url.PathEscape(stored[0].Name), patient.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = c.do(http.MethodGet, stored[0].URL, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIValidationAndAuth(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AllowStaffSignup = false
	c := newClient(t, cfg)

	w := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "mallory@example.com", "password": "s3cret-pass", "full_name": "Mallory", "role": model.RoleAdmin,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	patient := c.register("jane@example.com", "Jane Doe", "")
	assert.Equal(t, model.RolePatient, patient.User.Role)

	w = c.do(http.MethodPost, "/api/v1/patients/"+patient.User.ID.String()+"/vaccinations", patient.AccessToken, map[string]string{
		"status": "pending",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "vaccine_name")

	w = c.do(http.MethodGet, "/api/v1/patients", patient.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "jane@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "health_records_http_requests_total")
}

func TestAPIPatientPagination(t *testing.T) {
	c := newClient(t, testConfig())
	doctor := c.register("house@example.com", "Greg House", model.RoleDoctor)
	for _, name := range []string{"Ann", "Ben", "Cat"} {
		c.register(name+"@example.com", name, model.RolePatient)
	}

	w := c.do(http.MethodGet, "/api/v1/patients", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var all []model.Patient
	decode(t, w, &all)
	require.Len(t, all, 3)

	var page struct {
		Data       []model.Patient `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			PageSize   int `json:"page_size"`
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	w = c.do(http.MethodGet, "/api/v1/patients?page=2&page_size=2", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, all[2].ID, page.Data[0].ID)
	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	w = c.do(http.MethodGet, "/api/v1/patients?page=5&page_size=2", doctor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Empty(t, page.Data)

	w = c.do(http.MethodGet, "/api/v1/patients?page_size=500", doctor.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
