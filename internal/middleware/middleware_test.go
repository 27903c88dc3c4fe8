package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth map[string]*model.TokenClaims

func (f fakeAuth) Authenticate(token string) (*model.TokenClaims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func do(r http.Handler, method, path string, headers map[string]string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := do(r, http.MethodGet, "/", nil, nil)
	generated := w.Header().Get(HeaderXRequestID)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	w = do(r, http.MethodGet, "/", map[string]string{HeaderXRequestID: "abc-123"}, nil)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
}

func TestAuthenticate(t *testing.T) {
	patientID := uuid.New()
	auth := NewAuthMiddleware(fakeAuth{
		"patient": {UserID: patientID, Role: model.RolePatient},
		"doctor":  {UserID: uuid.New(), Role: model.RoleDoctor},
	})

	r := gin.New()
	api := r.Group("/", auth.Authenticate())
	api.GET("/patients/:id", auth.RequirePatientAccess("id"), func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/dashboard", auth.RequireRole(model.RoleDoctor, model.RoleAdmin), func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Role)
	})

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"missing header", "/dashboard", nil, http.StatusUnauthorized},
		{"wrong scheme", "/dashboard", map[string]string{"Authorization": "Basic xyz"}, http.StatusUnauthorized},
		{"unknown token", "/dashboard", bearer("nope"), http.StatusUnauthorized},
		{"patient on dashboard", "/dashboard", bearer("patient"), http.StatusForbidden},
		{"doctor on dashboard", "/dashboard", bearer("doctor"), http.StatusOK},
		{"patient on own record", "/patients/" + patientID.String(), bearer("patient"), http.StatusOK},
		{"patient on other record", "/patients/" + uuid.NewString(), bearer("patient"), http.StatusForbidden},
		{"patient with bad id", "/patients/not-a-uuid", bearer("patient"), http.StatusBadRequest},
		{"doctor on any record", "/patients/" + uuid.NewString(), bearer("doctor"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, tt.headers, nil)
			assert.Equal(t, tt.want, w.Code)
			if tt.want >= 400 {
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestRateLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"), "buckets are per client")
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.example.com"}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	w = do(r, http.MethodOptions, "/", map[string]string{"Origin": "https://evil.example.com"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(TimeoutConfig{Duration: 20 * time.Millisecond}))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusGatewayTimeout, do(r, http.MethodGet, "/slow", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/fast", nil, nil).Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.Nop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8, SkipRoutes: []string{"/upload/:id"}}))
	echo := func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, string(b))
	}
	r.POST("/json", echo)
	r.POST("/upload/:id", echo)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/json", nil, strings.NewReader("small")).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, do(r, http.MethodPost, "/json", nil, strings.NewReader("far too large")).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/upload/1", nil, strings.NewReader("far too large")).Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store, private", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "includeSubDomains")
}

func TestMetricsByRoute(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), "", "")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/patients/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	do(r, http.MethodGet, "/patients/1", nil, nil)
	do(r, http.MethodGet, "/patients/2", nil, nil)

	var out dto.Metric
	require.NoError(t, m.HTTPRequests.WithLabelValues(http.MethodGet, "/patients/:id", "404").Write(&out))
	assert.Equal(t, 2.0, out.GetCounter().GetValue())
	require.NoError(t, m.HTTPErrors.WithLabelValues(http.MethodGet, "/patients/:id", "404").Write(&out))
	assert.Equal(t, 2.0, out.GetCounter().GetValue())
}

func TestLoggerDoesNotLogBodies(t *testing.T) {
	var buf strings.Builder
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf})
	r := gin.New()
	r.Use(RequestID(), Logger(log))
	r.POST("/patients/:id", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do(r, http.MethodPost, "/patients/1", nil, strings.NewReader(`{"allergies":"penicillin"}`))
	out := buf.String()
	assert.Contains(t, out, `"route":"/patients/:id"`)
	assert.Contains(t, out, `"status":201`)
	assert.NotContains(t, out, "penicillin")
}
