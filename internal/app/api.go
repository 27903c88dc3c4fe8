package app

import (
	"time"

	"golang.org/x/time/rate"

	appointmenthandler "github.com/jwalitptl/health-records/internal/handler/appointment"
	authhandler "github.com/jwalitptl/health-records/internal/handler/auth"
	dashboardhandler "github.com/jwalitptl/health-records/internal/handler/dashboard"
	filehandler "github.com/jwalitptl/health-records/internal/handler/file"
	"github.com/jwalitptl/health-records/internal/handler/health"
	patienthandler "github.com/jwalitptl/health-records/internal/handler/patient"
	promhandler "github.com/jwalitptl/health-records/internal/handler/prometheus"
	vaccinationhandler "github.com/jwalitptl/health-records/internal/handler/vaccination"
	"github.com/jwalitptl/health-records/internal/middleware"
	"github.com/jwalitptl/health-records/internal/router"
	appointmentservice "github.com/jwalitptl/health-records/internal/service/appointment"
	authservice "github.com/jwalitptl/health-records/internal/service/auth"
	dashboardservice "github.com/jwalitptl/health-records/internal/service/dashboard"
	fileservice "github.com/jwalitptl/health-records/internal/service/file"
	medicalservice "github.com/jwalitptl/health-records/internal/service/medical"
	patientservice "github.com/jwalitptl/health-records/internal/service/patient"
	vaccinationservice "github.com/jwalitptl/health-records/internal/service/vaccination"
	"github.com/jwalitptl/health-records/pkg/auth"
	"github.com/jwalitptl/health-records/pkg/security"
)

func (a *App) tokens() (auth.JWTService, error) {
	return auth.NewJWTService(auth.Config{
		Secret: a.Config.JWT.Secret,
		Issuer: a.Config.JWT.Issuer,
		Expiry: time.Duration(a.Config.JWT.ExpiryHours) * time.Hour,
	})
}

// AuthService signs users up and in. healthctl uses it to provision staff.
func (a *App) AuthService() (*authservice.Service, error) {
	tokens, err := a.tokens()
	if err != nil {
		return nil, err
	}
	return authservice.NewService(a.Repos.Users, a.Repos.Patients, security.NewBcryptHasher(0), tokens, a.Logger), nil
}

// NewAPI wires services, handlers and middleware into a ready router.
func (a *App) NewAPI() (*router.Router, error) {
	cfg := a.Config

	tokens, err := a.tokens()
	if err != nil {
		return nil, err
	}
	blobs, err := a.Blobs()
	if err != nil {
		return nil, err
	}

	authSvc := authservice.NewService(a.Repos.Users, a.Repos.Patients, security.NewBcryptHasher(0), tokens, a.Logger)
	patientSvc := patientservice.NewService(a.Repos.Patients, blobs, a.Logger)
	recordSvc := medicalservice.NewService(a.Repos.Records)
	vaccinationSvc := vaccinationservice.NewService(a.Repos.Vaccinations)
	appointmentSvc := appointmentservice.NewService(a.Repos.Appointments)
	dashboardSvc := dashboardservice.NewService(a.Aggregator(), cfg.Reminders.VaccinationHorizonDays, cfg.Reminders.StatsCacheTTL)
	fileSvc := fileservice.NewService(blobs, a.Repos.Patients, tokens, fileservice.Config{
		MaxBytes:      cfg.Server.MaxUploadBytes,
		URLTTL:        cfg.JWT.FileURLTTL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowedOrigins
	}

	r := router.NewRouter(
		router.RouterConfig{
			RequestTimeout:   cfg.Server.RequestTimeout,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       cors,
			Security:         middleware.DefaultSecurityConfig(),
			MaxBodyBytes:     middleware.DefaultSizeLimitConfig().MaxBodySize,
			UnlimitedRoutes:  []string{filehandler.UploadRoute},
		},
		a.Logger,
		a.Metrics,
		middleware.NewAuthMiddleware(authSvc),
		health.NewHandler(a.HealthChecks()),
		promhandler.New(a.Registry),
		authhandler.NewHandler(authSvc, cfg.JWT.AllowStaffSignup),
		patienthandler.NewHandler(patientSvc, recordSvc, dashboardSvc),
		vaccinationhandler.NewHandler(vaccinationSvc, dashboardSvc),
		appointmenthandler.NewHandler(appointmentSvc, dashboardSvc),
		filehandler.NewHandler(fileSvc, 4*cfg.Server.MaxUploadBytes),
		dashboardhandler.NewHandler(dashboardSvc),
	)
	r.Setup()
	return r, nil
}
