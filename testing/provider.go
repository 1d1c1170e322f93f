package e2etesting

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tech-arch1tect/folio/app"
	"github.com/tech-arch1tect/folio/config"
	"github.com/tech-arch1tect/folio/testutils"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// E2EApp is a fully wired application listening on a random local port.
type E2EApp struct {
	App              *app.App
	BaseURL          string
	Config           *config.Config
	DB               *gorm.DB
	CoverageTracker  *CoverageTracker
	readinessCheck   func(ctx context.Context, app *E2EApp) error
	readinessTimeout time.Duration
}

type TestConfig struct {
	// DataDir holds the sqlite database file, usually t.TempDir().
	DataDir          string
	EnableDebugMode  bool
	OverrideConfig   func(*config.Config)
	EnableCoverage   bool
	ExcludePatterns  []string
	ReadinessCheck   func(ctx context.Context, app *E2EApp) error
	ReadinessTimeout time.Duration
}

func createTestConfig(testConfig *TestConfig) *config.Config {
	cfg := testutils.GetTestConfig()
	cfg.Server = config.ServerConfig{Host: "127.0.0.1", Port: "0"}
	cfg.Database.DSN = filepath.Join(testConfig.DataDir, "e2e.db")
	cfg.Database.AutoMigrate = true
	cfg.Storage.Bucket = ""
	cfg.Log.Level = "fatal"

	if testConfig.EnableDebugMode {
		cfg.Log.Level = "debug"
	}
	if testConfig.OverrideConfig != nil {
		testConfig.OverrideConfig(cfg)
	}
	return cfg
}

// HealthCheck waits for /healthz to report the database as up.
func HealthCheck(ctx context.Context, e *E2EApp) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func BuildTestApp(builder *app.AppBuilder, testConfig *TestConfig) (*E2EApp, error) {
	cfg := createTestConfig(testConfig)
	builder = builder.WithConfig(cfg)

	var capturedDB *gorm.DB
	builder = builder.WithFxOptions(
		fx.Invoke(func(db *gorm.DB) {
			capturedDB = db
		}),
	)

	builtApp, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build test app: %w", err)
	}

	readinessTimeout := testConfig.ReadinessTimeout
	if readinessTimeout == 0 {
		readinessTimeout = 5 * time.Second
	}

	e2eApp := &E2EApp{
		App:              builtApp,
		Config:           cfg,
		DB:               capturedDB,
		readinessCheck:   testConfig.ReadinessCheck,
		readinessTimeout: readinessTimeout,
	}

	if testConfig.EnableCoverage {
		e2eApp.CoverageTracker = NewCoverageTracker()
		for _, pattern := range testConfig.ExcludePatterns {
			e2eApp.CoverageTracker.AddExcludePattern(pattern)
		}

		if echoServer := builtApp.Server(); echoServer != nil {
			echoServer.Use(e2eApp.CoverageTracker.TrackingMiddleware())
		}
	}

	return e2eApp, nil
}

func (e *E2EApp) Start(ctx context.Context) error {
	if e.App == nil {
		return fmt.Errorf("application not built - call BuildTestApp first")
	}

	if err := e.App.Start(); err != nil {
		return fmt.Errorf("failed to start test app: %w", err)
	}

	srv := e.App.HTTPServer()
	if srv == nil || srv.Echo().Listener == nil {
		return fmt.Errorf("http server is not listening")
	}
	e.BaseURL = "http://" + srv.Echo().Listener.Addr().String()

	if e.CoverageTracker != nil {
		e.CoverageTracker.RegisterRoutes(srv.Echo())
	}

	if e.readinessCheck != nil {
		if err := e.waitForAppReady(ctx); err != nil {
			return fmt.Errorf("app readiness check failed: %w", err)
		}
	}

	return nil
}

func (e *E2EApp) waitForAppReady(ctx context.Context) error {
	deadline := time.After(e.readinessTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = e.readinessCheck(ctx, e); lastErr == nil {
			return nil
		}
		select {
		case <-ticker.C:
			continue
		case <-deadline:
			return fmt.Errorf("timeout after %s: last error: %w", e.readinessTimeout, lastErr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *E2EApp) Stop() {
	if e.App != nil {
		e.App.StopTest()
	}
}

// Client returns an HTTP client for the running app with its own cookie jar.
func (e *E2EApp) Client() *HTTPClient {
	return NewHTTPClient(e.BaseURL).WithCookieJar()
}

func (e *E2EApp) AssertMinimumCoverage(t interface {
	Fatalf(format string, args ...any)
}, minPercent float64) {
	if e.CoverageTracker == nil {
		t.Fatalf("coverage tracking not enabled")
		return
	}
	stats := e.CoverageTracker.GetStats()
	if stats.Coverage < minPercent {
		e.CoverageTracker.PrintReport()
		t.Fatalf("coverage %.1f%% is below minimum required %.1f%%", stats.Coverage, minPercent)
	}
}
