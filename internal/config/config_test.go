package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "MAX_BODY_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY",
		"SWAGGER_ENABLED", "API_BASE_PATH", "DB_PATH", "SEARCH_THRESHOLD",
		"RATE_RPS", "RATE_BURST", "RATE_WRITE_RPS", "RATE_WRITE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"JWT_SECRET", "JWT_ISSUER", "JWT_TTL", "AUTH_ALLOW_HEADER", "IDEMPOTENCY_TTL",
		"MEDIA_DIR", "MEDIA_BASE_URL",
		"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_PUBLIC_BASE_URL", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PATH_STYLE",
		"CLARIFAI_PAT", "CLARIFAI_USER_ID", "CLARIFAI_APP_ID", "CLARIFAI_MODEL_ID", "CLARIFAI_BASE_URL",
		"CLASSIFIER_THRESHOLD", "CLASSIFIER_MAX_RETRIES",
		"GEOAPIFY_API_KEY", "GEOAPIFY_BASE_URL", "HTTP_CLIENT_TIMEOUT", "MAP_CENTER_LAT", "MAP_CENTER_LNG",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
		"DEPLOY_ENV", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/api/v1", cfg.APIBasePath)
	assert.Equal(t, "ecoprenda.db", cfg.DBPath)
	assert.Equal(t, int64(6<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, 1.0, cfg.RateWriteRPS)
	assert.Equal(t, 5, cfg.RateWriteBurst)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Auth.AllowHeader)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, MediaConfig{Dir: "media", BaseURL: "/media"}, cfg.Media)
	assert.Equal(t, -33.4489, cfg.Map.CenterLat)
	assert.Equal(t, 0.7, cfg.Classifier.Threshold)

	// collaborators stay off without credentials
	assert.Empty(t, cfg.S3.Bucket)
	assert.Empty(t, cfg.Classifier.PAT)
	assert.Empty(t, cfg.Geocoder.APIKey)
	assert.False(t, cfg.OTEL.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "DEBUG")
	t.Setenv("LOG_LEVEL", "Warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", " api/v2/ ")
	t.Setenv("SEARCH_THRESHOLD", "0.25")
	t.Setenv("RATE_WRITE_RPS", "0.5")
	t.Setenv("RATE_WRITE_BURST", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ecoprenda.cl , ,http://localhost:5173 ")
	t.Setenv("ENABLE_HSTS", "on")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("AUTH_ALLOW_HEADER", "off")
	t.Setenv("MEDIA_BASE_URL", "/fotos/")
	t.Setenv("S3_BUCKET", "prendas")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.ecoprenda.cl/")
	t.Setenv("S3_PATH_STYLE", "1")
	t.Setenv("CLARIFAI_BASE_URL", "http://clarifai.local///")
	t.Setenv("MAP_CENTER_LAT", "-36.82")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "debug", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "/api/v2", cfg.APIBasePath)
	assert.Equal(t, 0.25, cfg.SearchThreshold)
	assert.Equal(t, 0.5, cfg.RateWriteRPS)
	assert.Equal(t, 2, cfg.RateWriteBurst)
	assert.Equal(t, []string{"https://ecoprenda.cl", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Security.EnableHSTS)
	assert.False(t, cfg.Auth.AllowHeader)
	assert.Equal(t, "/fotos", cfg.Media.BaseURL)
	assert.Equal(t, "https://cdn.ecoprenda.cl", cfg.S3.PublicBaseURL)
	assert.True(t, cfg.S3.PathStyle)
	assert.Equal(t, "http://clarifai.local", cfg.Classifier.BaseURL)
	assert.Equal(t, -36.82, cfg.Map.CenterLat)
	assert.Equal(t, 0.1, cfg.OTEL.SampleRatio)
}

func TestLoad_UnknownGinModeFallsBackToRelease(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIN_MODE", "verbose")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.GinMode)
}

func TestLoad_MalformedValuesAreErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_RPS", "muchos")
	t.Setenv("RATE_BURST", "3.5")
	t.Setenv("JWT_TTL", "1 dia")
	t.Setenv("SWAGGER_ENABLED", "quizas")

	cfg, err := Load()
	require.Error(t, err)
	for _, want := range []string{`RATE_RPS="muchos"`, `RATE_BURST="3.5"`, `JWT_TTL="1 dia"`, `SWAGGER_ENABLED="quizas": not a boolean`} {
		assert.Contains(t, err.Error(), want)
	}
	// the failed keys keep their defaults
	assert.Equal(t, 5.0, cfg.RateRPS)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TTL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"timeouts", map[string]string{"WRITE_TIMEOUT": "0s"}, "WRITE_TIMEOUT"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES must be > 0"},
		{"body bytes", map[string]string{"MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES must be > 0"},
		{"search threshold", map[string]string{"SEARCH_THRESHOLD": "1.5"}, "SEARCH_THRESHOLD"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS must be >= 0"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST must be >= 1"},
		{"write rps", map[string]string{"RATE_WRITE_RPS": "-0.1"}, "RATE_WRITE_RPS must be >= 0"},
		{"write burst", map[string]string{"RATE_WRITE_BURST": "-2"}, "RATE_WRITE_BURST must be >= 0"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1h"}, "HSTS_MAX_AGE"},
		{"secret required", map[string]string{"AUTH_ALLOW_HEADER": "false"}, "JWT_SECRET is required"},
		{"short secret", map[string]string{"JWT_SECRET": "corto"}, "at least 16 bytes"},
		{"jwt ttl", map[string]string{"JWT_TTL": "-5m"}, "JWT_TTL must be > 0"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL must be > 0"},
		{"classifier threshold", map[string]string{"CLASSIFIER_THRESHOLD": "2"}, "CLASSIFIER_THRESHOLD"},
		{"classifier retries", map[string]string{"CLASSIFIER_MAX_RETRIES": "-1"}, "CLASSIFIER_MAX_RETRIES"},
		{"client timeout", map[string]string{"HTTP_CLIENT_TIMEOUT": "0s"}, "HTTP_CLIENT_TIMEOUT"},
		{"map lat", map[string]string{"MAP_CENTER_LAT": "91"}, "MAP_CENTER_LAT"},
		{"map lng", map[string]string{"MAP_CENTER_LNG": "-181"}, "MAP_CENTER_LNG"},
		{"sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.1"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_BURST", "0")
	t.Setenv("MAP_CENTER_LAT", "100")
	t.Setenv("IDLE_TIMEOUT", "pronto")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "RATE_BURST must be >= 1")
	assert.Contains(t, msg, "MAP_CENTER_LAT")
	assert.Contains(t, msg, `IDLE_TIMEOUT="pronto"`)
}

func TestBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":          "/",
		" / ":       "/",
		"v1":        "/v1",
		"/api/v1/":  "/api/v1",
		"//api//":   "/api",
		"api/v1///": "/api/v1",
	} {
		assert.Equal(t, want, basePath(in), "basePath(%q)", in)
	}
}

func TestEnv_List(t *testing.T) {
	t.Setenv("LISTA", " a, ,b ,")
	t.Setenv("VACIA", " ")
	e := &env{}
	assert.Equal(t, []string{"a", "b"}, e.list("LISTA"))
	assert.Nil(t, e.list("VACIA"))
	assert.Empty(t, e.errs)
}
