// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, external
// collaborators (image storage, classifier, geocoder), and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "ecoprenda-backend")
	Environment string  // DEPLOY_ENV (deployment.environment resource attribute)
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines bearer-token settings.
type AuthConfig struct {
	Secret      string        // JWT_SECRET (HS256 key)
	Issuer      string        // JWT_ISSUER
	TTL         time.Duration // JWT_TTL
	AllowHeader bool          // AUTH_ALLOW_HEADER: accept X-User-ID when no token is sent
}

// MediaConfig defines where listing images are stored.
type MediaConfig struct {
	Dir     string // MEDIA_DIR (local fallback root)
	BaseURL string // MEDIA_BASE_URL (public prefix of local files)
}

// S3Config defines the S3-compatible image bucket. An empty Bucket disables it.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for MinIO / R2 etc.
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// ClassifierConfig defines the Clarifai image classifier. An empty PAT disables it.
type ClassifierConfig struct {
	PAT        string
	UserID     string
	AppID      string
	ModelID    string
	BaseURL    string
	Threshold  float64 // minimum confidence for a suggestion [0,1]
	MaxRetries int
}

// GeocoderConfig defines the Geoapify geocoder. An empty APIKey disables it.
type GeocoderConfig struct {
	APIKey  string
	BaseURL string
}

// MapConfig holds the default center of the public map.
type MapConfig struct {
	CenterLat float64
	CenterLng float64
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap, large enough for one image upload
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath          string  // SQLite path
	SearchThreshold float64 // minimum relevance for free-text listing search [0,1]

	// Rate limiting
	RateRPS        float64 // read tokens per second (>= 0)
	RateBurst      int     // read bucket size (>= 1)
	RateWriteRPS   float64 // write tokens per second; 0 reuses RateRPS
	RateWriteBurst int     // write bucket size; 0 reuses RateBurst

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig
	Auth     AuthConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Collaborators
	Media             MediaConfig
	S3                S3Config
	Classifier        ClassifierConfig
	Geocoder          GeocoderConfig
	HTTPClientTimeout time.Duration
	Map               MapConfig

	// Observability
	OTEL OTELConfig
}

// Load reads the configuration from the environment. Unset or empty
// variables take their defaults; a variable that is set but does not parse is
// an error, as is any value outside its allowed range. All problems are
// reported together.
func Load() (Config, error) {
	e := &env{}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(e.int("MAX_BODY_BYTES", 6<<20)),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    basePath(e.str("API_BASE_PATH", "/api/v1")),

		DBPath:          e.str("DB_PATH", "ecoprenda.db"),
		SearchThreshold: e.float("SEARCH_THRESHOLD", 0.1),

		RateRPS:        e.float("RATE_RPS", 5.0),
		RateBurst:      e.int("RATE_BURST", 10),
		RateWriteRPS:   e.float("RATE_WRITE_RPS", 1.0),
		RateWriteBurst: e.int("RATE_WRITE_BURST", 5),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		Auth: AuthConfig{
			Secret:      e.str("JWT_SECRET", ""),
			Issuer:      e.str("JWT_ISSUER", "ecoprenda"),
			TTL:         e.dur("JWT_TTL", 24*time.Hour),
			AllowHeader: e.bool("AUTH_ALLOW_HEADER", true),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		Media: MediaConfig{
			Dir:     e.str("MEDIA_DIR", "media"),
			BaseURL: e.url("MEDIA_BASE_URL", "/media"),
		},
		S3: S3Config{
			Bucket:          e.str("S3_BUCKET", ""),
			Region:          e.str("S3_REGION", "us-east-1"),
			Endpoint:        e.str("S3_ENDPOINT", ""),
			PublicBaseURL:   e.url("S3_PUBLIC_BASE_URL", ""),
			AccessKeyID:     e.str("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: e.str("S3_SECRET_ACCESS_KEY", ""),
			PathStyle:       e.bool("S3_PATH_STYLE", false),
		},
		Classifier: ClassifierConfig{
			PAT:        e.str("CLARIFAI_PAT", ""),
			UserID:     e.str("CLARIFAI_USER_ID", "clarifai"),
			AppID:      e.str("CLARIFAI_APP_ID", "main"),
			ModelID:    e.str("CLARIFAI_MODEL_ID", "apparel-classification-v2"),
			BaseURL:    e.url("CLARIFAI_BASE_URL", "https://api.clarifai.com"),
			Threshold:  e.float("CLASSIFIER_THRESHOLD", 0.7),
			MaxRetries: e.int("CLASSIFIER_MAX_RETRIES", 2),
		},
		Geocoder: GeocoderConfig{
			APIKey:  e.str("GEOAPIFY_API_KEY", ""),
			BaseURL: e.url("GEOAPIFY_BASE_URL", "https://api.geoapify.com"),
		},
		HTTPClientTimeout: e.dur("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		Map: MapConfig{
			CenterLat: e.float("MAP_CENTER_LAT", -33.4489),
			CenterLng: e.float("MAP_CENTER_LNG", -70.6693),
		},

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "ecoprenda-backend"),
			Environment: e.str("DEPLOY_ENV", "development"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate returns one error per violated constraint.
func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	unit := func(f float64) bool { return f >= 0 && f <= 1 }

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"READ_TIMEOUT, READ_HEADER_TIMEOUT, WRITE_TIMEOUT and IDLE_TIMEOUT must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.MaxBodyBytes > 0, "MAX_BODY_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(unit(c.SearchThreshold), "SEARCH_THRESHOLD must be between 0 and 1")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.RateWriteRPS >= 0, "RATE_WRITE_RPS must be >= 0")
	check(c.RateWriteBurst >= 0, "RATE_WRITE_BURST must be >= 0")

	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.Auth.Secret != "" || c.Auth.AllowHeader, "JWT_SECRET is required when AUTH_ALLOW_HEADER is off")
	check(c.Auth.Secret == "" || len(c.Auth.Secret) >= 16, "JWT_SECRET must be at least 16 bytes")
	check(c.Auth.TTL > 0, "JWT_TTL must be > 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")

	check(strings.TrimSpace(c.Media.Dir) != "", "MEDIA_DIR must not be empty")
	check(unit(c.Classifier.Threshold), "CLASSIFIER_THRESHOLD must be between 0 and 1")
	check(c.Classifier.MaxRetries >= 0, "CLASSIFIER_MAX_RETRIES must be >= 0")
	check(c.HTTPClientTimeout > 0, "HTTP_CLIENT_TIMEOUT must be > 0")
	check(c.Map.CenterLat >= -90 && c.Map.CenterLat <= 90, "MAP_CENTER_LAT must be within [-90,90]")
	check(c.Map.CenterLng >= -180 && c.Map.CenterLng <= 180, "MAP_CENTER_LNG must be within [-180,180]")

	check(unit(c.OTEL.SampleRatio), "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and remembers the ones that failed to parse.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", k, v, err))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

// url reads a base URL or path prefix and drops trailing slashes.
func (e *env) url(k, def string) string {
	return strings.TrimRight(e.str(k, def), "/")
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return n
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return d
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, errors.New("not a boolean"))
	return def
}

// list splits a comma-separated variable, dropping empty items.
func (e *env) list(k string) []string {
	v, ok := e.lookup(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// basePath returns p with exactly one leading slash and no trailing one;
// an empty value mounts the API at the root.
func basePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
