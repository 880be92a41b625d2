package config

import (
	"fmt"
	"net/url"

	pkgconfig "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/config"
)

// Config holds all configuration for the workflow orchestrator.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ORCHESTRATOR_HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ftthops"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ftthops_secret"`
	PostgresDB   string `env:"ORCHESTRATOR_DB_NAME" envDefault:"orchestrator_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Statistics cache TTL (seconds)
	StatisticsCacheTTL int `env:"STATISTICS_CACHE_TTL_SECONDS" envDefault:"60"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream system URLs
	BillingServiceURL string `env:"BILLING_SERVICE_URL" envDefault:"http://localhost:8101"`
	AddressServiceURL string `env:"ADDRESS_SERVICE_URL" envDefault:"http://localhost:8102"`
	RadiusServiceURL  string `env:"RADIUS_SERVICE_URL" envDefault:"http://localhost:8103"`
	IPAMServiceURL    string `env:"IPAM_SERVICE_URL" envDefault:"http://localhost:8104"`
	OLTServiceURL     string `env:"OLT_SERVICE_URL" envDefault:"http://localhost:8105"`
	CPEServiceURL     string `env:"CPE_SERVICE_URL" envDefault:"http://localhost:8106"`

	// Circuit breaker settings for downstream system calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Per-system step timeouts (seconds). Each step call gets its own
	// context.WithTimeout so a slow downstream cannot stall the whole
	// workflow indefinitely. OLT and CPE operations talk to hardware and
	// get a longer allowance.
	BillingTimeout int `env:"STEP_BILLING_TIMEOUT" envDefault:"5"`
	AddressTimeout int `env:"STEP_ADDRESS_TIMEOUT" envDefault:"5"`
	RadiusTimeout  int `env:"STEP_RADIUS_TIMEOUT" envDefault:"5"`
	IPAMTimeout    int `env:"STEP_IPAM_TIMEOUT" envDefault:"5"`
	OLTTimeout     int `env:"STEP_OLT_TIMEOUT" envDefault:"15"`
	CPETimeout     int `env:"STEP_CPE_TIMEOUT" envDefault:"15"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS origins allowed to call the API (operator dashboards)
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.StatisticsCacheTTL < 1 {
		return fmt.Errorf("STATISTICS_CACHE_TTL_SECONDS must be positive, got %d", c.StatisticsCacheTTL)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	// Validate downstream system URLs used by workflow steps.
	for name, rawURL := range map[string]string{
		"BILLING_SERVICE_URL": c.BillingServiceURL,
		"ADDRESS_SERVICE_URL": c.AddressServiceURL,
		"RADIUS_SERVICE_URL":  c.RadiusServiceURL,
		"IPAM_SERVICE_URL":    c.IPAMServiceURL,
		"OLT_SERVICE_URL":     c.OLTServiceURL,
		"CPE_SERVICE_URL":     c.CPEServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
