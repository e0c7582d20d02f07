package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Addr        string `mapstructure:"addr"`
	Environment string `mapstructure:"environment"`
	LogMode     string `mapstructure:"log_mode"`
	DevInsecure bool   `mapstructure:"dev_insecure"`

	DBDriver   string `mapstructure:"db_driver"`
	DBDSN      string `mapstructure:"db_dsn"`
	DBDialect  string `mapstructure:"db_dialect"`
	DBMigrate  bool   `mapstructure:"db_migrate"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`

	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Tenant        TenantConfig        `mapstructure:"tenant"`
	Email         EmailConfig         `mapstructure:"email"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	DB            DBTLSConfig         `mapstructure:"db"`
	TLS           TLSConfig           `mapstructure:"tls"`
}

type WebhookConfig struct {
	GitHubSecret string `mapstructure:"github_secret"`
}

type TenantConfig struct {
	RootDomain    string   `mapstructure:"root_domain"`
	CanonicalHost string   `mapstructure:"canonical_host"`
	Reserved      []string `mapstructure:"reserved"`
	Header        string   `mapstructure:"header"`
}

type EmailConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	From    string        `mapstructure:"from"`
	ReplyTo string        `mapstructure:"reply_to"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DeliveryConfig struct {
	Retries        int           `mapstructure:"retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type CollaboratorsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// QueueCapacity bounds each job queue topic, in memory and in redis.
	QueueCapacity int `mapstructure:"queue_capacity"`
}

type AuthConfig struct {
	Events BearerAuth `mapstructure:"events"`
	JWT    JWTAuth    `mapstructure:"jwt"`
	Audit  AuditAuth  `mapstructure:"audit"`
}

type BearerAuth struct {
	Token string `mapstructure:"token"`
}

type JWTAuth struct {
	Enabled     bool   `mapstructure:"enabled"`
	Issuer      string `mapstructure:"issuer"`
	Audience    string `mapstructure:"audience"`
	RolesClaim  string `mapstructure:"roles_claim"`
	HS256Secret string `mapstructure:"hs256_secret"`
}

type AuditAuth struct {
	LogFile string `mapstructure:"log_file"`
}

type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	WebhookPerMinute int  `mapstructure:"webhook_per_min"`
	EventsPerMinute  int  `mapstructure:"events_per_min"`
}

type DBTLSConfig struct {
	SSLMode     string `mapstructure:"sslmode"`
	SSLRootCert string `mapstructure:"sslrootcert"`
	SSLCert     string `mapstructure:"sslcert"`
	SSLKey      string `mapstructure:"sslkey"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// defaults lists every key. Viper only maps environment variables onto keys
// it already knows, so keys without a real default are registered empty.
var defaults = map[string]interface{}{
	"addr":         ":8080",
	"environment":  EnvDevelopment,
	"log_mode":     "",
	"dev_insecure": false,

	"db_driver":   "",
	"db_dsn":      "",
	"db_dialect":  "",
	"db_migrate":  true,
	"db_host":     "",
	"db_port":     "",
	"db_name":     "",
	"db_user":     "",
	"db_password": "",

	"webhook.github_secret": "",

	"tenant.root_domain":    "",
	"tenant.canonical_host": "",
	"tenant.reserved":       "www,api,app,admin,mail,ftp",
	"tenant.header":         "",

	"email.api_key":  "",
	"email.base_url": "https://api.resend.com",
	"email.from":     "",
	"email.reply_to": "",
	"email.timeout":  15 * time.Second,

	"delivery.retries":         3,
	"delivery.initial_backoff": 500 * time.Millisecond,
	"delivery.max_backoff":     5 * time.Second,
	"delivery.attempt_timeout": 10 * time.Second,

	"collaborators.timeout": 2 * time.Second,

	"redis.addr":           "",
	"redis.password":       "",
	"redis.db":             0,
	"redis.queue_capacity": 10000,

	"auth.events.token":     "",
	"auth.jwt.enabled":      false,
	"auth.jwt.issuer":       "",
	"auth.jwt.audience":     "",
	"auth.jwt.roles_claim":  "roles",
	"auth.jwt.hs256_secret": "",
	"auth.audit.log_file":   "",

	"rate_limit.enabled":         false,
	"rate_limit.webhook_per_min": 600,
	"rate_limit.events_per_min":  240,

	"db.sslmode":     "",
	"db.sslrootcert": "",
	"db.sslcert":     "",
	"db.sslkey":      "",

	"tls.enabled":   false,
	"tls.cert_file": "",
	"tls.key_file":  "",
}

// LoadFromEnv reads LEADFLOW_* variables and an optional config.yaml.
func LoadFromEnv() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/leadflow/")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Tenant.Reserved = normalizeList(cfg.Tenant.Reserved)
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if strings.TrimSpace(cfg.LogMode) == "" {
		cfg.LogMode = cfg.Environment
	}
	if strings.TrimSpace(cfg.Tenant.CanonicalHost) == "" {
		cfg.Tenant.CanonicalHost = cfg.Tenant.RootDomain
	}
	if cfg.DBDialect == "" {
		cfg.DBDialect = dialectForDriver(cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = buildDSNFromParts(cfg)
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "LEADFLOW_ADDR must not be empty")
	}
	if c.Environment != EnvProduction && c.Environment != EnvDevelopment {
		problems = append(problems, "LEADFLOW_ENVIRONMENT must be one of: production, development")
	}
	if strings.TrimSpace(c.Webhook.GitHubSecret) == "" {
		problems = append(problems, "LEADFLOW_WEBHOOK_GITHUB_SECRET is required")
	}
	if strings.TrimSpace(c.Email.APIKey) == "" {
		problems = append(problems, "LEADFLOW_EMAIL_API_KEY is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email.From)); err != nil {
		problems = append(problems, "LEADFLOW_EMAIL_FROM must be a valid email address")
	}
	if u, err := url.Parse(strings.TrimSpace(c.Email.BaseURL)); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "LEADFLOW_EMAIL_BASE_URL must be an absolute URL")
	}
	if !validDomain(c.Tenant.RootDomain) {
		problems = append(problems, "LEADFLOW_TENANT_ROOT_DOMAIN must be a domain name such as example.com")
	}
	if c.Delivery.Retries < 0 {
		problems = append(problems, "LEADFLOW_DELIVERY_RETRIES must not be negative")
	}
	if c.Delivery.InitialBackoff < 0 || c.Delivery.MaxBackoff < c.Delivery.InitialBackoff {
		problems = append(problems, "LEADFLOW_DELIVERY_MAX_BACKOFF must be at least LEADFLOW_DELIVERY_INITIAL_BACKOFF")
	}
	if c.Delivery.AttemptTimeout <= 0 {
		problems = append(problems, "LEADFLOW_DELIVERY_ATTEMPT_TIMEOUT must be positive")
	}
	if c.Collaborators.Timeout <= 0 {
		problems = append(problems, "LEADFLOW_COLLABORATORS_TIMEOUT must be positive")
	}
	if c.Redis.QueueCapacity < 0 {
		problems = append(problems, "LEADFLOW_REDIS_QUEUE_CAPACITY must not be negative")
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		problems = append(problems, "database connection is not configured; set LEADFLOW_DB_DSN or LEADFLOW_DB_HOST/LEADFLOW_DB_PORT/LEADFLOW_DB_NAME/LEADFLOW_DB_USER/LEADFLOW_DB_PASSWORD")
	}
	if c.DBDSN != "" && c.DBDriver == "" {
		problems = append(problems, "LEADFLOW_DB_DRIVER is required when LEADFLOW_DB_DSN is set")
	}
	if c.DBDriver != "" && c.DBDialect != "postgres" && c.DBDialect != "sqlite" {
		problems = append(problems, "LEADFLOW_DB_DIALECT must be one of: postgres, sqlite")
	}
	if c.DBDSN == "" && hasAnyDBParts(c) && !hasAllDBParts(c) {
		problems = append(problems, "incomplete split DB config; set all of LEADFLOW_DB_HOST/LEADFLOW_DB_PORT/LEADFLOW_DB_NAME/LEADFLOW_DB_USER/LEADFLOW_DB_PASSWORD")
	}
	if !c.DevInsecure {
		eventsAuthConfigured := strings.TrimSpace(c.Auth.Events.Token) != "" || c.Auth.JWT.Enabled
		if !eventsAuthConfigured {
			problems = append(problems, "events auth is not configured; set LEADFLOW_AUTH_EVENTS_TOKEN or enable JWT, or explicitly set LEADFLOW_DEV_INSECURE=true for local development only")
		}
	}
	if c.Auth.JWT.Enabled {
		if strings.TrimSpace(c.Auth.JWT.Issuer) == "" {
			problems = append(problems, "LEADFLOW_AUTH_JWT_ISSUER is required when LEADFLOW_AUTH_JWT_ENABLED=true")
		}
		if strings.TrimSpace(c.Auth.JWT.Audience) == "" {
			problems = append(problems, "LEADFLOW_AUTH_JWT_AUDIENCE is required when LEADFLOW_AUTH_JWT_ENABLED=true")
		}
		if strings.TrimSpace(c.Auth.JWT.HS256Secret) == "" {
			problems = append(problems, "LEADFLOW_AUTH_JWT_HS256_SECRET is required when LEADFLOW_AUTH_JWT_ENABLED=true")
		}
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CertFile) == "" {
		problems = append(problems, "LEADFLOW_TLS_CERT_FILE is required when LEADFLOW_TLS_ENABLED=true")
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.KeyFile) == "" {
		problems = append(problems, "LEADFLOW_TLS_KEY_FILE is required when LEADFLOW_TLS_ENABLED=true")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

type StartupSummary struct {
	Environment      string
	ActivityLogMode  string
	QueueMode        string
	WebhookProviders []string
	RootDomain       string
	CanonicalHost    string
	DeliveryRetries  int
	JWTEnabled       bool
	TLSEnabled       bool
	RateLimit        bool
	DevInsecure      bool
}

func (c Config) Summary() StartupSummary {
	activity := "memory"
	if c.DBDriver != "" && c.DBDSN != "" {
		activity = "sql:" + c.DBDialect
	}
	queue := "memory"
	if strings.TrimSpace(c.Redis.Addr) != "" {
		queue = "redis"
	}
	return StartupSummary{
		Environment:      c.Environment,
		ActivityLogMode:  activity,
		QueueMode:        queue,
		WebhookProviders: []string{"github"},
		RootDomain:       c.Tenant.RootDomain,
		CanonicalHost:    c.Tenant.CanonicalHost,
		DeliveryRetries:  c.Delivery.Retries,
		JWTEnabled:       c.Auth.JWT.Enabled,
		TLSEnabled:       c.TLS.Enabled,
		RateLimit:        c.RateLimit.Enabled,
		DevInsecure:      c.DevInsecure,
	}
}

func validDomain(raw string) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || len(raw) > 253 || strings.ContainsAny(raw, "/:@ ") {
		return false
	}
	labels := strings.Split(raw, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return false
			}
		}
	}
	return true
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func dialectForDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.TrimSpace(driver)
	}
}

func hasAnyDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" ||
		strings.TrimSpace(c.DBPort) != "" ||
		strings.TrimSpace(c.DBName) != "" ||
		strings.TrimSpace(c.DBUser) != "" ||
		strings.TrimSpace(c.DBPassword) != ""
}

func hasAllDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" &&
		strings.TrimSpace(c.DBPort) != "" &&
		strings.TrimSpace(c.DBName) != "" &&
		strings.TrimSpace(c.DBUser) != "" &&
		strings.TrimSpace(c.DBPassword) != ""
}

func buildDSNFromParts(c Config) string {
	if !hasAllDBParts(c) {
		return ""
	}
	port := strings.TrimSpace(c.DBPort)
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	sslMode := strings.TrimSpace(c.DB.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%s", c.DBHost, port),
		Path:   "/" + url.PathEscape(c.DBName),
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if v := strings.TrimSpace(c.DB.SSLRootCert); v != "" {
		q.Set("sslrootcert", v)
	}
	if v := strings.TrimSpace(c.DB.SSLCert); v != "" {
		q.Set("sslcert", v)
	}
	if v := strings.TrimSpace(c.DB.SSLKey); v != "" {
		q.Set("sslkey", v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
