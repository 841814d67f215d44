package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the API process reads from the environment.
// Load it once in main and pass the pieces into constructors.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Vendor    VendorConfig
	Poll      PollConfig
	Translate TranslateConfig
	Stats     StatsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional outside production; without DB_HOST the process keeps
// batch calls and audit events in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts disable, require, verify-ca, verify-full.
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// DashboardPassword is the shared operator password checked at login.
	DashboardPassword string
	// AdminPassword and ViewerPassword are optional and grant those roles.
	AdminPassword  string
	ViewerPassword string
}

type VendorConfig struct {
	APIKey             string
	BaseURL            string
	AgentID            string
	AgentPhoneNumberID string

	SubmitTimeout time.Duration
	StatusTimeout time.Duration
	ReadTimeout   time.Duration
	RatePerSecond float64
}

type PollConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
	// MaxActive caps concurrently polled batches per agent.
	MaxActive int
}

type TranslateConfig struct {
	URL     string
	APIKey  string
	Source  string
	Target  string
	Timeout time.Duration
}

type StatsConfig struct {
	CacheTTL time.Duration
	PageSize int
}

func Load() (*Config, error) {
	c := &Config{}
	p := &parser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = p.intVar("APP_PORT", 8080)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = p.intVar("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = p.intVar("REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = p.intVar("REDIS_DB", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = p.durationVar("JWT_ACCESS_TTL", 0)
	c.Auth.RefreshTokenTTL = p.durationVar("JWT_REFRESH_TTL", 0)
	c.Auth.DashboardPassword = os.Getenv("DASHBOARD_PASSWORD")
	c.Auth.AdminPassword = os.Getenv("DASHBOARD_ADMIN_PASSWORD")
	c.Auth.ViewerPassword = os.Getenv("DASHBOARD_VIEWER_PASSWORD")

	c.Vendor.APIKey = strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY"))
	c.Vendor.BaseURL = strings.TrimSpace(os.Getenv("ELEVENLABS_BASE_URL"))
	c.Vendor.AgentID = strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_ID"))
	c.Vendor.AgentPhoneNumberID = strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_PHONE_NUMBER_ID"))
	c.Vendor.SubmitTimeout = p.durationVar("ELEVENLABS_SUBMIT_TIMEOUT", 30*time.Second)
	c.Vendor.StatusTimeout = p.durationVar("ELEVENLABS_STATUS_TIMEOUT", 15*time.Second)
	c.Vendor.ReadTimeout = p.durationVar("ELEVENLABS_READ_TIMEOUT", 15*time.Second)
	c.Vendor.RatePerSecond = p.floatVar("ELEVENLABS_RATE_PER_SEC", 5)

	c.Poll.InitialDelay = p.durationVar("POLL_INITIAL_DELAY", 5*time.Second)
	c.Poll.Interval = p.durationVar("POLL_INTERVAL", 10*time.Second)
	c.Poll.MaxAttempts = p.intVar("POLL_MAX_ATTEMPTS", 30)
	c.Poll.MaxActive = p.intVar("MAX_ACTIVE_POLLS", 20)

	c.Translate.URL = strings.TrimSpace(os.Getenv("TRANSLATE_URL"))
	c.Translate.APIKey = os.Getenv("TRANSLATE_API_KEY")
	c.Translate.Source = envOr("TRANSLATE_SOURCE", "en")
	c.Translate.Target = envOr("TRANSLATE_TARGET", "es")
	c.Translate.Timeout = p.durationVar("TRANSLATE_TIMEOUT", 10*time.Second)

	c.Stats.CacheTTL = p.durationVar("STATS_CACHE_TTL", 2*time.Minute)
	c.Stats.PageSize = p.intVar("STATS_PAGE_SIZE", 100)

	if err := joinErrors(p.errs); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the loaded values and fills environment-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_HOST is required in production"))
		}
	} else {
		if !validPort(c.DB.Port) {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("REDIS_HOST is required in production"))
		}
	} else if !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.DashboardPassword == "" {
		errs = append(errs, errors.New("DASHBOARD_PASSWORD is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Vendor.APIKey == "" {
		errs = append(errs, errors.New("ELEVENLABS_API_KEY is required"))
	}
	if c.Vendor.BaseURL != "" {
		if u, err := url.Parse(c.Vendor.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("ELEVENLABS_BASE_URL must be an absolute URL, got %q", c.Vendor.BaseURL))
		}
	}
	for name, d := range map[string]time.Duration{
		"ELEVENLABS_SUBMIT_TIMEOUT": c.Vendor.SubmitTimeout,
		"ELEVENLABS_STATUS_TIMEOUT": c.Vendor.StatusTimeout,
		"ELEVENLABS_READ_TIMEOUT":   c.Vendor.ReadTimeout,
		"POLL_INITIAL_DELAY":        c.Poll.InitialDelay,
		"POLL_INTERVAL":             c.Poll.Interval,
		"STATS_CACHE_TTL":           c.Stats.CacheTTL,
		"TRANSLATE_TIMEOUT":         c.Translate.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Vendor.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("ELEVENLABS_RATE_PER_SEC must not be negative, got %g", c.Vendor.RatePerSecond))
	}

	if c.Poll.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.Poll.MaxAttempts))
	}
	if c.Poll.MaxActive <= 0 {
		errs = append(errs, fmt.Errorf("MAX_ACTIVE_POLLS must be positive, got %d", c.Poll.MaxActive))
	}

	if c.Stats.PageSize <= 0 || c.Stats.PageSize > 100 {
		errs = append(errs, fmt.Errorf("STATS_PAGE_SIZE must be between 1 and 100, got %d", c.Stats.PageSize))
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) HasDatabase() bool { return c.DB.Host != "" }

func (c *Config) HasRedis() bool { return c.Redis.Host != "" }

func (c *Config) PostgresDSN() string {
	// Contains the password; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the URL form the migration driver needs.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// PollBudget is the longest a single polling task can run.
func (c *Config) PollBudget() time.Duration {
	return c.Poll.InitialDelay + time.Duration(c.Poll.MaxAttempts)*(c.Poll.Interval+c.Vendor.StatusTimeout)
}

type parser struct {
	errs []error
}

func (p *parser) intVar(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return def
	}
	return d
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
