package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

type Config struct {
	Env  string
	HTTP struct {
		Addr           string
		AllowedOrigins []string
	}
	DB struct {
		Driver string
		DSN    string
	}
	OIDC struct {
		Issuer       string
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}
	Upload struct {
		Dir        string
		MaxBytes   int64
		Extensions []string
	}
	Form struct {
		ContactMode validate.ContactMode
		LooseName   bool
		MessageMax  int
		// SubmitDelay is the cosmetic pause before the browser posts the form.
		SubmitDelay time.Duration
		// BannerDuration is how long the "message sent" banner stays visible.
		BannerDuration time.Duration
	}
	RateLimit struct {
		PerMinute int
		Burst     int
	}
	AdminEmail      string
	SessionLifetime time.Duration
	InsecureCookies bool
}

// OIDCEnabled reports whether single sign-on is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDC.Issuer != ""
}

// Load reads config from .env, the environment (CONTACT_ prefix) and an
// optional joe-contact.yaml.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional .env file

	v := viper.New()
	v.SetEnvPrefix("CONTACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("joe-contact")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional config file

	v.SetDefault("env", "production")
	v.SetDefault("http.addr", ":10000")
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "file:contact.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	v.SetDefault("session.lifetime", "12h")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", upload.DefaultMaxBytes)
	v.SetDefault("upload.extensions", strings.Join(upload.DefaultExtensions, ","))
	v.SetDefault("form.contact_mode", string(validate.ContactEmail))
	v.SetDefault("form.message_max", validate.MessageMaxLength)
	v.SetDefault("form.submit_delay", "500ms")
	v.SetDefault("form.banner_duration", "4s")
	v.SetDefault("ratelimit.per_minute", 10)
	v.SetDefault("ratelimit.burst", 5)

	cfg := &Config{}
	cfg.Env = v.GetString("env")
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.HTTP.AllowedOrigins = splitList(v.GetString("http.allowed_origins"))
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.OIDC.Issuer = v.GetString("oidc.issuer")
	cfg.OIDC.ClientID = v.GetString("oidc.client_id")
	cfg.OIDC.ClientSecret = v.GetString("oidc.client_secret")
	cfg.OIDC.RedirectURL = v.GetString("oidc.redirect_url")
	cfg.Upload.Dir = v.GetString("upload.dir")
	cfg.Upload.MaxBytes = v.GetInt64("upload.max_bytes")
	cfg.Upload.Extensions = splitList(v.GetString("upload.extensions"))
	cfg.Form.LooseName = v.GetBool("form.loose_name")
	cfg.Form.MessageMax = v.GetInt("form.message_max")
	cfg.RateLimit.PerMinute = v.GetInt("ratelimit.per_minute")
	cfg.RateLimit.Burst = v.GetInt("ratelimit.burst")
	cfg.AdminEmail = v.GetString("admin_email")
	cfg.InsecureCookies = v.GetBool("insecure_cookies")

	mode, err := validate.ParseContactMode(v.GetString("form.contact_mode"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONTACT_FORM_CONTACT_MODE: %w", err)
	}
	cfg.Form.ContactMode = mode

	for key, dst := range map[string]*time.Duration{
		"session.lifetime":     &cfg.SessionLifetime,
		"form.submit_delay":    &cfg.Form.SubmitDelay,
		"form.banner_duration": &cfg.Form.BannerDuration,
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid CONTACT_%s: %w", envName(key), err)
		}
		*dst = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required and mutually dependent settings.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("CONTACT_DB_DRIVER must be sqlite3, mysql, or postgres, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("CONTACT_DB_DSN is required")
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("CONTACT_UPLOAD_DIR is required")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("CONTACT_UPLOAD_MAX_BYTES must be positive")
	}
	if c.Form.SubmitDelay < 0 {
		return fmt.Errorf("CONTACT_FORM_SUBMIT_DELAY must not be negative")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("CONTACT_RATELIMIT_PER_MINUTE and CONTACT_RATELIMIT_BURST must be positive")
	}
	if c.OIDCEnabled() {
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("CONTACT_OIDC_CLIENT_ID is required when CONTACT_OIDC_ISSUER is set")
		}
		if c.OIDC.ClientSecret == "" {
			return fmt.Errorf("CONTACT_OIDC_CLIENT_SECRET is required when CONTACT_OIDC_ISSUER is set")
		}
		if c.OIDC.RedirectURL == "" {
			return fmt.Errorf("CONTACT_OIDC_REDIRECT_URL is required when CONTACT_OIDC_ISSUER is set")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
