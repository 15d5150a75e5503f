package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/cpauth/internal/oauth"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/validation"
	"github.com/dropDatabas3/cpauth/internal/webhook"
)

var (
	// ErrConfigMissing falta un valor obligatorio (claves, seeds) para el entorno.
	ErrConfigMissing = errors.New("config: missing required value")
	// ErrConfigInvalid un valor existe pero no es utilizable.
	ErrConfigInvalid = errors.New("config: invalid value")
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"` // vacío = /metrics deshabilitado
		// Proxies delante del servicio; solo desde ellos se confía en X-Forwarded-For.
		TrustedProxies []string `yaml:"trusted_proxies"`
		// Orígenes de la consola admin (CORS y chequeo de Origin).
		AllowedOrigins    []string      `yaml:"allowed_origins"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
		File  struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxBackups int    `yaml:"max_backups"`
			MaxAgeDays int    `yaml:"max_age_days"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"log"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string        `yaml:"addr"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			Prefix   string        `yaml:"prefix"`
			Timeout  time.Duration `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Database struct {
		Driver          string        `yaml:"driver"` // memory | postgres
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		MinConns        int32         `yaml:"min_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		Migrate         bool          `yaml:"migrate"`
	} `yaml:"database"`

	SecretBox struct {
		// base64(32 bytes). Previous queda como secundaria durante una rotación.
		Key         string `yaml:"key"`
		PreviousKey string `yaml:"previous_key"`
	} `yaml:"secretbox"`

	JWT struct {
		Issuer string `yaml:"issuer"`
		// Seeds Ed25519 en base64, una por tipo de token.
		AccessSeed        string        `yaml:"access_seed"`
		RefreshSeed       string        `yaml:"refresh_seed"`
		ImpersonationSeed string        `yaml:"impersonation_seed"`
		AccessTTL         time.Duration `yaml:"access_ttl"`
		RefreshTTL        time.Duration `yaml:"refresh_ttl"`
		ImpersonationTTL  time.Duration `yaml:"impersonation_ttl"`
		Leeway            time.Duration `yaml:"leeway"`
	} `yaml:"jwt"`

	Throttle struct {
		Window            time.Duration `yaml:"window"`
		CaptchaThreshold  int           `yaml:"captcha_threshold"`
		BackoffThreshold  int           `yaml:"backoff_threshold"`
		BaseDelay         time.Duration `yaml:"base_delay"`
		MaxDelay          time.Duration `yaml:"max_delay"`
		SoftLockThreshold int           `yaml:"soft_lock_threshold"`
		SoftLockTTL       time.Duration `yaml:"soft_lock_ttl"`
	} `yaml:"throttle"`

	// Mayúsculas, minúsculas y dígitos son siempre obligatorios.
	Password struct {
		MinLength     int  `yaml:"min_length"`
		RequireSymbol bool `yaml:"require_symbol"`
		// Denylist se suma a la lista de passwords comunes incorporada.
		Denylist []string `yaml:"denylist"`
	} `yaml:"password"`

	MFA struct {
		Issuer        string        `yaml:"issuer"`
		FreshnessTTL  time.Duration `yaml:"freshness_ttl"`
		Skew          int           `yaml:"skew"`
		RecoveryCount int           `yaml:"recovery_count"`
	} `yaml:"mfa"`

	Cookies struct {
		Domain string `yaml:"domain"`
		Secure bool   `yaml:"secure"`
	} `yaml:"cookies"`

	OAuth struct {
		RequireMFA       bool          `yaml:"require_mfa"`
		FlowTTL          time.Duration `yaml:"flow_ttl"`
		PendingTTL       time.Duration `yaml:"pending_ttl"`
		ExchangeTimeout  time.Duration `yaml:"exchange_timeout"`
		DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
		Redirects        struct {
			Success string `yaml:"success"`
			MFA     string `yaml:"mfa"`
		} `yaml:"redirects"`
		Providers []oauth.ProviderConfig `yaml:"providers"`
	} `yaml:"oauth"`

	Webhooks struct {
		Tolerance time.Duration `yaml:"tolerance"`
		RecordTTL time.Duration `yaml:"record_ttl"`
		Razorpay  struct {
			Secret string `yaml:"secret"`
		} `yaml:"razorpay"`
		PayPal struct {
			BaseURL      string        `yaml:"base_url"`
			ClientID     string        `yaml:"client_id"`
			ClientSecret string        `yaml:"client_secret"`
			WebhookID    string        `yaml:"webhook_id"`
			Timeout      time.Duration `yaml:"timeout"`
		} `yaml:"paypal"`
		Routes       []webhook.Route `yaml:"routes"`
		KnownTenants []string        `yaml:"known_tenants"`
	} `yaml:"webhooks"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Rate struct {
		TableSize int       `yaml:"table_size"` // IPs en memoria por limiter
		Login     RateLimit `yaml:"login"`
		OAuth     RateLimit `yaml:"oauth"`
		Webhook   RateLimit `yaml:"webhook"`
	} `yaml:"rate"`
}

// RateLimit es un token bucket por IP. RPS 0 desactiva el límite.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PasswordPolicy arma la política de passwords de operadores.
func (c *Config) PasswordPolicy() password.Policy {
	p := password.DefaultPolicy.WithDenylist(c.Password.Denylist...)
	if c.Password.MinLength > 0 {
		p.MinLength = c.Password.MinLength
	}
	p.RequireSymbol = c.Password.RequireSymbol
	return p
}

// IsProd indica si corre con las salvaguardas de producción.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// Load lee el YAML (si path no está vacío), aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "cpauth"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "cpauth:"
	}
	if c.Cache.Redis.Timeout == 0 {
		c.Cache.Redis.Timeout = 500 * time.Millisecond
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}

	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "cpauth"
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 720 * time.Hour // 30d
	}
	if c.JWT.ImpersonationTTL == 0 {
		c.JWT.ImpersonationTTL = 30 * time.Minute
	}
	if c.JWT.Leeway == 0 {
		c.JWT.Leeway = 30 * time.Second
	}

	if c.Throttle.Window == 0 {
		c.Throttle.Window = 15 * time.Minute
	}
	if c.Throttle.CaptchaThreshold == 0 {
		c.Throttle.CaptchaThreshold = 3
	}
	if c.Throttle.BackoffThreshold == 0 {
		c.Throttle.BackoffThreshold = 5
	}
	if c.Throttle.BaseDelay == 0 {
		c.Throttle.BaseDelay = time.Second
	}
	if c.Throttle.MaxDelay == 0 {
		c.Throttle.MaxDelay = 30 * time.Second
	}
	if c.Throttle.SoftLockThreshold == 0 {
		c.Throttle.SoftLockThreshold = 20
	}
	if c.Throttle.SoftLockTTL == 0 {
		c.Throttle.SoftLockTTL = 5 * time.Minute
	}

	if c.Password.MinLength == 0 {
		c.Password.MinLength = 12
	}

	if c.MFA.Issuer == "" {
		c.MFA.Issuer = c.App.Name
	}
	if c.MFA.FreshnessTTL == 0 {
		c.MFA.FreshnessTTL = 10 * time.Minute
	}
	if c.MFA.Skew == 0 {
		c.MFA.Skew = 1
	}
	if c.MFA.RecoveryCount == 0 {
		c.MFA.RecoveryCount = 10
	}

	if c.OAuth.FlowTTL == 0 {
		c.OAuth.FlowTTL = 10 * time.Minute
	}
	if c.OAuth.PendingTTL == 0 {
		c.OAuth.PendingTTL = 5 * time.Minute
	}
	if c.OAuth.ExchangeTimeout == 0 {
		c.OAuth.ExchangeTimeout = 10 * time.Second
	}
	if c.OAuth.DiscoveryTimeout == 0 {
		c.OAuth.DiscoveryTimeout = 10 * time.Second
	}
	for i := range c.OAuth.Providers {
		if len(c.OAuth.Providers[i].Scopes) == 0 {
			c.OAuth.Providers[i].Scopes = []string{"openid", "email", "profile"}
		}
	}

	if c.Webhooks.Tolerance == 0 {
		c.Webhooks.Tolerance = 300 * time.Second
	}
	if c.Webhooks.RecordTTL == 0 {
		c.Webhooks.RecordTTL = 7 * 24 * time.Hour
	}
	if c.Webhooks.PayPal.BaseURL == "" {
		c.Webhooks.PayPal.BaseURL = "https://api-m.paypal.com"
	}
	if c.Webhooks.PayPal.Timeout == 0 {
		c.Webhooks.PayPal.Timeout = 10 * time.Second
	}

	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	if c.Rate.TableSize == 0 {
		c.Rate.TableSize = 10000
	}
	if c.Rate.Login == (RateLimit{}) {
		c.Rate.Login = RateLimit{RPS: 1, Burst: 10}
	}
	if c.Rate.OAuth == (RateLimit{}) {
		c.Rate.OAuth = RateLimit{RPS: 2, Burst: 20}
	}
	if c.Rate.Webhook == (RateLimit{}) {
		c.Rate.Webhook = RateLimit{RPS: 50, Burst: 100}
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno. Los secretos
// normalmente llegan solo por acá.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("APP_VERSION"); ok {
		c.App.Version = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := getEnvCSV("SERVER_TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}
	if v, ok := getEnvCSV("SERVER_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("LOG_FILE"); ok {
		c.Log.File.Path = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("REDIS_TIMEOUT"); ok {
		c.Cache.Redis.Timeout = v
	}

	// DATABASE
	if v, ok := getEnvStr("DATABASE_DRIVER"); ok {
		c.Database.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DATABASE_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := getEnvInt("DATABASE_MAX_CONNS"); ok {
		c.Database.MaxConns = int32(v)
	}
	if v, ok := getEnvBool("DATABASE_MIGRATE"); ok {
		c.Database.Migrate = v
	}

	// SECRETBOX
	if v, ok := getEnvStr("SECRETBOX_KEY"); ok {
		c.SecretBox.Key = v
	}
	if v, ok := getEnvStr("SECRETBOX_PREVIOUS_KEY"); ok {
		c.SecretBox.PreviousKey = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_SEED"); ok {
		c.JWT.AccessSeed = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_SEED"); ok {
		c.JWT.RefreshSeed = v
	}
	if v, ok := getEnvStr("JWT_IMPERSONATION_SEED"); ok {
		c.JWT.ImpersonationSeed = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}

	// MFA
	if v, ok := getEnvStr("MFA_ISSUER"); ok {
		c.MFA.Issuer = v
	}
	if v, ok := getEnvDur("MFA_FRESHNESS_TTL"); ok {
		c.MFA.FreshnessTTL = v
	}

	// PASSWORD
	if v, ok := getEnvInt("PASSWORD_MIN_LENGTH"); ok {
		c.Password.MinLength = v
	}
	if v, ok := getEnvBool("PASSWORD_REQUIRE_SYMBOL"); ok {
		c.Password.RequireSymbol = v
	}
	if v, ok := getEnvCSV("PASSWORD_DENYLIST"); ok {
		c.Password.Denylist = append(c.Password.Denylist, v...)
	}

	// COOKIES
	if v, ok := getEnvStr("COOKIES_DOMAIN"); ok {
		c.Cookies.Domain = v
	}
	if v, ok := getEnvBool("COOKIES_SECURE"); ok {
		c.Cookies.Secure = v
	}

	// OAUTH
	if v, ok := getEnvBool("OAUTH_REQUIRE_MFA"); ok {
		c.OAuth.RequireMFA = v
	}
	if v, ok := getEnvStr("OAUTH_REDIRECT_SUCCESS"); ok {
		c.OAuth.Redirects.Success = v
	}
	if v, ok := getEnvStr("OAUTH_REDIRECT_MFA"); ok {
		c.OAuth.Redirects.MFA = v
	}
	// Secretos por proveedor: OAUTH_<NAME>_CLIENT_SECRET
	for i := range c.OAuth.Providers {
		name := strings.ToUpper(strings.ReplaceAll(c.OAuth.Providers[i].Name, "-", "_"))
		if v, ok := getEnvStr("OAUTH_" + name + "_CLIENT_ID"); ok {
			c.OAuth.Providers[i].ClientID = v
		}
		if v, ok := getEnvStr("OAUTH_" + name + "_CLIENT_SECRET"); ok {
			c.OAuth.Providers[i].ClientSecret = v
		}
	}

	// WEBHOOKS
	if v, ok := getEnvStr("RAZORPAY_WEBHOOK_SECRET"); ok {
		c.Webhooks.Razorpay.Secret = v
	}
	if v, ok := getEnvStr("PAYPAL_CLIENT_ID"); ok {
		c.Webhooks.PayPal.ClientID = v
	}
	if v, ok := getEnvStr("PAYPAL_CLIENT_SECRET"); ok {
		c.Webhooks.PayPal.ClientSecret = v
	}
	if v, ok := getEnvStr("PAYPAL_WEBHOOK_ID"); ok {
		c.Webhooks.PayPal.WebhookID = v
	}
	if v, ok := getEnvCSV("WEBHOOK_KNOWN_TENANTS"); ok {
		c.Webhooks.KnownTenants = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}

	// RATE
	if v, ok := getEnvFloat("RATE_LOGIN_RPS"); ok {
		c.Rate.Login.RPS = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_BURST"); ok {
		c.Rate.Login.Burst = v
	}
	if v, ok := getEnvFloat("RATE_WEBHOOK_RPS"); ok {
		c.Rate.Webhook.RPS = v
	}
	if v, ok := getEnvInt("RATE_WEBHOOK_BURST"); ok {
		c.Rate.Webhook.Burst = v
	}
}

// Validate revisa coherencia y, en prod, exige el material criptográfico y las
// salvaguardas de transporte. En dev las claves faltantes se generan efímeras.
func (c *Config) Validate() error {
	switch c.App.Env {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("%w: app.env %q", ErrConfigInvalid, c.App.Env)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("%w: cache.redis.addr", ErrConfigMissing)
		}
	default:
		return fmt.Errorf("%w: cache.kind %q", ErrConfigInvalid, c.Cache.Kind)
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("%w: database.dsn", ErrConfigMissing)
		}
	default:
		return fmt.Errorf("%w: database.driver %q", ErrConfigInvalid, c.Database.Driver)
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("%w: jwt.access_ttl debe ser menor que jwt.refresh_ttl", ErrConfigInvalid)
	}
	if c.Throttle.CaptchaThreshold > c.Throttle.SoftLockThreshold {
		return fmt.Errorf("%w: throttle.captcha_threshold > soft_lock_threshold", ErrConfigInvalid)
	}

	seen := map[string]bool{}
	for _, p := range c.OAuth.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: oauth.providers[].name", ErrConfigMissing)
		}
		if seen[name] {
			return fmt.Errorf("%w: oauth provider duplicado %q", ErrConfigInvalid, name)
		}
		seen[name] = true
		if bad := validation.InvalidScopes(p.Scopes); len(bad) > 0 {
			return fmt.Errorf("%w: oauth provider %q scopes inválidos: %s", ErrConfigInvalid, name, strings.Join(bad, ", "))
		}
		if !validation.HasOpenID(p.Scopes) {
			return fmt.Errorf("%w: oauth provider %q requiere scope openid", ErrConfigInvalid, name)
		}
	}
	for _, r := range c.Webhooks.Routes {
		if r.Provider == "" || r.Ref == "" || r.TenantID == "" {
			return fmt.Errorf("%w: webhooks.routes requiere provider, ref y tenant_id", ErrConfigInvalid)
		}
	}

	if !c.IsProd() {
		return nil
	}

	// Guardia dura de prod.
	missing := []string{}
	if strings.TrimSpace(c.SecretBox.Key) == "" {
		missing = append(missing, "secretbox.key")
	}
	if strings.TrimSpace(c.JWT.AccessSeed) == "" {
		missing = append(missing, "jwt.access_seed")
	}
	if strings.TrimSpace(c.JWT.RefreshSeed) == "" {
		missing = append(missing, "jwt.refresh_seed")
	}
	if strings.TrimSpace(c.JWT.ImpersonationSeed) == "" {
		missing = append(missing, "jwt.impersonation_seed")
	}
	if c.Cache.Kind != "redis" {
		missing = append(missing, "cache.kind=redis")
	}
	if !c.Cookies.Secure {
		missing = append(missing, "cookies.secure=true")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		missing = append(missing, "server.allowed_origins")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}
	return nil
}
