package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

// Config holds all configuration for the application
type Config struct {
	Environment  string             `mapstructure:"environment"`
	LogLevel     string             `mapstructure:"log_level"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Accrual      AccrualConfig      `mapstructure:"accrual"`
	Reconciler   ReconcilerConfig   `mapstructure:"reconciler"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Tron         TronConfig         `mapstructure:"tron"`
	Notification NotificationConfig `mapstructure:"notification"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	// EnableManualConfirm exposes the user self-confirm endpoint outside production
	EnableManualConfirm bool `mapstructure:"enable_manual_confirm"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory"; memory keeps all state in process
	Driver          string `mapstructure:"driver"`
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	AccessTTL  int    `mapstructure:"access_token_ttl"`
	RefreshTTL int    `mapstructure:"refresh_token_ttl"`
	Issuer     string `mapstructure:"issuer"`
}

// LedgerConfig carries the business constants as decimal strings
type LedgerConfig struct {
	BaseDailyRate        string               `mapstructure:"base_daily_rate"`
	BonusRateStep        string               `mapstructure:"bonus_rate_step"`
	BonusReferralBlock   int                  `mapstructure:"bonus_referral_block"`
	MaxDailyRate         string               `mapstructure:"max_daily_rate"`
	PremiumThreshold     string               `mapstructure:"premium_threshold"`
	PremiumDailyRate     string               `mapstructure:"premium_daily_rate"`
	MinAccrualPrincipal  string               `mapstructure:"min_accrual_principal"`
	DormancyDays         int                  `mapstructure:"dormancy_days"`
	MinInvestment        string               `mapstructure:"min_investment"`
	ActivationPrincipal  string               `mapstructure:"activation_principal"`
	DefaultLockInDays    int                  `mapstructure:"default_lock_in_days"`
	MinWithdrawal        string               `mapstructure:"min_withdrawal"`
	WithdrawalMinBalance string               `mapstructure:"withdrawal_min_balance"`
	InterestWithdrawCap  string               `mapstructure:"interest_withdraw_cap"`
	ReferralTiers        []ReferralTierConfig `mapstructure:"referral_tiers"`
}

type ReferralTierConfig struct {
	MinActive int    `mapstructure:"min_active"`
	Rate      string `mapstructure:"rate"`
}

type AccrualConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
	LockTTL   int    `mapstructure:"lock_ttl"`
}

type ReconcilerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Interval   int  `mapstructure:"interval"`
	BatchSize  int  `mapstructure:"batch_size"`
	MinAge     int  `mapstructure:"min_age"`
	RunTimeout int  `mapstructure:"run_timeout"`
}

type GatewayConfig struct {
	Provider            string `mapstructure:"provider"`
	BaseURL             string `mapstructure:"base_url"`
	APIKey              string `mapstructure:"api_key"`
	WebhookSecret       string `mapstructure:"webhook_secret"`
	CallbackURL         string `mapstructure:"callback_url"`
	Timeout             int    `mapstructure:"timeout"`
	SkipSignatureVerify bool   `mapstructure:"skip_signature_verify"`
}

type TronConfig struct {
	APIURL         string `mapstructure:"api_url"`
	APIKey         string `mapstructure:"api_key"`
	DepositAddress string `mapstructure:"deposit_address"`
	TokenContract  string `mapstructure:"token_contract"`
	Timeout        int    `mapstructure:"timeout"`
}

type NotificationConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromEmail      string `mapstructure:"from_email"`
	FromName       string `mapstructure:"from_name"`
	OpsEmail       string `mapstructure:"ops_email"`
	SNSTopicARN    string `mapstructure:"sns_topic_arn"`
	AWSRegion      string `mapstructure:"aws_region"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

type MaintenanceConfig struct {
	IdempotencyCleanupSchedule string `mapstructure:"idempotency_cleanup_schedule"`
}

// SecretsConfig selects where credentials missing from the environment are
// read from. Provider is "env" (nothing extra) or "aws".
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
	Timeout  int    `mapstructure:"timeout"`
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := resolveSecrets(&config); err != nil {
		return nil, err
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 100)
	viper.SetDefault("server.enable_manual_confirm", false)

	// Database defaults
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "yield_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.migrations_path", "migrations")
	viper.SetDefault("database.auto_migrate", true)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// JWT defaults
	viper.SetDefault("jwt.access_token_ttl", 86400)
	viper.SetDefault("jwt.refresh_token_ttl", 2592000)
	viper.SetDefault("jwt.issuer", "yield_service")

	// Ledger defaults
	policy := entities.DefaultLedgerPolicy()
	viper.SetDefault("ledger.base_daily_rate", policy.BaseDailyRate.String())
	viper.SetDefault("ledger.bonus_rate_step", policy.BonusRateStep.String())
	viper.SetDefault("ledger.bonus_referral_block", policy.BonusReferralBlock)
	viper.SetDefault("ledger.max_daily_rate", policy.MaxDailyRate.String())
	viper.SetDefault("ledger.premium_threshold", policy.PremiumThreshold.String())
	viper.SetDefault("ledger.premium_daily_rate", policy.PremiumDailyRate.String())
	viper.SetDefault("ledger.min_accrual_principal", policy.MinAccrualPrincipal.String())
	viper.SetDefault("ledger.dormancy_days", int(policy.DormancyWindow/(24*time.Hour)))
	viper.SetDefault("ledger.min_investment", policy.MinInvestment.String())
	viper.SetDefault("ledger.activation_principal", policy.ActivationPrincipal.String())
	viper.SetDefault("ledger.default_lock_in_days", policy.DefaultLockInDays)
	viper.SetDefault("ledger.min_withdrawal", policy.MinWithdrawal.String())
	viper.SetDefault("ledger.withdrawal_min_balance", policy.WithdrawalMinBalance.String())
	viper.SetDefault("ledger.interest_withdraw_cap", policy.InterestWithdrawCap.String())
	tiers := make([]map[string]interface{}, 0, len(policy.ReferralTiers))
	for _, t := range policy.ReferralTiers {
		tiers = append(tiers, map[string]interface{}{"min_active": t.MinActive, "rate": t.Rate.String()})
	}
	viper.SetDefault("ledger.referral_tiers", tiers)

	// Accrual defaults: 00:05 UTC every day
	viper.SetDefault("accrual.enabled", true)
	viper.SetDefault("accrual.schedule", "5 0 * * *")
	viper.SetDefault("accrual.batch_size", 500)
	viper.SetDefault("accrual.lock_ttl", 3600)

	// Reconciler defaults
	viper.SetDefault("reconciler.enabled", true)
	viper.SetDefault("reconciler.interval", 300)
	viper.SetDefault("reconciler.batch_size", 100)
	viper.SetDefault("reconciler.min_age", 120)
	viper.SetDefault("reconciler.run_timeout", 240)

	// Gateway defaults
	viper.SetDefault("gateway.provider", "hosted_checkout")
	viper.SetDefault("gateway.timeout", 15)
	viper.SetDefault("gateway.skip_signature_verify", false)

	// Tron defaults
	viper.SetDefault("tron.api_url", "https://apilist.tronscanapi.com/api")
	viper.SetDefault("tron.token_contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	viper.SetDefault("tron.timeout", 10)

	// Notification defaults
	viper.SetDefault("notification.from_email", "no-reply@yieldvault.io")
	viper.SetDefault("notification.from_name", "YieldVault")
	viper.SetDefault("notification.aws_region", "us-east-1")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "yield-service")
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 0.1)

	// Maintenance defaults
	viper.SetDefault("maintenance.idempotency_cleanup_schedule", "30 * * * *")

	// Secrets defaults
	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.region", "us-east-1")
	viper.SetDefault("secrets.timeout", 10)
}

func overrideFromEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		viper.Set("environment", env)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		viper.Set("log_level", level)
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		viper.Set("database.driver", driver)
	}

	// Redis
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		viper.Set("redis.url", redisURL)
	}

	// JWT
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("jwt.secret", jwtSecret)
	}

	// Payment gateway
	if key := os.Getenv("GATEWAY_API_KEY"); key != "" {
		viper.Set("gateway.api_key", key)
	}
	if secret := os.Getenv("GATEWAY_WEBHOOK_SECRET"); secret != "" {
		viper.Set("gateway.webhook_secret", secret)
	}
	if baseURL := os.Getenv("GATEWAY_BASE_URL"); baseURL != "" {
		viper.Set("gateway.base_url", baseURL)
	}
	if callback := os.Getenv("GATEWAY_CALLBACK_URL"); callback != "" {
		viper.Set("gateway.callback_url", callback)
	}

	// Tron
	if key := os.Getenv("TRON_API_KEY"); key != "" {
		viper.Set("tron.api_key", key)
	}
	if addr := os.Getenv("TRON_DEPOSIT_ADDRESS"); addr != "" {
		viper.Set("tron.deposit_address", addr)
	}

	// Notifications
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		viper.Set("notification.sendgrid_api_key", key)
	}
	if ops := os.Getenv("OPS_EMAIL"); ops != "" {
		viper.Set("notification.ops_email", ops)
	}

	if arn := os.Getenv("OPS_SNS_TOPIC_ARN"); arn != "" {
		viper.Set("notification.sns_topic_arn", arn)
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		viper.Set("notification.aws_region", region)
		viper.Set("secrets.region", region)
	}

	// Secrets
	if provider := os.Getenv("SECRETS_PROVIDER"); provider != "" {
		viper.Set("secrets.provider", provider)
	}
	if prefix := os.Getenv("SECRETS_PREFIX"); prefix != "" {
		viper.Set("secrets.prefix", prefix)
	}

	// Tracing
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		viper.Set("tracing.enabled", true)
		viper.Set("tracing.collector_url", endpoint)
	}
}

func validate(config *Config) error {
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch config.Database.Driver {
	case "postgres":
		if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
			return fmt.Errorf("database configuration is incomplete")
		}
	case "memory":
		if config.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}

	if config.IsProduction() && config.Gateway.SkipSignatureVerify {
		return fmt.Errorf("gateway signature verification cannot be skipped in production")
	}

	if _, err := config.Ledger.Policy(); err != nil {
		return fmt.Errorf("invalid ledger configuration: %w", err)
	}

	return nil
}

// Policy converts the ledger section into a validated ledger policy
func (c LedgerConfig) Policy() (entities.LedgerPolicy, error) {
	policy := entities.DefaultLedgerPolicy()

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"base_daily_rate", c.BaseDailyRate, &policy.BaseDailyRate},
		{"bonus_rate_step", c.BonusRateStep, &policy.BonusRateStep},
		{"max_daily_rate", c.MaxDailyRate, &policy.MaxDailyRate},
		{"premium_threshold", c.PremiumThreshold, &policy.PremiumThreshold},
		{"premium_daily_rate", c.PremiumDailyRate, &policy.PremiumDailyRate},
		{"min_accrual_principal", c.MinAccrualPrincipal, &policy.MinAccrualPrincipal},
		{"min_investment", c.MinInvestment, &policy.MinInvestment},
		{"activation_principal", c.ActivationPrincipal, &policy.ActivationPrincipal},
		{"min_withdrawal", c.MinWithdrawal, &policy.MinWithdrawal},
		{"withdrawal_min_balance", c.WithdrawalMinBalance, &policy.WithdrawalMinBalance},
		{"interest_withdraw_cap", c.InterestWithdrawCap, &policy.InterestWithdrawCap},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return policy, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}

	if c.BonusReferralBlock > 0 {
		policy.BonusReferralBlock = c.BonusReferralBlock
	}
	if c.DormancyDays > 0 {
		policy.DormancyWindow = time.Duration(c.DormancyDays) * 24 * time.Hour
	}
	if c.DefaultLockInDays >= 0 {
		policy.DefaultLockInDays = c.DefaultLockInDays
	}

	if len(c.ReferralTiers) > 0 {
		policy.ReferralTiers = policy.ReferralTiers[:0:0]
		for _, t := range c.ReferralTiers {
			rate, err := decimal.NewFromString(t.Rate)
			if err != nil {
				return policy, fmt.Errorf("referral tier %d: %w", t.MinActive, err)
			}
			policy.ReferralTiers = append(policy.ReferralTiers, entities.ReferralTier{MinActive: t.MinActive, Rate: rate})
		}
	}

	return policy, policy.Validate()
}

// RedisAddr returns host:port for the Redis client
func (c RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
