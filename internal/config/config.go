package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Captcha    CaptchaConfig    `yaml:"captcha"`
	Media      MediaConfig      `yaml:"media"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int      `yaml:"port"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret               string        `yaml:"jwt_secret"`
	Issuer                  string        `yaml:"issuer"`
	AccessTTL               time.Duration `yaml:"access_ttl"`
	BcryptCost              int           `yaml:"bcrypt_cost"`
	LoginAttempts           int           `yaml:"login_attempts"`
	LoginWindow             time.Duration `yaml:"login_window"`
	ExposeVerificationToken bool          `yaml:"expose_verification_token"`
}

type BookingConfig struct {
	SlotMinutes    int           `yaml:"slot_minutes"`
	MaxAdvanceDays int           `yaml:"max_advance_days"`
	PendingHold    time.Duration `yaml:"pending_hold"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatch     int           `yaml:"sweep_batch"`
	Currency       string        `yaml:"currency"`
}

type PaymentConfig struct {
	Provider   string `yaml:"provider"`
	PublicKey  string `yaml:"public_key"`
	SecretKey  string `yaml:"secret_key"`
	SourceType string `yaml:"source_type"`
	ReturnURI  string `yaml:"return_uri"`
}

func (p PaymentConfig) Enabled() bool {
	return p.PublicKey != "" && p.SecretKey != ""
}

type CaptchaConfig struct {
	Enabled   bool          `yaml:"enabled"`
	VerifyURL string        `yaml:"verify_url"`
	Secret    string        `yaml:"secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MediaConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

func (m MediaConfig) Enabled() bool {
	return m.CloudName != "" && m.APIKey != "" && m.APISecret != ""
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads a YAML config, expanding ${VAR} references from the environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Booking.SlotMinutes <= 0 || 60%c.Booking.SlotMinutes != 0 && c.Booking.SlotMinutes%60 != 0 {
		return fmt.Errorf("booking.slot_minutes %d must divide or be a multiple of an hour", c.Booking.SlotMinutes)
	}
	if c.Captcha.Enabled && (c.Captcha.Secret == "" || c.Captcha.VerifyURL == "") {
		return errors.New("captcha secret and verify_url are required when captcha is enabled")
	}
	if c.Payment.PublicKey != "" && c.Payment.SecretKey == "" {
		return errors.New("payment secret_key is required when public_key is set")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return nil
}

// Location returns the timezone used for court operating hours.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "courtbook"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.MaxUploadMB == 0 {
		c.API.HTTP.MaxUploadMB = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.App.Name
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Auth.LoginAttempts == 0 {
		c.Auth.LoginAttempts = 5
	}
	if c.Auth.LoginWindow == 0 {
		c.Auth.LoginWindow = 15 * time.Minute
	}

	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = 30
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = 60
	}
	if c.Booking.PendingHold == 0 {
		c.Booking.PendingHold = 15 * time.Minute
	}
	if c.Booking.SweepInterval == 0 {
		c.Booking.SweepInterval = time.Minute
	}
	if c.Booking.SweepBatch == 0 {
		c.Booking.SweepBatch = 100
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = "thb"
	}

	if c.Payment.Provider == "" {
		c.Payment.Provider = "omise"
	}
	if c.Payment.SourceType == "" {
		c.Payment.SourceType = "promptpay"
	}
	if c.Captcha.Timeout == 0 {
		c.Captcha.Timeout = 5 * time.Second
	}
	if c.Media.Folder == "" {
		c.Media.Folder = "facilities"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookings"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "courtbook.events"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}
