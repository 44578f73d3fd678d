package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Scylla     ScyllaConfig     `mapstructure:"scylla"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Automation AutomationConfig `mapstructure:"automation"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Site       SiteConfig       `mapstructure:"site"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts             []string      `mapstructure:"hosts"`
	Port              int           `mapstructure:"port"`
	Keyspace          string        `mapstructure:"keyspace"`
	Consistency       string        `mapstructure:"consistency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DisableInitSchema bool          `mapstructure:"disable_init_schema"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	StageEventTopic string        `mapstructure:"stage_event_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	QueueBatchSize    int           `mapstructure:"queue_batch_size"`
	TrackingBatchSize int           `mapstructure:"tracking_batch_size"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockKeyPrefix     string        `mapstructure:"lock_key_prefix"`
}

type AutomationConfig struct {
	// SendTimeout bounds each external send or calendar fetch so one
	// stuck provider call cannot starve a whole batch.
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	TrackingGrace   time.Duration `mapstructure:"tracking_grace"`
	NoShowGrace     time.Duration `mapstructure:"no_show_grace"`
	RescheduleDrift time.Duration `mapstructure:"reschedule_drift"`
}

type ChannelsConfig struct {
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Twilio TwilioConfig `mapstructure:"twilio"`
}

type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type TwilioConfig struct {
	AccountSID   string        `mapstructure:"account_sid"`
	AuthToken    string        `mapstructure:"auth_token"`
	SMSFrom      string        `mapstructure:"sms_from"`
	WhatsAppFrom string        `mapstructure:"whatsapp_from"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type CalendarConfig struct {
	CalendarID   string `mapstructure:"calendar_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenFile    string `mapstructure:"token_file"`
	OwnerEmail   string `mapstructure:"owner_email"`
}

type PaymentConfig struct {
	SecretKey  string        `mapstructure:"secret_key"`
	BaseURL    string        `mapstructure:"base_url"`
	SuccessURL string        `mapstructure:"success_url"`
	CancelURL  string        `mapstructure:"cancel_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	BookingPath string `mapstructure:"booking_path"`
	OwnerUserID string `mapstructure:"owner_user_id"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("PAX")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
