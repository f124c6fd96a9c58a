package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/ferreteria-checkout/pkg/utils"
)

type Config struct {
	Env       string    `yaml:"env" env:"ENV" env-default:"local"`
	Logger    Logger    `yaml:"logger"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  PG        `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Outbox    Outbox    `yaml:"outbox"`
	Auth      Auth      `yaml:"auth"`
	Webpay    Webpay    `yaml:"webpay"`
	Front     Front     `yaml:"front"`
	Limiter   Limiter   `yaml:"limiter"`
	Telemetry Telemetry `yaml:"telemetry"`
	SMTP      SMTP      `yaml:"smtp"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

type PG struct {
	URL      string `yaml:"url" env:"DB_URL"`
	MaxConns int32  `yaml:"max_conns" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env-default:"2"`
}

type Redis struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env-default:"0"`
	PurchasesTTL time.Duration `yaml:"purchases_ttl" env-default:"5m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"notification-service-group"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

type Auth struct {
	Secret   string        `yaml:"secret" env:"ACCESS_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env-default:"15m"`
}

// Webpay defaults point at the Transbank integration environment.
type Webpay struct {
	BaseURL      string        `yaml:"base_url" env:"WEBPAY_BASE_URL" env-default:"https://webpay3gint.transbank.cl"`
	CommerceCode string        `yaml:"commerce_code" env:"WEBPAY_COMMERCE_CODE" env-default:"597055555532"`
	APIKeySecret string        `yaml:"api_key_secret" env:"WEBPAY_API_KEY_SECRET" env-default:"579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"`
	Timeout      time.Duration `yaml:"timeout" env-default:"15s"`
}

type Front struct {
	URL string `yaml:"url" env:"FRONT_URL" env-default:"http://localhost:5173"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Telemetry struct {
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	return cfg
}
