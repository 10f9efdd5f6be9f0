package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database
	Auth        Auth
	Redis       Redis
	Kafka       Kafka

	Provider Provider `envPrefix:"PAYMENT_PROVIDER_"`
}

// Provider holds the payment provider credentials. SecretKey is used both as
// the bearer token for outbound calls and as the webhook HMAC key.
type Provider struct {
	BaseURL   string        `env:"BASE_URL" envDefault:"https://api.paystack.co"`
	SecretKey string        `env:"SECRET_KEY"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite, mysql
	URL    string `env:"DATABASE_URL" envDefault:"storefront.db"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Redis struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
}

type Kafka struct {
	Brokers      string `env:"KAFKA_BROKERS"`
	PaymentTopic string `env:"KAFKA_PAYMENT_TOPIC" envDefault:"payments.reconciled"`
}
