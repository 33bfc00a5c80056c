// Package config holds the env-tagged settings shared by the binaries.
// Decode them with envconf.Load.
package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" default:""`
	DB       int    `env:"REDIS_DB" default:"0"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `env:"NOTIFY_KAFKA_TOPIC" default:"marketplace.notifications"`
	GroupID string   `env:"NOTIFY_KAFKA_GROUP" default:"notification-sink"`
	// Enabled=false makes the API log notifications instead of producing them.
	Enabled bool `env:"NOTIFY_KAFKA_ENABLED" default:"true"`
}

type PayTRConfig struct {
	MerchantID   string        `env:"PAYTR_MERCHANT_ID"`
	MerchantKey  string        `env:"PAYTR_MERCHANT_KEY"`
	MerchantSalt string        `env:"PAYTR_MERCHANT_SALT"`
	OKURL        string        `env:"PAYTR_OK_URL" default:""`
	FailURL      string        `env:"PAYTR_FAIL_URL" default:""`
	TokenURL     string        `env:"PAYTR_TOKEN_URL" default:"https://www.paytr.com/odeme/api/get-token"`
	Currency     string        `env:"PAYTR_CURRENCY" default:"TL"`
	TestMode     bool          `env:"PAYTR_TEST_MODE" default:"false"`
	Timeout      time.Duration `env:"PAYTR_TIMEOUT" default:"30m"`
}

type LedgerConfig struct {
	DepositFeeBps         int64         `env:"DEPOSIT_FEE_BPS" default:"0"`
	DepositMinAmount      int64         `env:"DEPOSIT_MIN_AMOUNT" default:"1000"`
	WithdrawMinAmount     int64         `env:"WITHDRAW_MIN_AMOUNT" default:"5000"`
	WithdrawMaxPending    int           `env:"WITHDRAW_MAX_PENDING" default:"2"`
	OrderAutoReleaseAfter time.Duration `env:"ORDER_AUTO_RELEASE_AFTER" default:"72h"`
	AutoReleaseSchedule   string        `env:"ORDER_AUTO_RELEASE_SCHEDULE" default:"@every 1m"`
	AutoReleaseBatch      int           `env:"ORDER_AUTO_RELEASE_BATCH" default:"100"`
}

type HTTPConfig struct {
	Port              uint16        `env:"HTTP_PORT" default:"8080"`
	AllowedOrigins    []string      `env:"HTTP_ALLOWED_ORIGINS" default:"*"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
}
