package main

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
)

type apiConfig struct {
	LogLevel        zapcore.Level `env:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"20s"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" default:"1024"`

	HTTP     config.HTTPConfig
	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Kafka    config.KafkaConfig
	PayTR    config.PayTRConfig
	Ledger   config.LedgerConfig
}
