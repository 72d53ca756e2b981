package internal

import (
	"os"
	"time"

	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/web"
)

type Config struct {
	Port           string
	MaxBodyBytes   int64
	GraniteTimeout time.Duration
	IAMTimeout     time.Duration
	AMQPURL        string
	Debug          bool
	AppEnv         string
}

func ConfigFromEnv() Config {
	return Config{
		Port:           web.EnvOr("PORT", "5001"),
		MaxBodyBytes:   web.EnvInt64("MAX_BODY_BYTES", 1<<20),
		GraniteTimeout: web.EnvDuration("GRANITE_TIMEOUT", granite.DefaultTimeout),
		IAMTimeout:     web.EnvDuration("IAM_TIMEOUT", 15*time.Second),
		AMQPURL:        web.EnvOr("AMQP_URL", ""),
		Debug:          os.Getenv("DEBUG") == "1",
		AppEnv:         web.EnvOr("APP_ENV", "production"),
	}
}
