package internal

import (
	"os"
	"time"

	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/web"
)

const defaultMaxUpload = 16 << 20

type Config struct {
	Port           string
	UploadDir      string
	GeneratedDir   string
	MaxUploadBytes int64
	GraniteTimeout time.Duration
	IAMTimeout     time.Duration
	AMQPURL        string
	Debug          bool
	AppEnv         string
}

func ConfigFromEnv() Config {
	return Config{
		Port:           web.EnvOr("PORT", "5000"),
		UploadDir:      web.EnvOr("UPLOAD_DIR", "uploads"),
		GeneratedDir:   web.EnvOr("GENERATED_DIR", "generated_tests"),
		MaxUploadBytes: web.EnvInt64("MAX_UPLOAD_BYTES", defaultMaxUpload),
		GraniteTimeout: web.EnvDuration("GRANITE_TIMEOUT", granite.DefaultTimeout),
		IAMTimeout:     web.EnvDuration("IAM_TIMEOUT", 15*time.Second),
		AMQPURL:        web.EnvOr("AMQP_URL", ""),
		Debug:          os.Getenv("DEBUG") == "1",
		AppEnv:         web.EnvOr("APP_ENV", "production"),
	}
}
