// specgen is the specification-upload front-end.
// It accepts an OpenAPI / Swagger file, builds a JUnit 5 prompt from it,
// asks the Granite model for test classes and stores the result for download.
//
// Every request emits generation.* events to the browser feed on /ws and,
// when AMQP_URL is set, to the testgen.events exchange.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/forge-ai/testgen/services/specgen/internal"
	"github.com/forge-ai/testgen/shared/events"
	"github.com/forge-ai/testgen/shared/granite"
	"github.com/forge-ai/testgen/shared/metrics"
	"github.com/forge-ai/testgen/shared/mq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	_ = godotenv.Load()

	cfg := internal.ConfigFromEnv()

	creds, err := granite.CredentialsFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("granite credentials")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal, stopping specgen")
		cancel()
	}()

	m := metrics.New("specgen")
	tokens := granite.NewTokenCache(creds.IAMURL, creds.APIKey,
		granite.WithIAMHTTPClient(&http.Client{Timeout: cfg.IAMTimeout}),
		granite.WithRefreshHook(m.RecordTokenRefresh),
	)
	client, err := granite.NewClient(creds,
		granite.WithTimeout(cfg.GraniteTimeout),
		granite.WithTokenProvider(tokens),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("granite client")
	}

	store, err := internal.NewStore(cfg.UploadDir, cfg.GeneratedDir)
	if err != nil {
		log.Fatal().Err(err).Msg("storage directories")
	}

	var pub events.Publisher
	if cfg.AMQPURL != "" {
		broker, err := mq.New(ctx, cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("mq connect")
		}
		defer broker.Close()
		pub = broker
	}

	svc := internal.New(cfg, client, store, m, pub)

	log.Info().
		Str("model", creds.ModelID).
		Str("project", creds.ProjectID).
		Str("api_key", granite.Mask(creds.APIKey)).
		Str("env", cfg.AppEnv).
		Bool("broker", pub != nil).
		Msg("specgen online")

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("specgen exited")
	}
}
