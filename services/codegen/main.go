// codegen is the code-paste front-end.
// It takes controller source from a form or the JSON API, summarises its
// endpoints and asks the Granite model for a RestAssured test class.
//
// Missing watsonx credentials do not stop the service: it starts degraded,
// reports granite_client=false on /health and refuses generation requests.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/forge-ai/testgen/services/codegen/internal"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal, stopping codegen")
		cancel()
	}()

	m := metrics.New("codegen")

	creds, _ := granite.CredentialsFromEnv()
	var gen internal.Generator
	client, err := newClient(cfg, creds, m)
	if err != nil {
		log.Error().Err(err).Msg("granite client not initialized, running degraded")
	} else {
		gen = client
		log.Info().Str("api_key", granite.Mask(creds.APIKey)).Msg("granite client initialized")
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

	svc := internal.New(cfg, gen, creds.ModelID, m, pub)

	log.Info().
		Str("model", creds.ModelID).
		Str("port", cfg.Port).
		Str("env", cfg.AppEnv).
		Bool("debug", cfg.Debug).
		Bool("broker", pub != nil).
		Msg("codegen online")

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("codegen exited")
	}
}

func newClient(cfg internal.Config, creds granite.Credentials, m *metrics.Collector) (*granite.Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	tokens := granite.NewTokenCache(creds.IAMURL, creds.APIKey,
		granite.WithIAMHTTPClient(&http.Client{Timeout: cfg.IAMTimeout}),
		granite.WithRefreshHook(m.RecordTokenRefresh),
	)
	return granite.NewClient(creds,
		granite.WithTimeout(cfg.GraniteTimeout),
		granite.WithTokenProvider(tokens),
	)
}
