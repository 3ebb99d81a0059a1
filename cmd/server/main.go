package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SalehSedlah/doctor-assistant/internal/analysis"
	"github.com/SalehSedlah/doctor-assistant/internal/api"
	"github.com/SalehSedlah/doctor-assistant/internal/chat"
	"github.com/SalehSedlah/doctor-assistant/internal/config"
	"github.com/SalehSedlah/doctor-assistant/internal/crypto"
	"github.com/SalehSedlah/doctor-assistant/internal/history"
	"github.com/SalehSedlah/doctor-assistant/internal/providers/registry"
	"github.com/SalehSedlah/doctor-assistant/internal/queue"
	"github.com/SalehSedlah/doctor-assistant/internal/session"
	"github.com/SalehSedlah/doctor-assistant/internal/speech"
	"github.com/SalehSedlah/doctor-assistant/internal/storage"
	"github.com/SalehSedlah/doctor-assistant/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("mode", cfg.AppMode).
		Str("provider", cfg.Provider.Kind).
		Str("app_id", cfg.AppID).
		Bool("speech", cfg.Speech.Enabled).
		Msg("starting doctor-assistant")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.AppID, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	cryptoManager, err := crypto.NewManager(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize crypto manager")
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}
	provider, err := registry.Build(ctx, registry.BuildOptions{
		Kind:        cfg.Provider.Kind,
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		HTTPClient:  httpClient,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build AI provider")
	}

	speechQueue := queue.NewSpeechQueue(rdb, cfg.Redis.QueueStream, cfg.Redis.QueueGroup, cfg.Worker.ConsumerName, cfg.Redis.QueueBlock)
	audioCache := speech.NewAudioCache(rdb, cfg.Speech.AudioTTL)
	synthesizer := speech.NewSynthesizer(speech.SynthesizerConfig{
		BaseURL:     cfg.Speech.TTSBaseURL,
		APIKey:      cfg.Speech.APIKey,
		HTTPClient:  httpClient,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	})
	feed := history.NewFeed(rdb, store, log.Logger)

	errCh := make(chan error, 4)
	var httpServer *http.Server

	if cfg.AppMode == config.ModeAPI || cfg.AppMode == config.ModeAll {
		var speechEnqueuer chat.SpeechEnqueuer
		if cfg.Speech.Enabled {
			speechEnqueuer = speechQueue
		}
		chatService := chat.NewService(
			chat.ServiceConfig{
				SystemPrompt:  cfg.Provider.SystemPrompt,
				Model:         cfg.Provider.Model,
				MaxTokens:     cfg.Provider.MaxTokens,
				Temperature:   cfg.Provider.Temperature,
				SpeechEnabled: cfg.Speech.Enabled,
				LanguageCode:  cfg.Speech.LanguageCode,
				VoiceName:     cfg.Speech.VoiceName,
			},
			provider,
			store,
			queue.NewMessageDeduplicator(rdb, cfg.Redis.DedupeTTL),
			queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
			speechEnqueuer,
			feed,
			log.Logger,
		)

		handlers := &api.Handlers{
			Sessions:   session.NewProvider(cryptoManager, store),
			Chat:       chatService,
			Analysis:   analysis.NewService(provider, cfg.Provider.Model),
			Feed:       feed,
			AutoSubmit: cfg.Speech.AutoSubmit,
			Logger:     log.Logger,
		}
		if cfg.Speech.Enabled {
			handlers.Transcriber = speech.NewTranscriber(speech.TranscriberConfig{
				BaseURL:      cfg.Speech.STTBaseURL,
				APIKey:       cfg.Speech.APIKey,
				LanguageCode: cfg.Speech.LanguageCode,
				HTTPClient:   httpClient,
			})
			handlers.Synthesizer = synthesizer
			handlers.AudioCache = audioCache
		}

		router := api.NewRouter(handlers, api.RouterConfig{
			HealthPath:  cfg.Server.HealthPath,
			MetricsPath: cfg.Server.MetricsPath,
		}, log.Logger)

		httpServer = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}
		go func() {
			log.Info().Str("addr", cfg.Server.ListenAddr).Msg("http server started")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if cfg.Speech.Enabled && (cfg.AppMode == config.ModeWorker || cfg.AppMode == config.ModeAll) {
		w := worker.New(worker.Config{
			Queue:         speechQueue,
			Synthesizer:   synthesizer,
			Cache:         audioCache,
			MaxJobRetries: cfg.Worker.MaxRetries,
			Logger:        log.Logger,
		})
		go func() {
			if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker failed: %w", err)
			}
		}()
		log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("speech worker started")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop http server")
		}
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
