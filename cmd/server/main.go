package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/triage-ai/backend/internal/ai"
	"github.com/triage-ai/backend/internal/assign"
	"github.com/triage-ai/backend/internal/config"
	httpapi "github.com/triage-ai/backend/internal/http"
	"github.com/triage-ai/backend/internal/http/handlers"
	"github.com/triage-ai/backend/internal/service"
	"github.com/triage-ai/backend/internal/source"
	"github.com/triage-ai/backend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.Server.LogLevel)
	logger := log.Level(level).With().Str("service", "triage-backend").Logger()
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	ctx := context.Background()

	var store storage.Store
	var pinger handlers.Pinger
	if cfg.Storage.DeltaLakeEnabled {
		table, err := storage.NewTable(ctx, cfg.DatabaseURL)
		if err == nil {
			err = table.Ping(ctx)
		}
		if err == nil {
			err = table.EnsureSchema(ctx)
		}
		if err != nil {
			if table != nil {
				table.Close()
			}
			logger.Warn().Err(err).Msg("table store unavailable, falling back to local files")
		} else {
			store = table
			pinger = table
			logger.Info().Str("path", cfg.Storage.DeltaTablePath).Msg("table store enabled")
		}
	}
	if store == nil {
		local, err := storage.NewLocal(cfg.Storage.DataDir, cfg.Storage.LogDir, cfg.Storage.Format)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init local storage")
		}
		store = local
	}
	defer store.Close()

	var classifier ai.Classifier = ai.RuleClassifier{}
	if cfg.OpenAI.Enabled {
		var cache ai.Cache = ai.NewMemoryCache(time.Hour)
		if cfg.RedisAddr != "" {
			cache = ai.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), time.Hour)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("redis classification cache enabled")
		}
		classifier = ai.OpenAIClassifier{
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.Model,
			APIKey:    cfg.OpenAI.APIKey,
			MaxTokens: cfg.OpenAI.MaxTokens,
			Cache:     cache,
		}
		logger.Info().Str("model", cfg.OpenAI.Model).Msg("using OpenAI classification")
	} else {
		logger.Info().Msg("using rule-based classification")
	}

	var sources []source.Source
	if cfg.ServiceNow.Enabled {
		sources = append(sources, &source.ServiceNowSource{
			InstanceURL: cfg.ServiceNow.InstanceURL,
			Username:    cfg.ServiceNow.Username,
			Password:    cfg.ServiceNow.Password,
			Table:       cfg.ServiceNow.Table,
			Limit:       cfg.ServiceNow.Limit,
			Query:       cfg.ServiceNow.Query,
		})
		logger.Info().Str("instance", cfg.ServiceNow.InstanceURL).Msg("servicenow source enabled")
	}
	if cfg.Jira.Enabled {
		sources = append(sources, &source.JiraSource{
			ServerURL:  cfg.Jira.ServerURL,
			Email:      cfg.Jira.Email,
			APIToken:   cfg.Jira.APIToken,
			JQL:        cfg.Jira.JQLQuery,
			MaxResults: cfg.Jira.MaxResults,
		})
		logger.Info().Str("server", cfg.Jira.ServerURL).Msg("jira source enabled")
	}
	if len(sources) == 0 {
		logger.Info().Msg("no live sources enabled, runs will use mock tickets")
	}

	svc := &service.TriageService{
		Sources: sources,
		Mock: &source.MockSource{
			ServiceNowCount: cfg.Mock.ServiceNowCount,
			JiraCount:       cfg.Mock.JiraCount,
		},
		Classifier: classifier,
		Engine:     assign.New(cfg.Engineers, store, logger),
		Store:      store,
		Logger:     logger,
		Options: assign.Options{
			SkillWeight:    cfg.Assignment.SkillWeight,
			WorkloadWeight: cfg.Assignment.WorkloadWeight,
			AllowOverflow:  cfg.Assignment.AllowOverflow,
		},
	}

	router := httpapi.Router(cfg, svc, pinger, logger)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Int("engineers", len(cfg.Engineers)).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
