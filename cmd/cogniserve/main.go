package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/actuator"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/api"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/buffer"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/cache"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/config"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/embedding"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/memory"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/provider"
	pgstore "github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/store"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/trigger"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/vectorstore"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting cogniserve...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/cogniserve.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Semantic cache (degrades to a disabled cache when Redis is down)
	var genCache *cache.SemanticCache
	if cfg.Cache.RedisURL != "" {
		genCache, err = cache.New(cfg.Cache.RedisURL, cfg.Cache.TTL(), logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without semantic cache", zap.Error(err))
			genCache = cache.NewDisabled(logger)
		}
	} else {
		genCache = cache.NewDisabled(logger)
	}

	// Held-message buffer shares the cache's Redis
	var held *buffer.Buffer
	if cfg.Cache.RedisURL != "" {
		held, err = buffer.New(cfg.Cache.RedisURL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, held messages will not persist", zap.Error(err))
			held = nil
		}
	}

	// Vector memory store
	var memStore *memory.Store
	var vecClient *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		index, vErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if vErr != nil {
			logger.Warn("Qdrant unavailable, running without semantic memory", zap.Error(vErr))
		} else {
			vecClient = index
			var embedder embedding.Provider
			embCfg := embedding.Config{
				Provider:  cfg.Embedding.Provider,
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			}
			if cfg.Embedding.Provider == "local" {
				embedder = embedding.NewLocalProvider(embCfg)
			} else {
				embedder = embedding.NewAPIProvider(embCfg)
			}

			memStore = memory.NewStore(embedder, index, cfg.Memory, logger)
			if iErr := memStore.Init(context.Background()); iErr != nil {
				logger.Warn("memory collection init failed, running without semantic memory", zap.Error(iErr))
				memStore = nil
			}
		}
	}

	// Generation providers
	genRouter := provider.NewRouter(logger)
	for _, pc := range cfg.Generation {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			genRouter.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			genRouter.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Audit store
	var audit *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without audit trail", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			audit = ps
		}
	}

	// Actuators
	dispatcher := actuator.NewDispatcher(logger)
	if cfg.Actuators.Slack.Enabled && cfg.Actuators.Slack.BotToken != "" {
		dispatcher.RegisterAdapter(actuator.NewSlackAdapter(
			cfg.Actuators.Slack.BotToken, cfg.Actuators.Slack.Channel, logger))
	}
	if cfg.Actuators.Discord.Enabled && cfg.Actuators.Discord.BotToken != "" {
		discord, dErr := actuator.NewDiscordAdapter(cfg.Actuators.Discord.BotToken, logger)
		if dErr != nil {
			logger.Warn("Discord unavailable, skipping adapter", zap.Error(dErr))
		} else {
			dispatcher.RegisterAdapter(discord)
		}
	}

	// Classifier -> trigger evaluation -> actuation, with audit on the side
	classifier := telemetry.NewClassifier(cfg.Telemetry, logger)
	classifier.OnTransition(func(t telemetry.Transition) {
		logger.Info("state transition",
			zap.String("user", t.UserID),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.Float64("score", t.Score))

		if audit != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := audit.RecordTransition(ctx, t); err != nil {
				logger.Warn("transition audit write failed", zap.Error(err))
			}
		}

		intents := trigger.Evaluate(t)
		directives := actuator.FromIntents(intents)

		// Leaving hyperfocus releases everything held during it.
		if t.From == telemetry.StateHyperfocus && held != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			msgs, dErr := held.Drain(ctx, t.UserID)
			if dErr != nil {
				logger.Error("held message drain failed",
					zap.String("user", t.UserID), zap.Error(dErr))
			}
			for _, m := range msgs {
				directives = append(directives, actuator.Directive{
					UserID: t.UserID,
					Kind:   actuator.KindDeliverHeld,
					Note:   fmt.Sprintf("[%s] %s: %s", m.Channel, m.Sender, m.Body),
				})
			}
		}

		if len(directives) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			dispatcher.Dispatch(ctx, directives)
		}
	})

	// Periodic stale/evict sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Telemetry.SweepSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				classifier.Sweep(now)
			}
		}
	}()

	actionRouter := newActionRouter(classifier, genRouter, genCache, memStore, logger)
	if held != nil {
		actionRouter.SetBuffer(held)
	}

	// HTTP server
	handler := api.NewHandler(classifier, actionRouter, logger)
	if memStore != nil {
		handler.SetMemoryStore(memStore)
	}
	if audit != nil {
		handler.SetAuditLog(audit)
	}
	if held != nil {
		handler.SetHeldBuffer(held)
	}

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("cogniserve listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down cogniserve...")
	stopSweep()
	srv.Shutdown(context.Background())
	dispatcher.Close()
	genCache.Close()
	if held != nil {
		held.Close()
	}
	if audit != nil {
		audit.Close()
	}
	if vecClient != nil {
		vecClient.Close()
	}
}

// newActionRouter exists to keep the nil-interface wiring in one place: a
// nil *memory.Store must become a nil interface, not a non-nil interface
// holding a nil pointer.
func newActionRouter(classifier *telemetry.Classifier, gen *provider.Router, genCache *cache.SemanticCache, memStore *memory.Store, logger *zap.Logger) *action.Router {
	if memStore == nil {
		return action.NewRouter(classifier, gen, genCache, nil, logger)
	}
	return action.NewRouter(classifier, gen, genCache, memStore, logger)
}
