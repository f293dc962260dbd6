package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/bot"
	"github.com/xaenox/telegram-agent/internal/models"
	"github.com/xaenox/telegram-agent/internal/pipeline"
	"github.com/xaenox/telegram-agent/internal/reconcile"
	"github.com/xaenox/telegram-agent/internal/responder"
	"github.com/xaenox/telegram-agent/internal/storage"
	"github.com/xaenox/telegram-agent/internal/telegram"
	"github.com/xaenox/telegram-agent/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the platform client
	api, err := tgbot.New(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("Failed to create telegram client", zap.Error(err))
	}
	client := telegram.NewAPIClient(api, cfg.Telegram.CallTimeout, logger)
	extractor := telegram.NewExtractor()

	// Assemble the rule pipeline
	executor := telegram.NewExecutor(client, logger)
	rules := pipeline.NewEngine(executor, logger, buildSteps(cfg, store, logger)...)

	// Reconciliation engine
	recon := reconcile.NewEngine(store, client, extractor, reconcile.Policy{
		KeepTombstones: cfg.Reconcile.KeepTombstones,
		FetchTimeout:   cfg.Reconcile.FetchTimeout,
	}, logger)

	b := bot.New(api, client, store, rules, recon, extractor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b.Start(ctx)
	logger.Info("Bot stopped")
}

// buildSteps wires the configured pipeline. Steps bound to unset scope ids
// are left out.
func buildSteps(cfg *config.Config, store storage.Storage, logger *zap.Logger) []pipeline.Step {
	var steps []pipeline.Step

	steps = append(steps, pipeline.Step{
		Name: "greeting",
		Filters: []pipeline.Filter{
			pipeline.ChatTypeIs(models.ChatTypePrivate),
			pipeline.TextContains("hello"),
		},
		Actions: []pipeline.Action{
			pipeline.SendMessage{Text: "Hello! How can I assist you?"},
		},
	})

	if cfg.Pipeline.AdminChatID != 0 {
		steps = append(steps, pipeline.Step{
			Name: "notify-admin",
			Filters: []pipeline.Filter{
				pipeline.ChatTypeIs(models.ChatTypeSupergroup),
			},
			Actions: []pipeline.Action{
				pipeline.SendMessage{ChatID: cfg.Pipeline.AdminChatID},
			},
		})
	}

	if cfg.Pipeline.ForwardChatID != 0 {
		steps = append(steps, pipeline.Step{
			Name: "forward-urgent",
			Filters: []pipeline.Filter{
				pipeline.TextContains("urgent"),
			},
			Actions: []pipeline.Action{
				pipeline.ForwardMessage{ToChatID: cfg.Pipeline.ForwardChatID},
			},
		})
	}

	if cfg.Pipeline.IdeasChatID != 0 && cfg.Pipeline.IdeaThreadID != 0 {
		steps = append(steps, pipeline.Step{
			Name: "new-idea",
			Filters: []pipeline.Filter{
				pipeline.InChat(cfg.Pipeline.IdeasChatID),
				pipeline.InThread(cfg.Pipeline.IdeaThreadID),
				pipeline.HasText(),
			},
			Actions: []pipeline.Action{
				pipeline.CreateSupergroup{BotToAdd: cfg.Pipeline.BotUsername},
			},
		})
	}

	if cfg.OpenAI.APIKey != "" {
		assistant := responder.NewOpenAIResponder(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			cfg.OpenAI.HistoryLimit,
			store,
			logger,
		)
		steps = append(steps, pipeline.Step{
			Name: "assistant-reply",
			Filters: []pipeline.Filter{
				pipeline.ChatTypeIs(models.ChatTypePrivate),
				pipeline.HasText(),
			},
			Actions: []pipeline.Action{
				pipeline.InvokeFunction{Name: "assistant", Callback: assistant.Reply},
			},
		})
	}

	return steps
}
