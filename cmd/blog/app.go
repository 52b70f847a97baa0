package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"jakob-blog/internal/bot"
	"jakob-blog/internal/config"
	"jakob-blog/internal/database"
	"jakob-blog/internal/logging"
	"jakob-blog/internal/metrics"
	"jakob-blog/internal/services"
)

// app: общие зависимости всех команд
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	db      *sql.DB
	repo    *database.Repository

	auth     *services.AuthService
	users    *services.UserService
	posts    *services.PostService
	media    *services.MediaService
	comments *services.CommentService
	settings *services.SettingsService
}

// newApp читает конфиг, открывает базу и применяет миграции
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(ctx, cfg, logger)
	if err != nil {
		logger.Error("database initialization failed", zap.Error(err))
		_ = logger.Sync()
		return nil, err
	}

	repo := database.NewRepository(db)
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		db:       db,
		repo:     repo,
		auth:     services.NewAuthService(repo, repo, cfg, logger),
		users:    services.NewUserService(repo, logger),
		posts:    services.NewPostService(repo, repo, logger),
		media:    services.NewMediaService(repo, cfg, logger),
		comments: services.NewCommentService(repo, logger),
		settings: services.NewSettingsService(repo, cfg, logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// telegram подключается к Bot API
func (a *app) telegram() (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(a.cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	api.Debug = a.cfg.Debug
	a.logger.Info("authorized on Telegram", zap.String("bot", api.Self.UserName))
	return api, nil
}

// stateStore выбирает Redis, если задан REDIS_URL, иначе память процесса
func (a *app) stateStore(ctx context.Context) (bot.StateStore, func(), error) {
	if a.cfg.RedisURL == "" {
		a.logger.Warn("REDIS_URL is not set, conversations are kept in memory")
		return bot.NewMemoryStateStore(a.cfg.ConversationTTL), func() {}, nil
	}
	store, err := bot.NewRedisStateStore(ctx, a.cfg.RedisURL, a.cfg.ConversationTTL)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}, nil
}

// newBot собирает бота вместе с рассылкой уведомлений
func (a *app) newBot(ctx context.Context, api *tgbotapi.BotAPI) (*bot.Bot, *services.NotifyService, func(), error) {
	states, closeStates, err := a.stateStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	notify := services.NewNotifyService(a.repo, bot.NewSender(api), a.cfg, a.logger, a.metrics)

	transcriber := services.NewTranscriptionService(a.cfg, a.logger, a.metrics)
	if !transcriber.Enabled() {
		a.logger.Warn("OPENAI_API_KEY is not set, voice transcription is disabled")
	}

	b := bot.New(api, bot.Deps{
		Auth:        a.auth,
		Posts:       a.posts,
		Media:       a.media,
		Notify:      notify,
		Transcriber: transcriber,
		States:      states,
		Config:      a.cfg,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
	return b, notify, closeStates, nil
}
