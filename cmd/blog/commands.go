package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jakob-blog/internal/config"
	"jakob-blog/internal/database"
	"jakob-blog/internal/logging"
	"jakob-blog/internal/services"
	"jakob-blog/internal/web"
	"jakob-blog/internal/worker"
)

func runServe(ctx context.Context, polling bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	api, err := a.telegram()
	if err != nil {
		return err
	}
	b, notify, closeStates, err := a.newBot(ctx, api)
	if err != nil {
		return err
	}
	defer closeStates()

	srv, err := web.New(web.Deps{
		Auth:     a.auth,
		Users:    a.users,
		Posts:    a.posts,
		Media:    a.media,
		Comments: a.comments,
		Settings: a.settings,
		Notify:   notify,
		Bot:      b,
		DB:       a.repo,
		Config:   a.cfg,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		return worker.NewHousekeeping(a.auth, worker.DefaultInterval, a.logger).Run(gctx)
	})
	if polling {
		if _, err := api.RemoveWebhook(); err != nil {
			return fmt.Errorf("failed to remove webhook: %w", err)
		}
		g.Go(func() error { return b.Poll(gctx, api) })
	} else {
		a.logger.Info("bot updates are served by webhook", zap.String("path", a.cfg.WebhookPath()))
	}

	err = g.Wait()
	b.Wait()
	notify.Wait()
	return err
}

func runBot(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	api, err := a.telegram()
	if err != nil {
		return err
	}
	if _, err := api.RemoveWebhook(); err != nil {
		return fmt.Errorf("failed to remove webhook: %w", err)
	}
	b, notify, closeStates, err := a.newBot(ctx, api)
	if err != nil {
		return err
	}
	defer closeStates()

	err = b.Poll(ctx, api)
	b.Wait()
	notify.Wait()
	return err
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	pending, err := migrator.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("database is up to date")
		return nil
	}
	logger.Info("applying migrations", zap.Strings("pending", pending))
	return migrator.Run(ctx)
}

func runMakeAdmin(ctx context.Context, out io.Writer, arg string) error {
	telegramID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || telegramID <= 0 {
		return fmt.Errorf("invalid telegram id %q", arg)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return grantAdmin(ctx, out, a.users, telegramID)
}

func grantAdmin(ctx context.Context, out io.Writer, users *services.UserService, telegramID int64) error {
	user, err := users.MakeAdmin(ctx, telegramID)
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("user %d not found: they must send /start to the bot first", telegramID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%d) is now an admin\n", user.DisplayName, telegramID)
	return nil
}

func runSetWebhook(_ context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	if _, err := api.RemoveWebhook(); err != nil {
		return fmt.Errorf("failed to remove webhook: %w", err)
	}
	url := cfg.BaseURL + cfg.WebhookPath()
	fmt.Fprintf(out, "Setting webhook to: %s\n", url)
	if _, err := api.SetWebhook(tgbotapi.NewWebhook(url)); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	info, err := api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("failed to get webhook info: %w", err)
	}
	fmt.Fprintf(out, "Webhook set: %s (pending updates: %d)\n", info.URL, info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		fmt.Fprintf(out, "Last error: %s\n", info.LastErrorMessage)
	}
	return nil
}
