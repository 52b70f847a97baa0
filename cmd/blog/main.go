package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "blog",
		Short:        "Мир Якоба: блог и Telegram-бот",
		SilenceUsage: true,
	}

	var polling bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить веб-сервер, вебхук бота и фоновые задачи",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), polling)
		},
	}
	serveCmd.Flags().BoolVar(&polling, "polling", false, "получать апдейты бота через long polling вместо вебхука")

	botCmd := &cobra.Command{
		Use:   "bot",
		Short: "Запустить только бота в режиме long polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции базы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	}

	makeAdminCmd := &cobra.Command{
		Use:   "make-admin <telegram_id>",
		Short: "Сделать пользователя администратором",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMakeAdmin(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	webhookCmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Зарегистрировать вебхук бота в Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetWebhook(cmd.Context(), cmd.OutOrStdout())
		},
	}

	root.AddCommand(serveCmd, botCmd, migrateCmd, makeAdminCmd, webhookCmd)
	return root
}
