package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
)

func fullName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

// ensureUser находит или создаёт пользователя по отправителю сообщения
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*models.User, bool, error) {
	return b.Auth.EnsureUser(ctx, int64(from.ID), from.UserName, fullName(from))
}

// requireAdmin возвращает пользователя, если он активный администратор
func (b *Bot) requireAdmin(ctx context.Context, from *tgbotapi.User) (*models.User, bool) {
	if from == nil || !b.Auth.IsAdmin(ctx, int64(from.ID)) {
		return nil, false
	}
	user, _, err := b.ensureUser(ctx, from)
	if err != nil {
		b.Logger.Error("failed to load admin", zap.Int("telegram_id", from.ID), zap.Error(err))
		return nil, false
	}
	return user, user.IsActive
}

const commandHints = "Используйте /login для получения кода входа на сайт.\n" +
	"Используйте /newpost для создания нового поста (только для админов)."

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	_, created, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		b.Logger.Error("failed to register user", zap.Int("telegram_id", msg.From.ID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	name := html.EscapeString(fullName(msg.From))
	if created {
		b.reply(msg.Chat.ID, fmt.Sprintf("🎉 Добро пожаловать, <b>%s</b>!\n\nВаш аккаунт создан.\n\n%s", name, commandHints))
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("👋 С возвращением, <b>%s</b>!\n\n%s", name, commandHints))
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		b.Logger.Error("failed to register user", zap.Int("telegram_id", msg.From.ID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}
	if !user.IsActive {
		b.reply(msg.Chat.ID, "❌ Ваш аккаунт заблокирован.")
		return
	}

	code, err := b.Auth.CreateAuthCode(ctx, user.TelegramID)
	if err != nil {
		b.Logger.Error("failed to issue auth code", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Не удалось создать код. Попробуйте позже.")
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("🔐 <b>Ваш код для входа:</b>\n\n<code>%s</code>\n\n"+
		"Введите этот код на сайте для входа.\nКод действителен %d минут.",
		code.Code, int(b.Config.AuthCodeExpire.Minutes())))
}
