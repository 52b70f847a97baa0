package bot

import (
	"context"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

// HandleUpdate обрабатывает все входящие апдейты. Паника в обработчике не роняет цикл.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.Metrics.BotUpdate("callback")
		b.HandleCallbackQuery(ctx, update.CallbackQuery)

	case update.Message != nil && update.Message.From != nil:
		if update.Message.IsCommand() {
			b.Metrics.BotUpdate("command")
			b.HandleCommand(ctx, update.Message)
		} else {
			b.Metrics.BotUpdate("message")
			b.HandleMessage(ctx, update.Message)
		}

	default:
		b.Metrics.BotUpdate("other")
	}
}

// HandleCommand обрабатывает текстовые команды
func (b *Bot) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.Logger.Debug("command", zap.String("command", msg.Command()), zap.Int("telegram_id", msg.From.ID))

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "login":
		b.handleLogin(ctx, msg)
	case "help":
		b.SendHelpMessage(msg.Chat.ID)
	case "newpost":
		b.handleNewPost(ctx, msg)
	case "cancel":
		b.handleCancel(ctx, msg)
	case "testnotify":
		b.handleTestNotify(ctx, msg)
	default:
		b.SendUnknownCommand(msg.Chat.ID)
	}
}

// HandleMessage передаёт обычные сообщения в текущий диалог, если он есть
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	conv, err := b.States.Get(ctx, msg.Chat.ID)
	if err != nil {
		b.Logger.Error("failed to load conversation", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}
	if conv == nil {
		return
	}

	switch conv.Step {
	case StepTitle:
		b.processTitle(ctx, msg, conv)
	case StepContent:
		b.processContent(ctx, msg, conv)
	case StepMedia:
		b.processMedia(ctx, msg, conv)
	}
}

// HandleCallbackQuery обрабатывает нажатия инлайн-кнопок
func (b *Bot) HandleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answer(query.ID, "")
		return
	}
	chatID := query.Message.Chat.ID
	data := query.Data

	conv, err := b.States.Get(ctx, chatID)
	if err != nil {
		b.Logger.Error("failed to load conversation", zap.Int64("chat_id", chatID), zap.Error(err))
		b.answer(query.ID, "Ошибка")
		return
	}

	var expected Step
	switch {
	case data == cbTypeText || data == cbTypeVoice:
		expected = StepType
	case data == cbSaveYes || data == cbSaveNo:
		expected = StepConfirmAudio
	case strings.HasPrefix(data, cbVisPrefix):
		expected = StepVisibility
	case data == cbMediaDone || data == cbMediaSkip:
		expected = StepMedia
	case data == cbPublishNow || data == cbPublishDraft:
		expected = StepPublish
	default:
		b.answer(query.ID, "")
		return
	}

	if conv == nil || conv.Step != expected {
		b.Logger.Warn("stale callback", zap.Int("telegram_id", query.From.ID), zap.String("data", data))
		b.edit(query.Message, "⚠️ Сессия устарела. Пожалуйста, начните заново с /newpost", nil)
		b.answer(query.ID, "Сессия устарела")
		return
	}

	switch expected {
	case StepType:
		b.processPostType(ctx, query, conv)
	case StepConfirmAudio:
		b.processSaveOriginal(ctx, query, conv)
	case StepVisibility:
		b.processVisibility(ctx, query, conv)
	case StepMedia:
		b.processMediaDone(ctx, query, conv)
	case StepPublish:
		b.processPublish(ctx, query, conv)
	}
	b.answer(query.ID, "")
}

func (b *Bot) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	existed, err := b.States.Clear(ctx, msg.Chat.ID)
	if err != nil {
		b.Logger.Error("failed to clear conversation", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
	if !existed {
		b.reply(msg.Chat.ID, "Нечего отменять.")
		return
	}
	b.reply(msg.Chat.ID, "✅ Действие отменено.")
}

// handleTestNotify показывает администратору, как выглядит уведомление о посте
func (b *Bot) handleTestNotify(ctx context.Context, msg *tgbotapi.Message) {
	if _, ok := b.requireAdmin(ctx, msg.From); !ok {
		b.reply(msg.Chat.ID, "❌ Эта команда доступна только администраторам.")
		return
	}

	text := services.NewPostMessage("Пример заголовка поста",
		"Это тестовое уведомление, которое показывает как будет выглядеть уведомление о новом посте для пользователей.",
		models.VisibilityPublic)
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.ReplyMarkup = linkKeyboard("Читать пост", b.Config.BaseURL)
	if _, err := b.API.Send(m); err != nil {
		b.Logger.Warn("failed to send test notification", zap.Error(err))
	}
}

// Вспомогательные методы для отправки сообщений

func (b *Bot) reply(chatID int64, text string) {
	b.replyWithKeyboard(chatID, text, nil)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.API.Send(msg); err != nil {
		b.Logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// edit меняет сообщение с кнопками, а если это не удалось, шлёт новое
func (b *Bot) edit(msg *tgbotapi.Message, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	e := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, text)
	e.ParseMode = tgbotapi.ModeHTML
	e.ReplyMarkup = keyboard
	if _, err := b.API.Send(e); err != nil {
		b.Logger.Debug("edit failed, sending new message", zap.Error(err))
		b.replyWithKeyboard(msg.Chat.ID, text, keyboard)
	}
}

func (b *Bot) answer(queryID, text string) {
	if _, err := b.API.AnswerCallbackQuery(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.Logger.Debug("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) SendHelpMessage(chatID int64) {
	helpText := "📚 <b>Доступные команды:</b>\n\n" +
		"/start - Запустить бота\n" +
		"/login - Получить код для входа на сайт\n" +
		"/newpost - Создать новый пост (для админов)\n" +
		"/testnotify - Тестовое уведомление (для админов)\n" +
		"/cancel - Отменить текущее действие\n" +
		"/help - Показать эту справку"
	b.reply(chatID, helpText)
}

func (b *Bot) SendUnknownCommand(chatID int64) {
	b.reply(chatID, "❌ Неизвестная команда. Введите /help для списка команд")
}
