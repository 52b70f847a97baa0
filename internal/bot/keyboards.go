package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"jakob-blog/internal/models"
)

const (
	cbTypeText     = "post_type_text"
	cbTypeVoice    = "post_type_voice"
	cbSaveYes      = "audio_save_yes"
	cbSaveNo       = "audio_save_no"
	cbVisPrefix    = "vis_"
	cbMediaDone    = "media_done"
	cbMediaSkip    = "media_skip"
	cbPublishNow   = "publish_now"
	cbPublishDraft = "publish_draft"
)

var visibilityLabels = map[models.PostVisibility]string{
	models.VisibilityPublic:     "🌍 Публичный",
	models.VisibilityRegistered: "👤 Для зарегистрированных",
	models.VisibilityPremium1:   "⭐ Premium 1",
	models.VisibilityPremium2:   "💎 Premium 2",
}

func linkKeyboard(text, url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(text, url)),
	)
}

func postTypeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📝 Текстовый пост", cbTypeText)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎤 Аудио/Видео пост", cbTypeVoice)),
	)
}

func saveOriginalKeyboard(label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, сохранить "+label, cbSaveYes),
			tgbotapi.NewInlineKeyboardButtonData("❌ Только текст", cbSaveNo),
		),
	)
}

func visibilityKeyboard() tgbotapi.InlineKeyboardMarkup {
	button := func(v models.PostVisibility) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(visibilityLabels[v], cbVisPrefix+string(v))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(models.VisibilityPublic), button(models.VisibilityRegistered)),
		tgbotapi.NewInlineKeyboardRow(button(models.VisibilityPremium1), button(models.VisibilityPremium2)),
	)
}

func mediaKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Готово - Создать пост", cbMediaDone)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Пропустить медиа", cbMediaSkip)),
	)
}

func mediaDoneKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Готово - Создать пост", cbMediaDone)),
	)
}

func publishKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🚀 Опубликовать сейчас", cbPublishNow)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📝 Сохранить как черновик", cbPublishDraft)),
	)
}
