package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

const (
	minTitleLength   = 3
	minContentLength = 10
)

func (b *Bot) saveState(ctx context.Context, chatID int64, conv *Conversation) bool {
	if err := b.States.Set(ctx, chatID, conv); err != nil {
		b.Logger.Error("failed to save conversation", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(chatID, "❌ Произошла ошибка. Начните заново с /newpost")
		return false
	}
	return true
}

// handleNewPost начинает диалог создания поста, заменяя предыдущий
func (b *Bot) handleNewPost(ctx context.Context, msg *tgbotapi.Message) {
	if _, ok := b.requireAdmin(ctx, msg.From); !ok {
		b.reply(msg.Chat.ID, "❌ Только администраторы могут создавать посты.")
		return
	}

	if !b.saveState(ctx, msg.Chat.ID, &Conversation{Step: StepType}) {
		return
	}
	kb := postTypeKeyboard()
	b.replyWithKeyboard(msg.Chat.ID, "📝 <b>Создание нового поста</b>\n\nВыберите тип поста:", &kb)
}

func (b *Bot) processPostType(ctx context.Context, query *tgbotapi.CallbackQuery, conv *Conversation) {
	conv.PostType = PostTypeText
	label := "📝 Текстовый"
	if query.Data == cbTypeVoice {
		conv.PostType = PostTypeVoice
		label = "🎤 Аудио/Видео"
	}
	conv.Step = StepTitle
	if !b.saveState(ctx, query.Message.Chat.ID, conv) {
		return
	}
	b.Logger.Info("post type selected", zap.Int("telegram_id", query.From.ID), zap.String("type", conv.PostType))
	b.edit(query.Message, fmt.Sprintf("✅ Тип: <b>%s</b>\n\nОтправьте <b>заголовок</b> поста:", label), nil)
}

func (b *Bot) processTitle(ctx context.Context, msg *tgbotapi.Message, conv *Conversation) {
	if msg.Text == "" {
		b.reply(msg.Chat.ID, "⚠️ Пожалуйста, отправьте текстовый заголовок.")
		return
	}
	title := strings.TrimSpace(msg.Text)
	n := utf8.RuneCountInString(title)
	if n < minTitleLength {
		b.reply(msg.Chat.ID, fmt.Sprintf("Заголовок слишком короткий. Минимум %d символа.", minTitleLength))
		return
	}
	if n > services.MaxTitleLength {
		b.reply(msg.Chat.ID, fmt.Sprintf("Заголовок слишком длинный. Максимум %d символов.", services.MaxTitleLength))
		return
	}

	conv.Title = title
	conv.Step = StepContent
	if !b.saveState(ctx, msg.Chat.ID, conv) {
		return
	}

	escaped := html.EscapeString(title)
	if conv.PostType == PostTypeVoice {
		b.reply(msg.Chat.ID, fmt.Sprintf("✅ Заголовок: <b>%s</b>\n\n"+
			"Теперь отправьте <b>голосовое сообщение</b> или <b>видео-кружочек</b>:", escaped))
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Заголовок: <b>%s</b>\n\n"+
		"Теперь отправьте <b>текст</b> поста (поддерживается Markdown):", escaped))
}

// recording: голосовое, кружочек, аудио или видео для расшифровки
type recording struct {
	fileID   string
	filename string
	mimeType string
	label    string
	progress string
	notText  string
	empty    string
}

func recordingFrom(msg *tgbotapi.Message) (recording, bool) {
	id := msg.MessageID
	switch {
	case msg.Voice != nil:
		return recording{
			fileID:   msg.Voice.FileID,
			filename: fmt.Sprintf("voice_%d.ogg", id),
			mimeType: "audio/ogg",
			label:    "аудио",
			progress: "🎤 Транскрибирую голосовое сообщение...",
			notText:  "⚠️ Отправьте текст, не голосовое сообщение.",
			empty:    "❌ Не удалось распознать речь в сообщении.",
		}, true
	case msg.VideoNote != nil:
		return recording{
			fileID:   msg.VideoNote.FileID,
			filename: fmt.Sprintf("video_note_%d.mp4", id),
			mimeType: "video/mp4",
			label:    "видео",
			progress: "🎬 Транскрибирую видео-кружочек...",
			notText:  "⚠️ Отправьте текст, не видео-кружочек.",
			empty:    "❌ Не удалось распознать речь в видео.",
		}, true
	case msg.Audio != nil:
		return recording{
			fileID:   msg.Audio.FileID,
			filename: fmt.Sprintf("audio_%d.mp3", id),
			mimeType: orDefault(msg.Audio.MimeType, "audio/mpeg"),
			label:    "аудио",
			progress: "🎤 Транскрибирую аудиофайл...",
			notText:  "⚠️ Отправьте текст, не аудиофайл.",
			empty:    "❌ Не удалось распознать речь в аудио.",
		}, true
	case msg.Video != nil:
		return recording{
			fileID:   msg.Video.FileID,
			filename: fmt.Sprintf("video_%d.mp4", id),
			mimeType: orDefault(msg.Video.MimeType, "video/mp4"),
			label:    "видео",
			progress: "🎬 Транскрибирую видеофайл...",
			notText:  "⚠️ Отправьте текст, не видеофайл.",
			empty:    "❌ Не удалось распознать речь в видео.",
		}, true
	}
	return recording{}, false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (b *Bot) processContent(ctx context.Context, msg *tgbotapi.Message, conv *Conversation) {
	rec, isRecording := recordingFrom(msg)

	if conv.PostType == PostTypeVoice {
		if !isRecording {
			if msg.Text != "" {
				b.reply(msg.Chat.ID, "⚠️ Отправьте голосовое сообщение или видео-кружочек, не текст.")
			}
			return
		}
		b.transcribe(ctx, msg, conv, rec)
		return
	}

	if isRecording {
		b.reply(msg.Chat.ID, rec.notText)
		return
	}
	if msg.Text == "" {
		return
	}

	content := strings.TrimSpace(msg.Text)
	if utf8.RuneCountInString(content) < minContentLength {
		b.reply(msg.Chat.ID, fmt.Sprintf("Текст слишком короткий. Минимум %d символов.", minContentLength))
		return
	}
	conv.Content = content
	b.askVisibility(ctx, msg.Chat.ID, conv)
}

// transcribe скачивает запись, распознаёт речь и сразу сохраняет оригинал как медиа,
// чтобы в состоянии диалога хранился только его id
func (b *Bot) transcribe(ctx context.Context, msg *tgbotapi.Message, conv *Conversation, rec recording) {
	chatID := msg.Chat.ID
	b.reply(chatID, rec.progress)

	content, err := b.download(ctx, rec.fileID, b.Config.MaxVideoSize)
	if err != nil {
		b.Logger.Warn("failed to download recording", zap.Error(err))
		b.reply(chatID, "❌ Ошибка загрузки файла: "+html.EscapeString(err.Error()))
		return
	}

	text, err := b.Transcriber.Transcribe(ctx, content, rec.filename)
	if err != nil {
		b.Logger.Warn("transcription failed", zap.Error(err))
		b.reply(chatID, "❌ Ошибка транскрибации: "+html.EscapeString(err.Error()))
		return
	}
	if strings.TrimSpace(text) == "" {
		b.reply(chatID, rec.empty)
		return
	}
	text = b.Transcriber.Format(ctx, text)

	conv.VoiceMediaID = uuid.NullUUID{}
	if user, _, err := b.ensureUser(ctx, msg.From); err == nil {
		m, err := b.Media.SaveBytes(ctx, content, rec.filename, rec.mimeType,
			uuid.NullUUID{UUID: user.ID, Valid: true}, rec.fileID)
		if err != nil {
			b.Logger.Warn("failed to keep original recording", zap.Error(err))
		} else {
			conv.VoiceMediaID = uuid.NullUUID{UUID: m.ID, Valid: true}
		}
	}

	conv.Content = text
	conv.MediaLabel = rec.label
	conv.Step = StepConfirmAudio
	if !b.saveState(ctx, chatID, conv) {
		return
	}

	kb := saveOriginalKeyboard(rec.label)
	b.replyWithKeyboard(chatID, fmt.Sprintf("📝 <b>Транскрипция:</b>\n\n%s\n\nСохранить оригинальное %s к посту?",
		html.EscapeString(text), rec.label), &kb)
}

func (b *Bot) processSaveOriginal(ctx context.Context, query *tgbotapi.CallbackQuery, conv *Conversation) {
	conv.SaveOriginal = query.Data == cbSaveYes
	status := "Без " + conv.MediaLabel
	if conv.SaveOriginal {
		status = "С " + conv.MediaLabel
	}
	b.edit(query.Message, fmt.Sprintf("✅ %s\n\n📝 Контент сохранён.\n\nТеперь выберите уровень видимости:", status), nil)
	b.askVisibility(ctx, query.Message.Chat.ID, conv)
}

func (b *Bot) askVisibility(ctx context.Context, chatID int64, conv *Conversation) {
	conv.Step = StepVisibility
	if !b.saveState(ctx, chatID, conv) {
		return
	}
	kb := visibilityKeyboard()
	b.replyWithKeyboard(chatID, "Выберите уровень видимости:", &kb)
}

func (b *Bot) processVisibility(ctx context.Context, query *tgbotapi.CallbackQuery, conv *Conversation) {
	v, ok := models.ParseVisibility(strings.TrimPrefix(query.Data, cbVisPrefix))
	if !ok {
		return
	}
	conv.Visibility = v
	conv.MediaIDs = nil
	conv.Step = StepMedia
	if !b.saveState(ctx, query.Message.Chat.ID, conv) {
		return
	}

	kb := mediaKeyboard()
	b.edit(query.Message, fmt.Sprintf("✅ Видимость: <b>%s</b>\n\n"+
		"Теперь можете отправить <b>медиафайлы</b> (фото, аудио, видео).\n"+
		"Отправляйте файлы по одному, затем нажмите 'Готово'.\n\n"+
		"Или нажмите 'Пропустить медиа' для создания поста без файлов.", visibilityLabels[v]), &kb)
}

// attachment: файл из сообщения на шаге медиа
type attachment struct {
	fileID    string
	filename  string
	mimeType  string
	mediaType models.MediaType
}

func attachmentFrom(msg *tgbotapi.Message) (attachment, bool, bool) {
	id := msg.MessageID
	switch {
	case msg.Photo != nil && len(*msg.Photo) > 0:
		photos := *msg.Photo
		largest := photos[len(photos)-1]
		return attachment{largest.FileID, fmt.Sprintf("photo_%d.jpg", id), "image/jpeg", models.MediaImage}, true, true
	case msg.Audio != nil:
		return attachment{msg.Audio.FileID, fmt.Sprintf("audio_%d.mp3", id),
			orDefault(msg.Audio.MimeType, "audio/mpeg"), models.MediaAudio}, true, true
	case msg.Video != nil:
		return attachment{msg.Video.FileID, fmt.Sprintf("video_%d.mp4", id),
			orDefault(msg.Video.MimeType, "video/mp4"), models.MediaVideo}, true, true
	case msg.Document != nil:
		doc := msg.Document
		name := doc.FileName
		if name == "" {
			name = fmt.Sprintf("file_%d", id)
		}
		mime := strings.ToLower(doc.MimeType)
		for _, t := range []models.MediaType{models.MediaImage, models.MediaAudio, models.MediaVideo} {
			if strings.HasPrefix(mime, string(t)+"/") {
				return attachment{doc.FileID, name, doc.MimeType, t}, true, true
			}
		}
		return attachment{}, true, false
	}
	return attachment{}, false, false
}

var mediaLabels = map[models.MediaType]string{
	models.MediaImage: "Фото",
	models.MediaAudio: "Аудио",
	models.MediaVideo: "Видео",
}

func (b *Bot) processMedia(ctx context.Context, msg *tgbotapi.Message, conv *Conversation) {
	chatID := msg.Chat.ID
	att, isFile, supported := attachmentFrom(msg)
	if !isFile {
		return
	}
	if !supported {
		b.reply(chatID, "⚠️ Неподдерживаемый тип файла. Отправьте изображение, аудио или видео.")
		return
	}

	content, err := b.download(ctx, att.fileID, b.Config.MaxVideoSize)
	if err != nil {
		b.Logger.Warn("failed to download media", zap.Error(err))
		b.reply(chatID, "❌ Ошибка загрузки файла: "+html.EscapeString(err.Error()))
		return
	}

	user, _, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		b.reply(chatID, "❌ Пользователь не найден.")
		return
	}

	m, err := b.Media.SaveBytes(ctx, content, att.filename, att.mimeType,
		uuid.NullUUID{UUID: user.ID, Valid: true}, att.fileID)
	if err != nil {
		if text, ok := services.IsValidation(err); ok {
			b.reply(chatID, "❌ Ошибка: "+html.EscapeString(text))
			return
		}
		b.Logger.Error("failed to save media", zap.Error(err))
		b.reply(chatID, "❌ Ошибка сохранения файла.")
		return
	}

	conv.MediaIDs = append(conv.MediaIDs, m.ID)
	if !b.saveState(ctx, chatID, conv) {
		return
	}

	kb := mediaDoneKeyboard()
	b.replyWithKeyboard(chatID, fmt.Sprintf("✅ %s сохранено! (всего %d файлов)\n\n"+
		"Отправьте ещё файлы или нажмите <b>Готово</b>.", mediaLabels[att.mediaType], len(conv.MediaIDs)), &kb)
}

func (b *Bot) processMediaDone(ctx context.Context, query *tgbotapi.CallbackQuery, conv *Conversation) {
	conv.Step = StepPublish
	if !b.saveState(ctx, query.Message.Chat.ID, conv) {
		return
	}
	kb := publishKeyboard()
	b.edit(query.Message, "📄 <b>Последний шаг</b>\n\nВыберите действие:", &kb)
}

// processPublish создаёт пост, привязывает медиа и сообщает итог
func (b *Bot) processPublish(ctx context.Context, query *tgbotapi.CallbackQuery, conv *Conversation) {
	chatID := query.Message.Chat.ID
	publishNow := query.Data == cbPublishNow
	if _, err := b.States.Clear(ctx, chatID); err != nil {
		b.Logger.Warn("failed to clear conversation", zap.Error(err))
	}

	user, _, err := b.ensureUser(ctx, query.From)
	if err != nil {
		b.edit(query.Message, "❌ Пользователь не найден.", nil)
		return
	}

	post, err := b.Posts.Create(ctx, services.PostInput{
		AuthorID:   uuid.NullUUID{UUID: user.ID, Valid: true},
		Title:      conv.Title,
		ContentMD:  conv.Content,
		Visibility: conv.Visibility,
		Status:     models.StatusDraft,
	})
	if err != nil {
		b.Logger.Error("failed to create post from bot", zap.Error(err))
		text := "❌ Не удалось создать пост."
		if msg, ok := services.IsValidation(err); ok {
			text += " " + html.EscapeString(msg)
		}
		b.edit(query.Message, text, nil)
		return
	}

	status := "Черновик"
	if publishNow {
		published, _, err := b.Posts.Publish(ctx, post.ID)
		if err != nil {
			b.Logger.Error("failed to publish post", zap.String("post_id", post.ID.String()), zap.Error(err))
		} else {
			post = published
			status = "Опубликован"
		}
	}

	keepOriginal := conv.SaveOriginal && conv.VoiceMediaID.Valid
	start := 0
	if keepOriginal {
		if _, err := b.Media.AttachWithOrder(ctx, conv.VoiceMediaID.UUID, post.ID, 0, user); err != nil {
			b.Logger.Warn("failed to attach recording", zap.Error(err))
		}
		start = 1
	}
	for i, id := range conv.MediaIDs {
		if _, err := b.Media.AttachWithOrder(ctx, id, post.ID, start+i, user); err != nil {
			b.Logger.Warn("failed to attach media", zap.String("media_id", id.String()), zap.Error(err))
		}
	}

	if post.IsPublished() {
		b.Notify.NotifyNewPostAsync(post)
	}

	var extras []string
	if keepOriginal {
		extras = append(extras, conv.MediaLabel)
	}
	if len(conv.MediaIDs) > 0 {
		extras = append(extras, fmt.Sprintf("%d файл(ов)", len(conv.MediaIDs)))
	}
	mediaText := ""
	if len(extras) > 0 {
		mediaText = "\nМедиа: " + strings.Join(extras, ", ")
	}

	url := b.Config.BaseURL + "/posts/" + post.Slug
	b.edit(query.Message, fmt.Sprintf("✅ <b>Пост создан!</b>\n\n📝 %s\n👁 Видимость: %s\n📄 Статус: %s%s\n\n<a href='%s'>Открыть пост</a>",
		html.EscapeString(post.Title), post.Visibility, status, mediaText, html.EscapeString(url)), nil)

	b.Logger.Info("post created from bot",
		zap.String("post_id", post.ID.String()),
		zap.Bool("published", post.IsPublished()),
		zap.Int("media", len(conv.MediaIDs)))
}
