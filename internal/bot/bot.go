package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/metrics"
	"jakob-blog/internal/services"
)

// API: часть tgbotapi.BotAPI, которой пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// UpdateSource: источник апдейтов для long polling
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) (tgbotapi.UpdatesChannel, error)
	StopReceivingUpdates()
}

type Deps struct {
	Auth        *services.AuthService
	Posts       *services.PostService
	Media       *services.MediaService
	Notify      *services.NotifyService
	Transcriber services.Transcriber
	States      StateStore
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	HTTPClient  *http.Client
}

type Bot struct {
	API API
	Deps

	queueMu sync.Mutex
	queues  map[int64][]tgbotapi.Update
	wg      sync.WaitGroup
}

const updateTimeout = 5 * time.Minute

func New(api API, deps Deps) *Bot {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Bot{
		API:    api,
		Deps:   deps,
		queues: make(map[int64][]tgbotapi.Update),
	}
}

// Poll читает апдейты через long polling до отмены ctx
func (b *Bot) Poll(ctx context.Context, source UpdateSource) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := source.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	b.Logger.Info("bot polling started")
	for {
		select {
		case <-ctx.Done():
			source.StopReceivingUpdates()
			b.Logger.Info("bot polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.enqueue(ctx, update)
		}
	}
}

// Dispatch обрабатывает апдейт в фоне. Используется вебхуком, чтобы быстро ответить Telegram.
func (b *Bot) Dispatch(update tgbotapi.Update) {
	b.enqueue(context.Background(), update)
}

// Wait ждёт, пока разберутся все поставленные в очередь апдейты
func (b *Bot) Wait() {
	b.wg.Wait()
}

// enqueue ставит апдейт в очередь его чата. Чаты обрабатываются параллельно,
// апдейты одного чата строго по порядку поступления.
func (b *Bot) enqueue(ctx context.Context, update tgbotapi.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handle(ctx, update)
		}()
		return
	}

	b.queueMu.Lock()
	pending, running := b.queues[chatID]
	b.queues[chatID] = append(pending, update)
	if running {
		b.queueMu.Unlock()
		return
	}
	b.wg.Add(1)
	b.queueMu.Unlock()

	go b.drain(ctx, chatID)
}

// drain разбирает очередь чата и удаляет её, когда она опустела
func (b *Bot) drain(ctx context.Context, chatID int64) {
	defer b.wg.Done()
	for {
		b.queueMu.Lock()
		pending := b.queues[chatID]
		if len(pending) == 0 {
			delete(b.queues, chatID)
			b.queueMu.Unlock()
			return
		}
		update := pending[0]
		b.queues[chatID] = pending[1:]
		b.queueMu.Unlock()

		b.handle(ctx, update)
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()
	b.HandleUpdate(ctx, update)
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

// Sender отправляет HTML-сообщения и реализует services.Messenger
type Sender struct {
	API API
}

func NewSender(api API) *Sender {
	return &Sender{API: api}
}

func (s *Sender) SendHTML(_ context.Context, chatID int64, text string, button *services.LinkButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if button != nil {
		msg.ReplyMarkup = linkKeyboard(button.Text, button.URL)
	}
	_, err := s.API.Send(msg)
	return err
}

// download скачивает файл из Telegram, не больше limit байт
func (b *Bot) download(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	url, err := b.API.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download returned %s", resp.Status)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("file is larger than %d MB", limit/(1024*1024))
	}
	return content, nil
}
