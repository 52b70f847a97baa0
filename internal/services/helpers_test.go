package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/database/memdb"
	"jakob-blog/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:         "Мир Якоба",
		BaseURL:         "https://example.org",
		AdminIDs:        []int64{1000},
		UploadDir:       t.TempDir(),
		StaticDir:       t.TempDir(),
		MaxImageSize:    1 << 20,
		MaxAudioSize:    2 << 20,
		MaxVideoSize:    4 << 20,
		SessionExpire:   24 * time.Hour,
		AuthCodeExpire:  5 * time.Minute,
		ConversationTTL: time.Hour,
		NotifyOnPublish: true,
		OpenAIModel:     "gpt-4o-mini",
	}
}

type sentMessage struct {
	ChatID int64
	Text   string
	Button *LinkButton
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[int64]bool
}

func (f *fakeMessenger) SendHTML(_ context.Context, chatID int64, text string, button *LinkButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[chatID] {
		return errBlocked
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Button: button})
	return nil
}

func (f *fakeMessenger) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

var errBlocked = errors.New("Forbidden: bot was blocked by the user")

func addUser(t *testing.T, s *memdb.Store, tgID int64, level models.AccessLevel, admin bool) *models.User {
	t.Helper()
	u := &models.User{
		TelegramID:  tgID,
		DisplayName: "user",
		AccessLevel: level,
		IsAdmin:     admin,
		IsActive:    true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
