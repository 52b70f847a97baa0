package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"jakob-blog/internal/models"
)

// Step: шаг диалога создания поста
type Step string

const (
	StepType         Step = "waiting_for_type"
	StepTitle        Step = "waiting_for_title"
	StepContent      Step = "waiting_for_content"
	StepConfirmAudio Step = "confirm_save_audio"
	StepVisibility   Step = "waiting_for_visibility"
	StepMedia        Step = "waiting_for_media"
	StepPublish      Step = "waiting_for_publish_choice"
)

const (
	PostTypeText  = "text"
	PostTypeVoice = "voice"
)

// Conversation: состояние диалога в одном чате. Байты файлов здесь не хранятся,
// только id уже сохранённых медиа.
type Conversation struct {
	Step         Step                  `json:"step"`
	PostType     string                `json:"post_type,omitempty"`
	Title        string                `json:"title,omitempty"`
	Content      string                `json:"content,omitempty"`
	VoiceMediaID uuid.NullUUID         `json:"voice_media_id"`
	MediaLabel   string                `json:"media_type_label,omitempty"`
	SaveOriginal bool                  `json:"save_original,omitempty"`
	Visibility   models.PostVisibility `json:"visibility,omitempty"`
	MediaIDs     []uuid.UUID           `json:"media_ids,omitempty"`
}

// StateStore хранит не больше одного диалога на чат
type StateStore interface {
	// Get возвращает nil без ошибки, если диалога нет
	Get(ctx context.Context, chatID int64) (*Conversation, error)
	Set(ctx context.Context, chatID int64, c *Conversation) error
	// Clear сообщает, был ли диалог
	Clear(ctx context.Context, chatID int64) (bool, error)
}

type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore подключается к Redis по URL вида redis://host:6379/0
func NewRedisStateStore(ctx context.Context, url string, ttl time.Duration) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStateStore{client: client, ttl: ttl}, nil
}

func redisKey(chatID int64) string {
	return "blog:conversation:" + strconv.FormatInt(chatID, 10)
}

func (s *RedisStateStore) Get(ctx context.Context, chatID int64) (*Conversation, error) {
	raw, err := s.client.Get(ctx, redisKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var c Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &c, nil
}

func (s *RedisStateStore) Set(ctx context.Context, chatID int64, c *Conversation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(chatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Clear(ctx context.Context, chatID int64) (bool, error) {
	n, err := s.client.Del(ctx, redisKey(chatID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to clear conversation: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryStateStore: хранилище диалогов в памяти процесса, когда Redis не настроен
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration

	now func() time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStateStore) Get(_ context.Context, chatID int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, chatID)
		return nil, nil
	}
	var c Conversation
	if err := json.Unmarshal(e.raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MemoryStateStore) Set(_ context.Context, chatID int64, c *Conversation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = memoryEntry{raw: raw, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	delete(s.entries, chatID)
	return ok && s.now().Before(e.expiresAt), nil
}
