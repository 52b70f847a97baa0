package bot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jakob-blog/internal/models"
)

func sampleConversation() *Conversation {
	return &Conversation{
		Step:         StepMedia,
		PostType:     PostTypeVoice,
		Title:        "Заголовок",
		Content:      "Текст",
		VoiceMediaID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		MediaLabel:   "аудио",
		SaveOriginal: true,
		Visibility:   models.VisibilityPremium1,
		MediaIDs:     []uuid.UUID{uuid.New(), uuid.New()},
	}
}

func exerciseStateStore(t *testing.T, s StateStore) {
	ctx := context.Background()
	const chat = int64(-42)

	got, err := s.Get(ctx, chat)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := sampleConversation()
	require.NoError(t, s.Set(ctx, chat, want))

	got, err = s.Get(ctx, chat)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conversation mismatch (-want +got):\n%s", diff)
	}

	existed, err := s.Clear(ctx, chat)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Clear(ctx, chat)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStateStore(t *testing.T) {
	exerciseStateStore(t, NewMemoryStateStore(time.Hour))
}

func TestMemoryStateStoreExpires(t *testing.T) {
	s := NewMemoryStateStore(time.Minute)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, 1, &Conversation{Step: StepTitle}))
	now = now.Add(59 * time.Second)
	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(time.Second)
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStateStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStateStore(context.Background(), url, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	exerciseStateStore(t, s)
}
