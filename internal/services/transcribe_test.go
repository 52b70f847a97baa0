package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOpenAI(t *testing.T, chatStatus int) *TranscriptionService {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "ru", r.FormValue("language"))
		json.NewEncoder(w).Encode(map[string]string{"text": " привет как дела "})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if chatStatus != http.StatusOK {
			w.WriteHeader(chatStatus)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "boom"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Привет! Как дела?"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	svc := NewTranscriptionService(cfg, nopLogger(), nil)
	conf := openai.DefaultConfig("test-key")
	conf.BaseURL = srv.URL + "/v1"
	svc.client = openai.NewClientWithConfig(conf)
	return svc
}

func TestTranscriptionDisabled(t *testing.T) {
	svc := NewTranscriptionService(testConfig(t), nopLogger(), nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Transcribe(context.Background(), []byte("ogg"), "voice.ogg")
	assert.ErrorIs(t, err, ErrTranscriptionDisabled)
	assert.Equal(t, "как есть", svc.Format(context.Background(), "как есть"))
}

func TestTranscribeAndFormat(t *testing.T) {
	svc := newFakeOpenAI(t, http.StatusOK)
	ctx := context.Background()

	text, err := svc.Transcribe(ctx, []byte("ogg"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "привет как дела", text)
	assert.Equal(t, "Привет! Как дела?", svc.Format(ctx, text))
}

func TestFormatFallsBackOnError(t *testing.T) {
	svc := newFakeOpenAI(t, http.StatusInternalServerError)
	assert.Equal(t, "сырой текст", svc.Format(context.Background(), "сырой текст"))
}
