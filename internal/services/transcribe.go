package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/metrics"
)

var ErrTranscriptionDisabled = errors.New("OpenAI API key is not configured")

const (
	transcribeTimeout = 120 * time.Second
	formatTimeout     = 60 * time.Second
	speechLanguage    = "ru"
)

const formatPrompt = `Ты редактор. Расставь знаки препинания в расшифровке голосового сообщения ` +
	`и разбей её на абзацы. Не меняй слова и не добавляй ничего от себя. Верни только текст.`

// Transcriber превращает аудио или видео в текст
type Transcriber interface {
	Transcribe(ctx context.Context, content []byte, filename string) (string, error)
	Format(ctx context.Context, text string) string
}

// TranscriptionService: Whisper для распознавания и чат-модель для оформления текста
type TranscriptionService struct {
	client  *openai.Client
	model   string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTranscriptionService(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *TranscriptionService {
	s := &TranscriptionService{model: cfg.OpenAIModel, logger: logger, metrics: m}
	if cfg.OpenAIAPIKey != "" {
		s.client = openai.NewClient(cfg.OpenAIAPIKey)
	}
	return s
}

func (s *TranscriptionService) Enabled() bool {
	return s.client != nil
}

func (s *TranscriptionService) Transcribe(ctx context.Context, content []byte, filename string) (string, error) {
	if s.client == nil {
		return "", ErrTranscriptionDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   bytes.NewReader(content),
		Language: speechLanguage,
	})
	s.metrics.Transcription(err)
	if err != nil {
		return "", fmt.Errorf("whisper request failed: %w", err)
	}

	s.logger.Info("transcribed", zap.String("file", filename), zap.Int("chars", len([]rune(resp.Text))))
	return strings.TrimSpace(resp.Text), nil
}

// Format оформляет расшифровку. При любой ошибке возвращается исходный текст.
func (s *TranscriptionService) Format(ctx context.Context, text string) string {
	if s.client == nil || strings.TrimSpace(text) == "" {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, formatTimeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: formatPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		s.logger.Warn("failed to format transcription", zap.Error(err))
		return text
	}
	if len(resp.Choices) == 0 {
		return text
	}
	formatted := strings.TrimSpace(resp.Choices[0].Message.Content)
	if formatted == "" {
		return text
	}
	return formatted
}
