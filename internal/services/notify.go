package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jakob-blog/internal/config"
	"jakob-blog/internal/metrics"
	"jakob-blog/internal/models"
	"jakob-blog/pkg/utilities"
)

// LinkButton: inline-кнопка со ссылкой под сообщением
type LinkButton struct {
	Text string
	URL  string
}

// Messenger отправляет HTML-сообщения в Telegram
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string, button *LinkButton) error
}

const (
	notifyExcerptLength = 200
	commentPreview      = 150

	// Telegram допускает около 30 сообщений в секунду на бота
	notifyRate = 20
)

type NotifyService struct {
	users   UserStore
	msg     Messenger
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	wg sync.WaitGroup
}

func NewNotifyService(users UserStore, msg Messenger, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *NotifyService {
	return &NotifyService{
		users:   users,
		msg:     msg,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		limiter: rate.NewLimiter(rate.Limit(notifyRate), 1),
	}
}

func (s *NotifyService) postURL(slug string) string {
	return s.cfg.BaseURL + "/posts/" + slug
}

func (s *NotifyService) send(ctx context.Context, kind string, chatID int64, text string, button *LinkButton) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.msg.SendHTML(ctx, chatID, text, button)
	s.metrics.Notification(kind, err)
	if err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", kind),
			zap.Int64("telegram_id", chatID),
			zap.Error(err))
	}
	return err
}

var visibilityTags = map[models.PostVisibility]string{
	models.VisibilityPremium1: " [Premium]",
	models.VisibilityPremium2: " [Premium+]",
}

// NewPostMessage собирает текст уведомления о новом посте
func NewPostMessage(title, excerpt string, visibility models.PostVisibility) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Новый пост в Мире Якоба!</b>%s\n\n<b>%s</b>\n\n",
		visibilityTags[visibility], html.EscapeString(title))
	if excerpt != "" {
		b.WriteString(html.EscapeString(utilities.Truncate(excerpt, notifyExcerptLength)))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotifyNewPost рассылает уведомление всем, кому виден пост. Возвращает число доставленных.
func (s *NotifyService) NotifyNewPost(ctx context.Context, post *models.Post) (int, error) {
	if !s.cfg.NotifyOnPublish {
		return 0, nil
	}

	// О публичных постах узнают зарегистрированные
	level := post.Visibility.RequiredLevel()
	if level < models.AccessRegistered {
		level = models.AccessRegistered
	}
	users, err := s.users.ListActiveUsers(ctx, level)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		s.logger.Info("no users to notify", zap.String("post_id", post.ID.String()))
		return 0, nil
	}

	text := NewPostMessage(post.Title, post.Excerpt, post.Visibility)
	button := &LinkButton{Text: "Читать пост", URL: s.postURL(post.Slug)}

	sent := 0
	for _, u := range users {
		if err := s.send(ctx, "new_post", u.TelegramID, text, button); err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		sent++
	}

	s.logger.Info("post notifications sent",
		zap.String("post_id", post.ID.String()),
		zap.Int("sent", sent),
		zap.Int("total", len(users)))
	return sent, nil
}

// NotifyNewPostAsync рассылает уведомления в фоне, не привязываясь к запросу
func (s *NotifyService) NotifyNewPostAsync(post *models.Post) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.NotifyNewPost(ctx, post); err != nil {
			s.logger.Error("post notification failed", zap.String("post_id", post.ID.String()), zap.Error(err))
		}
	}()
}

// Wait ждёт завершения фоновых рассылок
func (s *NotifyService) Wait() {
	s.wg.Wait()
}

func commentMessage(header, authorLabel, authorName, postTitle, content string) string {
	return fmt.Sprintf("💬 <b>%s</b>\n\n<b>Пост:</b> %s\n<b>%s:</b> %s\n\n<i>%s</i>",
		header,
		html.EscapeString(postTitle),
		authorLabel,
		html.EscapeString(authorName),
		html.EscapeString(utilities.Truncate(content, commentPreview)))
}

// NotifyAdminsNewComment сообщает администраторам о новом комментарии
func (s *NotifyService) NotifyAdminsNewComment(ctx context.Context, authorName, postTitle, postSlug, content string) bool {
	admins, err := s.users.ListActiveAdmins(ctx)
	if err != nil {
		s.logger.Error("failed to load admins", zap.Error(err))
		return false
	}

	text := commentMessage("Новый комментарий", "Автор", authorName, postTitle, content)
	button := &LinkButton{Text: "Перейти к посту", URL: s.postURL(postSlug)}

	delivered := false
	for _, a := range admins {
		if err := s.send(ctx, "admin_comment", a.TelegramID, text, button); err == nil {
			delivered = true
		}
	}
	return delivered
}

// NotifyCommentReply сообщает автору комментария об ответе.
// Неактивным пользователям и за ответы самому себе ничего не шлём.
func (s *NotifyService) NotifyCommentReply(ctx context.Context, parentAuthor, replyAuthor *models.User, postTitle, postSlug, content string) bool {
	if parentAuthor == nil || !parentAuthor.IsActive {
		return false
	}
	if replyAuthor != nil && replyAuthor.ID == parentAuthor.ID {
		return false
	}
	name := ""
	if replyAuthor != nil {
		name = replyAuthor.DisplayName
	}

	text := commentMessage("Ответ на ваш комментарий", "Автор ответа", name, postTitle, content)
	button := &LinkButton{Text: "Перейти к посту", URL: s.postURL(postSlug)}
	return s.send(ctx, "comment_reply", parentAuthor.TelegramID, text, button) == nil
}

// SendAuthCode доставляет код входа, запрошенный с сайта
func (s *NotifyService) SendAuthCode(ctx context.Context, telegramID int64, code string) error {
	text := fmt.Sprintf("🔐 <b>Ваш код для входа:</b>\n\n<code>%s</code>\n\n"+
		"Код действителен %d минут.\nНикому его не сообщайте!",
		html.EscapeString(code), int(s.cfg.AuthCodeExpire.Minutes()))
	return s.send(ctx, "auth_code", telegramID, text, nil)
}
