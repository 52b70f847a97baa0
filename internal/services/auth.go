package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/models"
	"jakob-blog/pkg/utilities"
)

// Без похожих символов: 0/O, 1/I/L
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

// GenerateAuthCode возвращает случайный код входа из 8 символов
func GenerateAuthCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate auth code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateSessionToken возвращает 32 случайных байта в URL-safe base64
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken возвращает SHA-256 токена в hex. В базе хранится только он.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type AuthService struct {
	users  UserStore
	auth   AuthStore
	cfg    *config.Config
	logger *zap.Logger

	now func() time.Time
}

func NewAuthService(users UserStore, auth AuthStore, cfg *config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateAuthCode выпускает новый код, гася все предыдущие неиспользованные
func (s *AuthService) CreateAuthCode(ctx context.Context, telegramID int64) (*models.AuthCode, error) {
	if err := s.auth.InvalidateAuthCodes(ctx, telegramID); err != nil {
		return nil, err
	}

	code, err := GenerateAuthCode()
	if err != nil {
		return nil, err
	}

	c := &models.AuthCode{
		Code:       code,
		TelegramID: telegramID,
		ExpiresAt:  s.now().Add(s.cfg.AuthCodeExpire),
	}
	if err := s.auth.CreateAuthCode(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("auth code issued", zap.Int64("telegram_id", telegramID))
	return c, nil
}

// VerifyAuthCode проверяет код конкретного пользователя Telegram
func (s *AuthService) VerifyAuthCode(ctx context.Context, telegramID int64, code string) (*models.User, error) {
	if telegramID == 0 {
		return nil, ErrInvalidCode
	}
	return s.redeem(ctx, telegramID, code)
}

// VerifyCodeOnly проверяет код без Telegram ID, пользователь определяется по самому коду
func (s *AuthService) VerifyCodeOnly(ctx context.Context, code string) (*models.User, error) {
	return s.redeem(ctx, 0, code)
}

func (s *AuthService) redeem(ctx context.Context, telegramID int64, code string) (*models.User, error) {
	code = utilities.NormalizeCode(code)
	if len([]rune(code)) != codeLength {
		return nil, ErrInvalidCode
	}

	c, err := s.auth.FindAuthCode(ctx, code, telegramID, s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	// Параллельная попытка с тем же кодом проиграет здесь
	if err := s.auth.MarkAuthCodeUsed(ctx, c.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	user, _, err := s.EnsureUser(ctx, c.TelegramID, "", "")
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactive
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.Int64("telegram_id", user.TelegramID), zap.String("user_id", user.ID.String()))
	return user, nil
}

// EnsureUser создаёт пользователя или обновляет его данные из Telegram.
// Второе значение true, если пользователь создан.
func (s *AuthService) EnsureUser(ctx context.Context, telegramID int64, username, displayName string) (*models.User, bool, error) {
	user, err := s.users.GetUserByTelegramID(ctx, telegramID)
	if errors.Is(err, ErrNotFound) {
		if displayName == "" {
			displayName = fmt.Sprintf("User_%d", telegramID)
		}
		user = &models.User{
			TelegramID:  telegramID,
			Username:    username,
			DisplayName: utilities.Truncate(displayName, 125),
			AccessLevel: models.AccessRegistered,
			IsAdmin:     s.cfg.IsAdminID(telegramID),
			IsActive:    true,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, false, err
		}
		s.logger.Info("user created", zap.Int64("telegram_id", telegramID), zap.Bool("admin", user.IsAdmin))
		return user, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	changed := false
	if username != "" && username != user.Username {
		user.Username = username
		changed = true
	}
	if !user.IsAdmin && s.cfg.IsAdminID(telegramID) {
		user.IsAdmin = true
		changed = true
	}
	if changed {
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, false, err
		}
	}
	return user, false, nil
}

// CreateSession открывает сессию и возвращает сырой токен для cookie
func (s *AuthService) CreateSession(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}
	sess := &models.Session{
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: s.now().Add(s.cfg.SessionExpire),
	}
	if err := s.auth.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	return token, nil
}

// UserBySessionToken возвращает владельца действующей сессии
func (s *AuthService) UserBySessionToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	sess, err := s.auth.GetSessionByHash(ctx, HashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactive
	}
	return user, nil
}

func (s *AuthService) InvalidateSession(ctx context.Context, token string) error {
	err := s.auth.DeleteSessionByHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// PurgeExpired удаляет просроченные коды и сессии
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.auth.PurgeExpired(ctx, s.now())
}

// IsAdmin проверяет флаг в базе и список ADMIN_IDS
func (s *AuthService) IsAdmin(ctx context.Context, telegramID int64) bool {
	if s.cfg.IsAdminID(telegramID) {
		return true
	}
	user, err := s.users.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return false
	}
	return user.IsAdmin && user.IsActive
}
