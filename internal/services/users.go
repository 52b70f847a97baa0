package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
)

const (
	UsersPerPage         = 20
	maxDisplayNameLength = 128
)

type UserService struct {
	users  UserStore
	logger *zap.Logger
}

func NewUserService(users UserStore, logger *zap.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// UserStats: сводка для админки
type UserStats struct {
	Total   int
	ByLevel map[models.AccessLevel]int
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.users.GetUserByTelegramID(ctx, telegramID)
}

// List возвращает страницу пользователей (с 1) и общее количество
func (s *UserService) List(ctx context.Context, search string, page int) ([]models.User, int, error) {
	if page < 1 {
		page = 1
	}
	return s.users.ListUsers(ctx, strings.TrimSpace(search), UsersPerPage, (page-1)*UsersPerPage)
}

func (s *UserService) SetAccessLevel(ctx context.Context, id uuid.UUID, level models.AccessLevel) (*models.User, error) {
	if !level.Valid() {
		return nil, invalidf("Неизвестный уровень доступа")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.AccessLevel = level
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("access level changed", zap.String("user_id", id.String()), zap.Stringer("level", level))
	return user, nil
}

// guardLastAdmin не даёт лишить прав последнего активного администратора
func (s *UserService) guardLastAdmin(ctx context.Context, user *models.User) error {
	if !user.IsAdmin || !user.IsActive {
		return nil
	}
	n, err := s.users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// SetAdmin выдаёт или снимает права администратора
func (s *UserService) SetAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin == isAdmin {
		return user, nil
	}
	if !isAdmin {
		if err := s.guardLastAdmin(ctx, user); err != nil {
			return nil, err
		}
	}
	user.IsAdmin = isAdmin
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("admin flag changed", zap.String("user_id", id.String()), zap.Bool("admin", isAdmin))
	return user, nil
}

// ToggleAdmin переключает права администратора. Себя менять нельзя.
func (s *UserService) ToggleAdmin(ctx context.Context, actor *models.User, id uuid.UUID) (*models.User, error) {
	if actor != nil && actor.ID == id {
		return nil, ErrForbidden
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetAdmin(ctx, id, !user.IsAdmin)
}

// SetActive включает или блокирует пользователя
func (s *UserService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive == active {
		return user, nil
	}
	if !active {
		if err := s.guardLastAdmin(ctx, user); err != nil {
			return nil, err
		}
	}
	user.IsActive = active
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user active flag changed", zap.String("user_id", id.String()), zap.Bool("active", active))
	return user, nil
}

func (s *UserService) ToggleActive(ctx context.Context, actor *models.User, id uuid.UUID) (*models.User, error) {
	if actor != nil && actor.ID == id {
		return nil, ErrForbidden
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetActive(ctx, id, !user.IsActive)
}

func (s *UserService) UpdateDisplayName(ctx context.Context, id uuid.UUID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("Ник не может быть пустым")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return nil, invalidf("Ник слишком длинный (макс. %d символов)", maxDisplayNameLength)
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.DisplayName = name
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Stats(ctx context.Context) (*UserStats, error) {
	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	byLevel, err := s.users.CountByAccessLevel(ctx)
	if err != nil {
		return nil, err
	}
	for _, level := range models.AccessLevels() {
		if _, ok := byLevel[level]; !ok {
			byLevel[level] = 0
		}
	}
	return &UserStats{Total: total, ByLevel: byLevel}, nil
}

// MakeAdmin назначает администратором существующего пользователя по Telegram ID
func (s *UserService) MakeAdmin(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.users.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.SetAdmin(ctx, user.ID, true)
}
