package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/models"
)

const (
	SettingHeroTitle    = "hero_title"
	SettingHeroSubtitle = "hero_subtitle"
	SettingAvatarPath   = "avatar_path"

	avatarFilename = "avatar.jpg"
)

var settingDefaults = map[string]string{
	SettingHeroTitle:    "Добро пожаловать в Мир Якоба",
	SettingHeroSubtitle: "Одно место для всех моих фото, видео, мыслей и историй — без алгоритмов и цензуры.",
	SettingAvatarPath:   avatarFilename,
}

// Hero: блок приветствия на главной
type Hero struct {
	Title    string
	Subtitle string
	Avatar   string
}

type SettingsService struct {
	settings SettingsStore
	cfg      *config.Config
	logger   *zap.Logger
}

func NewSettingsService(settings SettingsStore, cfg *config.Config, logger *zap.Logger) *SettingsService {
	return &SettingsService{settings: settings, cfg: cfg, logger: logger}
}

// Get возвращает значение настройки или значение по умолчанию
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	v, err := s.settings.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return settingDefaults[key], nil
	}
	return v, err
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	return s.settings.SetSetting(ctx, key, value)
}

// All возвращает все настройки с подставленными значениями по умолчанию
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	all, err := s.settings.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range settingDefaults {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return all, nil
}

func (s *SettingsService) Hero(ctx context.Context) (*Hero, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return &Hero{
		Title:    all[SettingHeroTitle],
		Subtitle: all[SettingHeroSubtitle],
		Avatar:   all[SettingAvatarPath],
	}, nil
}

// SaveAvatar сохраняет аватар в STATIC_DIR/avatar.jpg
func (s *SettingsService) SaveAvatar(ctx context.Context, r io.Reader, contentType string) error {
	if t, ok := MediaTypeFromMIME(contentType); !ok || t != models.MediaImage {
		return invalidf("Аватар должен быть изображением")
	}
	content, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxImageSize+1))
	if err != nil {
		return fmt.Errorf("failed to read avatar: %w", err)
	}
	if int64(len(content)) > s.cfg.MaxImageSize {
		return invalidf("Файл слишком большой. Макс. размер: %dМБ", s.cfg.MaxImageSize/(1024*1024))
	}

	if err := os.MkdirAll(s.cfg.StaticDir, 0o755); err != nil {
		return fmt.Errorf("failed to create static dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cfg.StaticDir, avatarFilename), content, 0o644); err != nil {
		return fmt.Errorf("failed to save avatar: %w", err)
	}
	s.logger.Info("avatar updated", zap.Int("size", len(content)))
	return s.settings.SetSetting(ctx, SettingAvatarPath, avatarFilename)
}
