package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/models"
)

var allowedMIMETypes = map[models.MediaType][]string{
	models.MediaImage: {"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml"},
	models.MediaAudio: {"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg", "audio/aac",
		"audio/flac", "audio/x-m4a", "audio/mp4"},
	models.MediaVideo: {"video/mp4", "video/webm", "video/ogg", "video/quicktime",
		"video/x-msvideo", "video/x-matroska"},
}

var allowedExtensions = map[models.MediaType][]string{
	models.MediaImage: {".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"},
	models.MediaAudio: {".mp3", ".wav", ".ogg", ".aac", ".flac", ".m4a"},
	models.MediaVideo: {".mp4", ".webm", ".ogv", ".mov", ".avi", ".mkv"},
}

var defaultExtensions = map[models.MediaType]string{
	models.MediaImage: ".jpg",
	models.MediaAudio: ".mp3",
	models.MediaVideo: ".mp4",
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)

const maxFilenameLength = 200

// SanitizeFilename убирает из имени файла разделители путей и опасные символы
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	name = strings.TrimLeft(name, ".")
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if utf8.RuneCountInString(name) > maxFilenameLength {
		ext := filepath.Ext(name)
		base := []rune(strings.TrimSuffix(name, ext))
		keep := maxFilenameLength - utf8.RuneCountInString(ext)
		if keep < 0 {
			keep = 0
		}
		if keep < len(base) {
			base = base[:keep]
		}
		name = string(base) + ext
	}
	if name == "" {
		return "unnamed"
	}
	return name
}

// MediaTypeFromMIME определяет тип медиа по MIME
func MediaTypeFromMIME(mimeType string) (models.MediaType, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for t, list := range allowedMIMETypes {
		for _, m := range list {
			if m == mimeType {
				return t, true
			}
		}
	}
	return "", false
}

// MediaTypeFromExtension определяет тип медиа по расширению файла
func MediaTypeFromExtension(filename string) (models.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for t, list := range allowedExtensions {
		for _, e := range list {
			if e == ext {
				return t, true
			}
		}
	}
	return "", false
}

type MediaService struct {
	media  MediaStore
	cfg    *config.Config
	logger *zap.Logger
}

func NewMediaService(media MediaStore, cfg *config.Config, logger *zap.Logger) *MediaService {
	return &MediaService{media: media, cfg: cfg, logger: logger}
}

func (s *MediaService) maxSize(t models.MediaType) int64 {
	switch t {
	case models.MediaAudio:
		return s.cfg.MaxAudioSize
	case models.MediaVideo:
		return s.cfg.MaxVideoSize
	default:
		return s.cfg.MaxImageSize
	}
}

// UploadRequest: файл, присланный через веб-форму
type UploadRequest struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	UploaderID  uuid.UUID
	PostID      uuid.NullUUID
}

// Upload проверяет тип и размер файла, сохраняет его на диск и создаёт запись
func (s *MediaService) Upload(ctx context.Context, req UploadRequest) (*models.Media, error) {
	original := SanitizeFilename(req.Filename)

	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(original))); guessed != "" {
			contentType = guessed
		}
	}

	mediaType, ok := MediaTypeFromMIME(contentType)
	if !ok {
		mediaType, ok = MediaTypeFromExtension(original)
	}
	if !ok {
		what := contentType
		if what == "" {
			what = original
		}
		return nil, invalidf("Неподдерживаемый тип файла: %s", what)
	}
	if extType, ok := MediaTypeFromExtension(original); ok && extType != mediaType {
		return nil, invalidf("Расширение файла не соответствует типу содержимого")
	}

	limit := s.maxSize(mediaType)
	content, err := io.ReadAll(io.LimitReader(req.Reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, invalidf("Файл слишком большой. Макс. размер для %s: %dМБ", mediaType, limit/(1024*1024))
	}

	return s.store(ctx, content, original, contentType, mediaType, uuid.NullUUID{UUID: req.UploaderID, Valid: true}, req.PostID, "")
}

// SaveBytes сохраняет файл, скачанный ботом из Telegram
func (s *MediaService) SaveBytes(ctx context.Context, content []byte, filename, mimeType string, uploaderID uuid.NullUUID, telegramFileID string) (*models.Media, error) {
	original := SanitizeFilename(filename)
	mediaType, ok := MediaTypeFromMIME(mimeType)
	if !ok {
		mediaType, ok = MediaTypeFromExtension(original)
	}
	if !ok {
		return nil, invalidf("Неподдерживаемый тип файла: %s", mimeType)
	}
	if int64(len(content)) > s.maxSize(mediaType) {
		return nil, invalidf("Файл слишком большой для %s", mediaType)
	}
	return s.store(ctx, content, original, mimeType, mediaType, uploaderID, uuid.NullUUID{}, telegramFileID)
}

func (s *MediaService) store(ctx context.Context, content []byte, original, mimeType string, mediaType models.MediaType,
	uploaderID, postID uuid.NullUUID, telegramFileID string) (*models.Media, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = defaultExtensions[mediaType]
	}
	id := uuid.New()
	filename := id.String() + ext
	relative := mediaType.Dir() + "/" + filename

	dir := filepath.Join(s.cfg.UploadDir, mediaType.Dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, filename), bytes.NewReader(content)); err != nil {
		return nil, err
	}

	m := &models.Media{
		ID:             id,
		PostID:         postID,
		UploaderID:     uploaderID,
		MediaType:      mediaType,
		Filename:       filename,
		OriginalName:   original,
		FilePath:       relative,
		FileSize:       int64(len(content)),
		MimeType:       mimeType,
		TelegramFileID: telegramFileID,
	}
	if err := s.media.CreateMedia(ctx, m); err != nil {
		os.Remove(filepath.Join(dir, filename))
		return nil, err
	}

	s.logger.Info("media stored",
		zap.String("media_id", m.ID.String()),
		zap.String("type", string(mediaType)),
		zap.Int64("size", m.FileSize))
	return m, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}

func (s *MediaService) Get(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	return s.media.GetMediaByID(ctx, id)
}

func canManage(m *models.Media, requester *models.User) bool {
	if requester == nil {
		return false
	}
	if requester.IsAdmin {
		return true
	}
	return m.UploaderID.Valid && m.UploaderID.UUID == requester.ID
}

// Attach привязывает файл к посту. Чужие файлы может привязать только администратор.
func (s *MediaService) Attach(ctx context.Context, mediaID, postID uuid.UUID, requester *models.User) (*models.Media, error) {
	m, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !canManage(m, requester) {
		return nil, ErrForbidden
	}
	m.PostID = uuid.NullUUID{UUID: postID, Valid: true}
	if err := s.media.UpdateMedia(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AttachWithOrder привязывает файл к посту на позицию order
func (s *MediaService) AttachWithOrder(ctx context.Context, mediaID, postID uuid.UUID, order int, requester *models.User) (*models.Media, error) {
	m, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !canManage(m, requester) {
		return nil, ErrForbidden
	}
	m.PostID = uuid.NullUUID{UUID: postID, Valid: true}
	m.SortOrder = order
	if err := s.media.UpdateMedia(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Detach отвязывает файл от поста, сам файл остаётся
func (s *MediaService) Detach(ctx context.Context, mediaID uuid.UUID) (*models.Media, error) {
	m, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	m.PostID = uuid.NullUUID{}
	if err := s.media.UpdateMedia(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// resolve возвращает абсолютный путь файла, если он не выходит за UPLOAD_DIR
func (s *MediaService) resolve(relative string) (string, error) {
	base, err := filepath.Abs(s.cfg.UploadDir)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(filepath.Join(base, relative))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrForbidden
	}
	return target, nil
}

// Delete удаляет запись и файл с диска
func (s *MediaService) Delete(ctx context.Context, mediaID uuid.UUID, requester *models.User) error {
	m, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return err
	}
	if !canManage(m, requester) {
		return ErrForbidden
	}

	path, err := s.resolve(m.FilePath)
	if err != nil {
		s.logger.Warn("media path escapes upload dir", zap.String("media_id", mediaID.String()), zap.String("path", m.FilePath))
		return ErrForbidden
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}

	if err := s.media.DeleteMedia(ctx, mediaID); err != nil {
		return err
	}
	s.logger.Info("media deleted", zap.String("media_id", mediaID.String()))
	return nil
}

func (s *MediaService) ListForPost(ctx context.Context, postID uuid.UUID) ([]models.Media, error) {
	return s.media.ListMediaByPost(ctx, postID)
}

func (s *MediaService) ListUnattached(ctx context.Context, uploaderID uuid.UUID) ([]models.Media, error) {
	return s.media.ListUnattachedMedia(ctx, uploaderID)
}

func (s *MediaService) SetSortOrder(ctx context.Context, mediaID uuid.UUID, order int) (*models.Media, error) {
	m, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	m.SortOrder = order
	if err := s.media.UpdateMedia(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Reorder выставляет порядок файлов поста по списку ids. Чужие id пропускаются.
func (s *MediaService) Reorder(ctx context.Context, postID uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		m, err := s.media.GetMediaByID(ctx, id)
		if err != nil {
			return err
		}
		if !m.PostID.Valid || m.PostID.UUID != postID {
			continue
		}
		m.SortOrder = i
		if err := s.media.UpdateMedia(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// SyncPostMedia приводит набор файлов поста к ids: новые привязывает, отсутствующие отвязывает.
// Пустой список при существующих файлах ничего не меняет.
func (s *MediaService) SyncPostMedia(ctx context.Context, postID uuid.UUID, ids []uuid.UUID, requester *models.User) error {
	current, err := s.media.ListMediaByPost(ctx, postID)
	if err != nil {
		return err
	}
	if len(ids) == 0 && len(current) > 0 {
		s.logger.Warn("empty media list submitted, keeping existing media", zap.String("post_id", postID.String()))
		return nil
	}

	wanted := make(map[uuid.UUID]bool, len(ids))
	for i, id := range ids {
		wanted[id] = true
		if _, err := s.AttachWithOrder(ctx, id, postID, i, requester); err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
				s.logger.Warn("skip media on sync", zap.String("media_id", id.String()), zap.Error(err))
				continue
			}
			return err
		}
	}
	for _, m := range current {
		if !wanted[m.ID] {
			if _, err := s.Detach(ctx, m.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// URL: публичный адрес файла
func (s *MediaService) URL(m *models.Media) string {
	return m.URL()
}
