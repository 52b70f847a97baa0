package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jakob-blog/internal/models"
	"jakob-blog/internal/services"
)

const (
	dashboardPosts = 20
	userNotFound   = "Пользователь не найден"
)

// postForm: поля формы редактора постов
type postForm struct {
	Title         string `form:"title"`
	ContentMD     string `form:"content_md"`
	Excerpt       string `form:"excerpt"`
	Visibility    string `form:"visibility"`
	Status        string `form:"status"`
	MediaIDs      string `form:"media_ids"`
	ContentBlocks string `form:"content_blocks"`
	CoverImageID  string `form:"cover_image_id"`
}

// blocks возвращает JSON блоков редактора. Битый JSON игнорируется.
func (f postForm) blocks() json.RawMessage {
	raw := strings.TrimSpace(f.ContentBlocks)
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}

func (f postForm) mediaIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, part := range strings.Split(f.MediaIDs, ",") {
		if id, err := uuid.Parse(strings.TrimSpace(part)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f postForm) coverID() uuid.NullUUID {
	id, err := uuid.Parse(strings.TrimSpace(f.CoverImageID))
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

func (f postForm) visibility() models.PostVisibility {
	if f.Visibility == "" {
		return models.VisibilityPublic
	}
	return models.PostVisibility(f.Visibility)
}

func (f postForm) status() models.PostStatus {
	if f.Status == "" {
		return models.StatusDraft
	}
	return models.PostStatus(f.Status)
}

func joinIDs(media []models.Media) string {
	ids := make([]string, len(media))
	for i, m := range media {
		ids[i] = m.ID.String()
	}
	return strings.Join(ids, ",")
}

func (s *Server) adminDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	posts, _, err := s.Posts.List(ctx, models.AccessPremium2, 1, dashboardPosts, true)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	stats, err := s.Posts.Stats(ctx)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	userStats, err := s.Users.Stats(ctx)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	s.page(c, http.StatusOK, "admin/dashboard", gin.H{
		"Title":     "Админка",
		"Posts":     postRefs(posts),
		"Stats":     stats,
		"UserStats": userStats,
	})
}

func (s *Server) adminNewPost(c *gin.Context) {
	s.page(c, http.StatusOK, "admin/post_edit", gin.H{"Title": "Новый пост", "Post": nil, "MediaIDs": ""})
}

func (s *Server) adminCreatePost(c *gin.Context) {
	var form postForm
	if err := c.ShouldBind(&form); err != nil {
		s.errorPage(c, http.StatusBadRequest, "Некорректная форма")
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()

	post, err := s.Posts.Create(ctx, services.PostInput{
		AuthorID:      uuid.NullUUID{UUID: user.ID, Valid: true},
		Title:         form.Title,
		ContentMD:     form.ContentMD,
		ContentBlocks: form.blocks(),
		Excerpt:       form.Excerpt,
		Visibility:    form.visibility(),
		Status:        form.status(),
		CoverImageID:  form.coverID(),
	})
	if err != nil {
		if msg, ok := services.IsValidation(err); ok {
			s.page(c, http.StatusBadRequest, "admin/post_edit", gin.H{
				"Title": "Новый пост", "Post": nil, "MediaIDs": form.MediaIDs, "Error": msg,
			})
			return
		}
		s.pageError(c, err, postNotFound)
		return
	}

	if ids := form.mediaIDs(); len(ids) > 0 {
		if err := s.Media.SyncPostMedia(ctx, post.ID, ids, user); err != nil {
			s.Logger.Error("failed to attach media", zap.String("post_id", post.ID.String()), zap.Error(err))
		}
	}
	if post.IsPublished() {
		s.Notify.NotifyNewPostAsync(post)
	}

	c.Redirect(http.StatusFound, "/admin/posts/"+post.ID.String()+"/edit")
}

func (s *Server) adminEditPost(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		s.notFound(c, postNotFound)
		return
	}
	post, err := s.Posts.GetByID(c.Request.Context(), id)
	if err != nil {
		s.pageError(c, err, postNotFound)
		return
	}
	s.page(c, http.StatusOK, "admin/post_edit", gin.H{"Title": post.Title, "Post": post, "MediaIDs": joinIDs(post.Media)})
}

func (s *Server) adminUpdatePost(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		s.notFound(c, postNotFound)
		return
	}
	var form postForm
	if err := c.ShouldBind(&form); err != nil {
		s.errorPage(c, http.StatusBadRequest, "Некорректная форма")
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()

	visibility := form.visibility()
	status := form.status()
	cover := form.coverID()
	post, firstPublish, err := s.Posts.Update(ctx, id, services.PostUpdate{
		Title:         &form.Title,
		ContentMD:     &form.ContentMD,
		ContentBlocks: form.blocks(),
		Excerpt:       &form.Excerpt,
		Visibility:    &visibility,
		Status:        &status,
		CoverImageID:  &cover,
	})
	if err != nil {
		if msg, ok := services.IsValidation(err); ok {
			current, getErr := s.Posts.GetByID(ctx, id)
			if getErr != nil {
				s.pageError(c, getErr, postNotFound)
				return
			}
			s.page(c, http.StatusBadRequest, "admin/post_edit", gin.H{
				"Title": current.Title, "Post": current, "MediaIDs": form.MediaIDs, "Error": msg,
			})
			return
		}
		s.pageError(c, err, postNotFound)
		return
	}

	if firstPublish {
		s.Notify.NotifyNewPostAsync(post)
	}
	if err := s.Media.SyncPostMedia(ctx, post.ID, form.mediaIDs(), user); err != nil {
		s.Logger.Error("failed to sync media", zap.String("post_id", post.ID.String()), zap.Error(err))
	}

	c.Redirect(http.StatusFound, "/admin/posts/"+post.ID.String()+"/edit")
}

func (s *Server) adminDeletePost(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": postNotFound})
		return
	}
	if err := s.Posts.Delete(c.Request.Context(), id); err != nil {
		s.apiError(c, err, postNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) adminTogglePin(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		s.errorPage(c, http.StatusBadRequest, "Неверный ID поста")
		return
	}
	if _, err := s.Posts.TogglePin(c.Request.Context(), id); err != nil {
		s.pageError(c, err, postNotFound)
		return
	}
	c.Redirect(http.StatusFound, "/admin")
}

func (s *Server) adminSettings(c *gin.Context) {
	hero, err := s.Settings.Hero(c.Request.Context())
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	s.page(c, http.StatusOK, "admin/settings", gin.H{"Title": "Настройки", "Settings": hero})
}

func (s *Server) adminSaveSettings(c *gin.Context) {
	ctx := c.Request.Context()
	title := strings.TrimSpace(c.PostForm("hero_title"))
	subtitle := strings.TrimSpace(c.PostForm("hero_subtitle"))

	fail := func(status int, msg string) {
		hero, err := s.Settings.Hero(ctx)
		if err != nil {
			s.pageError(c, err, "")
			return
		}
		s.page(c, status, "admin/settings", gin.H{"Title": "Настройки", "Settings": hero, "Error": msg})
	}

	if title == "" || subtitle == "" {
		fail(http.StatusBadRequest, "Заголовок и подзаголовок обязательны")
		return
	}
	if err := s.Settings.Set(ctx, services.SettingHeroTitle, title); err != nil {
		s.pageError(c, err, "")
		return
	}
	if err := s.Settings.Set(ctx, services.SettingHeroSubtitle, subtitle); err != nil {
		s.pageError(c, err, "")
		return
	}

	if header, err := c.FormFile("avatar"); err == nil && header.Filename != "" {
		f, err := header.Open()
		if err != nil {
			s.pageError(c, err, "")
			return
		}
		defer f.Close()
		if err := s.Settings.SaveAvatar(ctx, f, header.Header.Get("Content-Type")); err != nil {
			if msg, ok := services.IsValidation(err); ok {
				fail(http.StatusBadRequest, msg)
				return
			}
			s.pageError(c, err, "")
			return
		}
	}

	c.Redirect(http.StatusFound, "/admin/settings")
}

type usersQuery struct {
	Page   int    `form:"page"`
	Search string `form:"search"`
}

func (s *Server) adminUsers(c *gin.Context) {
	var q usersQuery
	_ = c.ShouldBindQuery(&q)
	if q.Page < 1 {
		q.Page = 1
	}
	users, total, err := s.Users.List(c.Request.Context(), q.Search, q.Page)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	s.page(c, http.StatusOK, "admin/users", gin.H{
		"Title":   "Пользователи",
		"Users":   users,
		"Total":   total,
		"Page":    q.Page,
		"Search":  q.Search,
		"HasMore": q.Page*services.UsersPerPage < total,
	})
}

func (s *Server) adminUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		s.notFound(c, userNotFound)
		return
	}
	target, err := s.Users.Get(c.Request.Context(), id)
	if err != nil {
		s.pageError(c, err, userNotFound)
		return
	}
	s.page(c, http.StatusOK, "admin/user_edit", gin.H{"Title": target.DisplayName, "TargetUser": target})
}

func (s *Server) adminSetAccessLevel(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		s.errorPage(c, http.StatusBadRequest, "Неверный ID пользователя")
		return
	}
	n, err := strconv.Atoi(c.PostForm("access_level"))
	level := models.AccessLevel(n)
	if err != nil || !level.Valid() {
		s.errorPage(c, http.StatusBadRequest, "Неверный уровень доступа")
		return
	}
	if _, err := s.Users.SetAccessLevel(c.Request.Context(), id, level); err != nil {
		s.pageError(c, err, userNotFound)
		return
	}
	c.Redirect(http.StatusFound, "/admin/users/"+id.String())
}

// userToggle общий обработчик переключателей: себя менять нельзя
func (s *Server) userToggle(selfMessage string, toggle func(*gin.Context, *models.User, uuid.UUID) (*models.User, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramUUID(c, "id")
		if !ok {
			s.errorPage(c, http.StatusBadRequest, "Неверный ID пользователя")
			return
		}
		_, err := toggle(c, currentUser(c), id)
		switch {
		case errors.Is(err, services.ErrForbidden):
			s.errorPage(c, http.StatusBadRequest, selfMessage)
			return
		case errors.Is(err, services.ErrLastAdmin):
			s.errorPage(c, http.StatusBadRequest, "Нельзя оставить сайт без администратора")
			return
		case err != nil:
			s.pageError(c, err, userNotFound)
			return
		}
		c.Redirect(http.StatusFound, "/admin/users/"+id.String())
	}
}

func (s *Server) adminToggleAdmin(c *gin.Context) {
	s.userToggle("Нельзя изменить собственный статус админа",
		func(c *gin.Context, actor *models.User, id uuid.UUID) (*models.User, error) {
			return s.Users.ToggleAdmin(c.Request.Context(), actor, id)
		})(c)
}

func (s *Server) adminToggleActive(c *gin.Context) {
	s.userToggle("Нельзя деактивировать себя",
		func(c *gin.Context, actor *models.User, id uuid.UUID) (*models.User, error) {
			return s.Users.ToggleActive(c.Request.Context(), actor, id)
		})(c)
}

func (s *Server) adminComments(c *gin.Context) {
	page := queryPage(c)
	comments, total, err := s.Comments.Pending(c.Request.Context(), page)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	s.page(c, http.StatusOK, "admin/comments", gin.H{
		"Title":    "Модерация",
		"Comments": comments,
		"Total":    total,
		"Page":     page,
		"HasMore":  page*services.PendingPerPage < total,
	})
}
