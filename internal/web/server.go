package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"jakob-blog/internal/config"
	"jakob-blog/internal/metrics"
	"jakob-blog/internal/services"
)

// Dispatcher принимает апдейты, пришедшие на вебхук
type Dispatcher interface {
	Dispatch(update tgbotapi.Update)
}

// Pinger проверяет доступность базы для /health
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth     *services.AuthService
	Users    *services.UserService
	Posts    *services.PostService
	Media    *services.MediaService
	Comments *services.CommentService
	Settings *services.SettingsService
	Notify   *services.NotifyService
	Bot      Dispatcher
	DB       Pinger
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type Server struct {
	Deps

	engine *gin.Engine
	limits map[string]*ipLimiter
}

func New(deps Deps) (*Server, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		Deps: deps,
		limits: map[string]*ipLimiter{
			"request-code":   newIPLimiter(3, time.Minute),
			"verify":         newIPLimiter(5, time.Minute),
			"verify-by-code": newIPLimiter(5, time.Minute),
		},
	}

	engine := gin.New()
	// без доверенных прокси ClientIP берётся из адреса соединения
	if err := engine.SetTrustedProxies(deps.Config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.HTMLRender = tmpl
	engine.Use(
		gin.CustomRecovery(s.recovered),
		s.requestLogger(),
		s.securityHeaders(),
		s.loadUser(),
	)
	engine.NoRoute(func(c *gin.Context) {
		s.notFound(c, "Страница не найдена")
	})
	s.engine = engine
	s.routes()
	return s, nil
}

// Handler возвращает http.Handler со всеми маршрутами
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	r.Static("/static", s.Config.StaticDir)
	r.Static("/uploads", s.Config.UploadDir)

	r.POST("/webhook/telegram/:secret", s.webhook)

	api := r.Group("/api/v1")
	api.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API v1", "version": "0.1.0"})
	})

	auth := api.Group("/auth")
	auth.POST("/request-code", s.rateLimit("request-code"), s.requestCode)
	auth.POST("/verify", s.rateLimit("verify"), s.verifyCode)
	auth.GET("/me", s.me)
	auth.POST("/logout", s.logout)
	auth.POST("/verify-by-code", s.rateLimit("verify-by-code"), s.verifyByCode)

	media := api.Group("/media", s.requireAPIUser)
	media.POST("/upload", s.uploadMedia)
	media.POST("/upload-editorjs", s.uploadEditorJS)
	media.GET("/:id", s.getMedia)
	media.POST("/:id/attach/:post_id", s.attachMedia)
	media.DELETE("/:id", s.deleteMedia)
	media.GET("/post/:post_id", s.listPostMedia)
	media.POST("/post/:post_id/reorder", s.requireAPIAdmin, s.reorderMedia)

	comments := api.Group("/comments")
	comments.GET("/:id", s.listComments)
	comments.POST("/:id", s.requireAPIUser, s.createComment)
	comments.DELETE("/:id", s.requireAPIUser, s.deleteComment)
	comments.POST("/:id/approve", s.requireAPIUser, s.requireAPIAdmin, s.moderateComment(true))
	comments.POST("/:id/reject", s.requireAPIUser, s.requireAPIAdmin, s.moderateComment(false))

	r.GET("/", s.home)
	r.GET("/login", s.loginPage)
	r.GET("/profile", s.requirePageUser, s.profile)
	r.POST("/profile/update-nickname", s.requirePageUser, s.updateNickname)
	r.GET("/partials/posts", s.postsPartial)
	r.GET("/posts/:slug", s.postDetail)
	r.GET("/search", s.search)
	r.GET("/partials/search-results", s.searchPartial)

	admin := r.Group("/admin", s.requirePageUser, s.requirePageAdmin)
	admin.GET("", s.adminDashboard)
	admin.GET("/posts/new", s.adminNewPost)
	admin.POST("/posts/new", s.adminCreatePost)
	admin.GET("/posts/:id/edit", s.adminEditPost)
	admin.POST("/posts/:id/edit", s.adminUpdatePost)
	admin.DELETE("/posts/:id", s.adminDeletePost)
	admin.POST("/posts/:id/toggle-pin", s.adminTogglePin)
	admin.GET("/settings", s.adminSettings)
	admin.POST("/settings", s.adminSaveSettings)
	admin.GET("/users", s.adminUsers)
	admin.GET("/users/:id", s.adminUser)
	admin.POST("/users/:id/access-level", s.adminSetAccessLevel)
	admin.POST("/users/:id/toggle-admin", s.adminToggleAdmin)
	admin.POST("/users/:id/toggle-active", s.adminToggleActive)
	admin.GET("/comments", s.adminComments)
}

func (s *Server) health(c *gin.Context) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run слушает ListenAddr до отмены ctx, затем корректно останавливается
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("web server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	s.Logger.Info("web server stopped")
	return nil
}
