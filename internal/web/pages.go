package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jakob-blog/internal/services"
)

func (s *Server) home(c *gin.Context) {
	hero, err := s.Settings.Hero(c.Request.Context())
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	s.page(c, http.StatusOK, "pages/home", gin.H{"Title": "Главная", "Hero": hero})
}

func (s *Server) loginPage(c *gin.Context) {
	s.page(c, http.StatusOK, "pages/login", gin.H{"Title": "Вход"})
}

func (s *Server) profile(c *gin.Context) {
	s.page(c, http.StatusOK, "pages/profile", gin.H{"Title": "Профиль"})
}

func (s *Server) updateNickname(c *gin.Context) {
	user := currentUser(c)
	data := gin.H{"Title": "Профиль"}

	updated, err := s.Users.UpdateDisplayName(c.Request.Context(), user.ID, c.PostForm("display_name"))
	if err != nil {
		msg, ok := services.IsValidation(err)
		if !ok {
			s.pageError(c, err, "Пользователь не найден")
			return
		}
		data["Error"] = msg
	} else {
		*user = *updated
		data["Success"] = "Ник успешно изменён"
	}
	s.page(c, http.StatusOK, "pages/profile", data)
}

func (s *Server) postsPartial(c *gin.Context) {
	page := queryPage(c)
	level := currentUser(c).EffectiveLevel()

	posts, total, err := s.Posts.List(c.Request.Context(), level, page, services.PostsPerPage, false)
	if err != nil {
		s.apiError(c, err, "")
		return
	}
	hasMore := page*services.PostsPerPage < total
	c.HTML(http.StatusOK, "partials/posts_list", gin.H{
		"Posts":    postRefs(posts),
		"HasMore":  hasMore,
		"NextPage": page + 1,
	})
}

// postDetail показывает пост и засчитывает просмотр
func (s *Server) postDetail(c *gin.Context) {
	ctx := c.Request.Context()
	post, err := s.Posts.GetBySlug(ctx, c.Param("slug"), currentUser(c).EffectiveLevel())
	if err != nil {
		s.pageError(c, err, postNotFound)
		return
	}
	if err := s.Posts.IncrementViews(ctx, post.ID); err != nil {
		s.Logger.Warn("failed to count view", zap.String("post_id", post.ID.String()), zap.Error(err))
	} else {
		post.ViewCount++
	}
	s.page(c, http.StatusOK, "pages/post_detail", gin.H{"Title": post.Title, "Post": post})
}

type searchQuery struct {
	Q    string `form:"q"`
	Page int    `form:"page"`
}

func (s *Server) runSearch(c *gin.Context) (gin.H, error) {
	var q searchQuery
	_ = c.ShouldBindQuery(&q)
	q.Q = strings.TrimSpace(q.Q)
	if q.Page < 1 {
		q.Page = 1
	}

	data := gin.H{"Query": q.Q, "Page": q.Page, "Total": 0, "HasMore": false, "Posts": nil}
	if q.Q == "" {
		return data, nil
	}
	posts, total, err := s.Posts.Search(c.Request.Context(), q.Q, currentUser(c).EffectiveLevel(), q.Page, services.PostsPerPage)
	if err != nil {
		return nil, err
	}
	data["Posts"] = postRefs(posts)
	data["Total"] = total
	data["HasMore"] = q.Page*services.PostsPerPage < total
	return data, nil
}

func (s *Server) search(c *gin.Context) {
	data, err := s.runSearch(c)
	if err != nil {
		s.pageError(c, err, "")
		return
	}
	data["Title"] = "Поиск"
	s.page(c, http.StatusOK, "pages/search", data)
}

func (s *Server) searchPartial(c *gin.Context) {
	data, err := s.runSearch(c)
	if err != nil {
		s.apiError(c, err, "")
		return
	}
	c.HTML(http.StatusOK, "partials/search_results", data)
}
