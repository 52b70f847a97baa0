package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"

	"jakob-blog/internal/models"
)

//go:embed templates
var templateFS embed.FS

var visibilityNames = map[models.PostVisibility]string{
	models.VisibilityPublic:     "Публичный",
	models.VisibilityRegistered: "Для зарегистрированных",
	models.VisibilityPremium1:   "Премиум 1",
	models.VisibilityPremium2:   "Премиум 2",
}

var levelNames = map[models.AccessLevel]string{
	models.AccessPublic:     "Публичный",
	models.AccessRegistered: "Зарегистрированный",
	models.AccessPremium1:   "Премиум 1",
	models.AccessPremium2:   "Премиум 2",
}

// commentView: комментарий вместе с тем, кто его смотрит
type commentView struct {
	Comment models.Comment
	Viewer  *models.User
}

func (v commentView) CanDelete() bool {
	return v.Viewer != nil && (v.Viewer.IsAdmin || v.Viewer.ID == v.Comment.AuthorID)
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format("02.01.2006")
	},
	"dateptr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("02.01.2006")
	},
	// HTML поста уже прошёл через bluemonday
	"trusted": func(s string) template.HTML {
		return template.HTML(s)
	},
	"visibility": func(v models.PostVisibility) string {
		return visibilityNames[v]
	},
	"level": func(l models.AccessLevel) string {
		return levelNames[l]
	},
	"levels":       models.AccessLevels,
	"visibilities": func() []models.PostVisibility { return models.AllowedVisibilities(models.AccessPremium2) },
	"comment": func(c models.Comment, viewer *models.User) commentView {
		return commentView{Comment: c, Viewer: viewer}
	},
	"add": func(a, b int) int { return a + b },
}

// htmlRender собирает для каждой страницы свой набор: layout, partials и сама страница.
// Реализует render.HTMLRender.
type htmlRender struct {
	partials *template.Template
	pages    map[string]*template.Template
}

func loadTemplates() (*htmlRender, error) {
	base, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}

	r := &htmlRender{partials: base, pages: make(map[string]*template.Template)}
	for _, pattern := range []string{"templates/pages/*.html", "templates/admin/*.html"} {
		files, err := fs.Glob(templateFS, pattern)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			t, err := base.Clone()
			if err != nil {
				return nil, err
			}
			if _, err := t.ParseFS(templateFS, file); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", file, err)
			}
			name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/"), ".html")
			r.pages[name] = t
		}
	}
	return r, nil
}

// Instance: страницы рендерятся через layout, partials по своему имени
func (r *htmlRender) Instance(name string, data any) render.Render {
	if t, ok := r.pages[name]; ok {
		return render.HTML{Template: t, Name: "layout", Data: data}
	}
	return render.HTML{Template: r.partials, Name: name, Data: data}
}
