// Package memdb хранит данные в памяти с тем же набором методов, что и MySQL-репозитории.
// Используется в тестах и для локального запуска без базы.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jakob-blog/internal/database"
	"jakob-blog/internal/models"
)

type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	codes    map[uuid.UUID]models.AuthCode
	sessions map[string]models.Session
	posts    map[uuid.UUID]models.Post
	media    map[uuid.UUID]models.Media
	comments map[uuid.UUID]models.Comment
	settings map[string]string

	// Now подменяется в тестах
	Now  func() time.Time
	last time.Time
}

// tick возвращает строго возрастающее время
func (s *Store) tick() time.Time {
	t := s.Now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]models.User),
		codes:    make(map[uuid.UUID]models.AuthCode),
		sessions: make(map[string]models.Session),
		posts:    make(map[uuid.UUID]models.Post),
		media:    make(map[uuid.UUID]models.Media),
		comments: make(map[uuid.UUID]models.Comment),
		settings: make(map[string]string),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// ---- users

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := s.tick()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return database.ErrNotFound
	}
	u.UpdatedAt = s.tick()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) sortedUsers(keep func(models.User) bool) []models.User {
	var out []models.User
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) ListUsers(_ context.Context, search string, limit, offset int) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(search)
	all := s.sortedUsers(func(u models.User) bool {
		return needle == "" ||
			strings.Contains(strings.ToLower(u.DisplayName), needle) ||
			strings.Contains(strings.ToLower(u.Username), needle)
	})
	return page(all, limit, offset), len(all), nil
}

func (s *Store) CountUsers(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) CountAdmins(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sortedUsers(func(u models.User) bool { return u.IsAdmin })), nil
}

func (s *Store) CountActiveAdmins(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sortedUsers(func(u models.User) bool { return u.IsAdmin && u.IsActive })), nil
}

func (s *Store) CountByAccessLevel(context.Context) (map[models.AccessLevel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.AccessLevel]int)
	for _, u := range s.users {
		counts[u.AccessLevel]++
	}
	return counts, nil
}

func (s *Store) ListActiveUsers(_ context.Context, minLevel models.AccessLevel) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedUsers(func(u models.User) bool {
		return u.IsActive && (u.AccessLevel >= minLevel || u.IsAdmin)
	}), nil
}

func (s *Store) ListActiveAdmins(context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedUsers(func(u models.User) bool { return u.IsActive && u.IsAdmin }), nil
}

// ---- auth codes and sessions

func (s *Store) InvalidateAuthCodes(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.codes {
		if c.TelegramID == telegramID && !c.Used {
			c.Used = true
			s.codes[id] = c
		}
	}
	return nil
}

func (s *Store) CreateAuthCode(_ context.Context, c *models.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.tick()
	s.codes[c.ID] = *c
	return nil
}

func (s *Store) FindAuthCode(_ context.Context, code string, telegramID int64, now time.Time) (*models.AuthCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.AuthCode
	for _, c := range s.codes {
		if c.Code != code || c.Used || !c.ExpiresAt.After(now) {
			continue
		}
		if telegramID != 0 && c.TelegramID != telegramID {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return nil, database.ErrNotFound
	}
	return found, nil
}

func (s *Store) MarkAuthCodeUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok || c.Used {
		return database.ErrNotFound
	}
	c.Used = true
	s.codes[id] = c
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	sess.CreatedAt = s.tick()
	s.sessions[sess.TokenHash] = *sess
	return nil
}

func (s *Store) GetSessionByHash(_ context.Context, hash string, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[hash]
	if !ok || !sess.ExpiresAt.After(now) {
		return nil, database.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSessionByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[hash]; !ok {
		return database.ErrNotFound
	}
	delete(s.sessions, hash)
	return nil
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.codes {
		if c.Used || !c.ExpiresAt.After(now) {
			delete(s.codes, id)
			n++
		}
	}
	for hash, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// ---- posts

func (s *Store) CreatePost(_ context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.posts {
		if existing.Slug == p.Slug {
			return database.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	s.posts[p.ID] = stripPost(*p)
	return nil
}

// В хранилище не держим загруженные связи
func stripPost(p models.Post) models.Post {
	p.Media = nil
	p.CoverImage = nil
	return p
}

func (s *Store) UpdatePost(_ context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; !ok {
		return database.ErrNotFound
	}
	for id, existing := range s.posts {
		if id != p.ID && existing.Slug == p.Slug {
			return database.ErrDuplicate
		}
	}
	p.UpdatedAt = s.tick()
	s.posts[p.ID] = stripPost(*p)
	return nil
}

func (s *Store) DeletePost(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.posts, id)
	for mid, m := range s.media {
		if m.PostID.Valid && m.PostID.UUID == id {
			delete(s.media, mid)
		}
	}
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (s *Store) GetPostByID(_ context.Context, id uuid.UUID) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetPostBySlug(_ context.Context, slug string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func matchesFilter(p models.Post, f models.PostFilter) bool {
	if !f.IncludeDrafts && p.Status != models.StatusPublished {
		return false
	}
	if len(f.Visibilities) == 0 {
		return true
	}
	for _, v := range f.Visibilities {
		if p.Visibility == v {
			return true
		}
	}
	return false
}

func postDate(p models.Post) time.Time {
	if p.PublishedAt != nil {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

func lessPost(a, b models.Post) bool {
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	if a.PinnedAt != nil && b.PinnedAt != nil && !a.PinnedAt.Equal(*b.PinnedAt) {
		return a.PinnedAt.After(*b.PinnedAt)
	}
	return postDate(a).After(postDate(b))
}

func (s *Store) ListPosts(_ context.Context, f models.PostFilter) ([]models.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.Post
	for _, p := range s.posts {
		if matchesFilter(p, f) {
			all = append(all, p)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return lessPost(all[i], all[j]) })
	return page(all, f.Limit, f.Offset), len(all), nil
}

// SearchPosts ищет все слова запроса без учёта регистра
func (s *Store) SearchPosts(_ context.Context, query string, f models.PostFilter) ([]models.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	words := strings.Fields(strings.ToLower(query))
	var all []models.Post
	for _, p := range s.posts {
		if !matchesFilter(p, f) {
			continue
		}
		text := strings.ToLower(p.Title + " " + p.ContentMD)
		hit := len(words) > 0
		for _, w := range words {
			if !strings.Contains(text, w) {
				hit = false
				break
			}
		}
		if hit {
			all = append(all, p)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return postDate(all[i]).After(postDate(all[j])) })
	return page(all, f.Limit, f.Offset), len(all), nil
}

func (s *Store) IncrementViewCount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil
	}
	p.ViewCount++
	s.posts[id] = p
	return nil
}

func (s *Store) CountPostsByStatus(context.Context) (map[models.PostStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.PostStatus]int)
	for _, p := range s.posts {
		counts[p.Status]++
	}
	return counts, nil
}

func (s *Store) TotalViews(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, p := range s.posts {
		n += p.ViewCount
	}
	return n, nil
}

// ---- media

func (s *Store) CreateMedia(_ context.Context, m *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = s.tick()
	s.media[m.ID] = *m
	return nil
}

func (s *Store) GetMediaByID(_ context.Context, id uuid.UUID) (*models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpdateMedia(_ context.Context, m *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.media[m.ID]
	if !ok {
		return database.ErrNotFound
	}
	stored.PostID = m.PostID
	stored.SortOrder = m.SortOrder
	s.media[m.ID] = stored
	return nil
}

func (s *Store) DeleteMedia(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.media, id)
	for pid, p := range s.posts {
		if p.CoverImageID.Valid && p.CoverImageID.UUID == id {
			p.CoverImageID = uuid.NullUUID{}
			s.posts[pid] = p
		}
	}
	return nil
}

func (s *Store) sortedMedia(keep func(models.Media) bool, less func(a, b models.Media) bool) []models.Media {
	var out []models.Media
	for _, m := range s.media {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (s *Store) ListMediaByPost(_ context.Context, postID uuid.UUID) ([]models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMedia(
		func(m models.Media) bool { return m.PostID.Valid && m.PostID.UUID == postID },
		func(a, b models.Media) bool {
			if a.SortOrder != b.SortOrder {
				return a.SortOrder < b.SortOrder
			}
			return a.CreatedAt.Before(b.CreatedAt)
		},
	), nil
}

func (s *Store) ListUnattachedMedia(_ context.Context, uploaderID uuid.UUID) ([]models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMedia(
		func(m models.Media) bool {
			return !m.PostID.Valid && m.UploaderID.Valid && m.UploaderID.UUID == uploaderID
		},
		func(a, b models.Media) bool { return a.CreatedAt.After(b.CreatedAt) },
	), nil
}

func (s *Store) CountMedia(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.media), nil
}

// ---- comments

func (s *Store) CreateComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.tick()
	c.CreatedAt, c.UpdatedAt = now, now
	stored := *c
	stored.Author, stored.Replies = nil, nil
	s.comments[c.ID] = stored
	return nil
}

func (s *Store) withAuthor(c models.Comment) models.Comment {
	if u, ok := s.users[c.AuthorID]; ok {
		c.Author = &u
	}
	return c
}

func (s *Store) GetCommentByID(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c = s.withAuthor(c)
	return &c, nil
}

func (s *Store) UpdateComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.comments[c.ID]
	if !ok {
		return database.ErrNotFound
	}
	c.UpdatedAt = s.tick()
	stored.Content = c.Content
	stored.IsApproved = c.IsApproved
	stored.UpdatedAt = c.UpdatedAt
	s.comments[c.ID] = stored
	return nil
}

func (s *Store) DeleteComment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return database.ErrNotFound
	}
	s.deleteCommentTree(id)
	return nil
}

func (s *Store) deleteCommentTree(id uuid.UUID) {
	delete(s.comments, id)
	for cid, c := range s.comments {
		if c.ParentID.Valid && c.ParentID.UUID == id {
			s.deleteCommentTree(cid)
		}
	}
}

func (s *Store) ListComments(_ context.Context, f models.CommentFilter) ([]models.Comment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.Comment
	for _, c := range s.comments {
		if f.PostID.Valid && c.PostID != f.PostID.UUID {
			continue
		}
		if f.ParentID.Valid {
			if !c.ParentID.Valid || c.ParentID.UUID != f.ParentID.UUID {
				continue
			}
		} else if f.TopLevelOnly && c.ParentID.Valid {
			continue
		}
		if f.Approved != nil && c.IsApproved != *f.Approved {
			continue
		}
		all = append(all, s.withAuthor(c))
	}
	sort.SliceStable(all, func(i, j int) bool {
		if f.OldestFirst {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if f.Limit <= 0 {
		return all, len(all), nil
	}
	return page(all, f.Limit, f.Offset), len(all), nil
}

// ---- settings

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	if !ok {
		return "", database.ErrNotFound
	}
	return v, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *Store) AllSettings(context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
