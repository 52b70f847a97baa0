package models

import "github.com/google/uuid"

// PostFilter: условия выборки постов для листинга
type PostFilter struct {
	Visibilities  []PostVisibility
	IncludeDrafts bool
	Limit         int
	Offset        int
}

// CommentFilter: условия выборки комментариев
type CommentFilter struct {
	PostID       uuid.NullUUID
	ParentID     uuid.NullUUID
	TopLevelOnly bool
	// nil: любые, true: только одобренные, false: только ожидающие модерации
	Approved    *bool
	OldestFirst bool
	Limit       int
	Offset      int
}
