package models

import (
	"time"
)

// Link запись реестра коротких ссылок
type Link struct {
	ID             string     `json:"id"`
	ShortCode      string     `json:"shortCode"`
	OriginalURL    string     `json:"originalUrl"`
	PasswordHash   string     `json:"passwordHash,omitempty"`
	Description    string     `json:"description"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	Clicks         int64      `json:"clicks"`
	IsActive       bool       `json:"isActive"`
	IsCustom       bool       `json:"isCustom"`
}

// HasPassword сообщает, защищена ли ссылка паролем
func (l *Link) HasPassword() bool {
	return l.PasswordHash != ""
}

// IsExpired сообщает, истёк ли срок действия ссылки на момент now
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpirationDate != nil && now.After(*l.ExpirationDate)
}

type CreateLinkInput struct {
	OriginalURL    string
	CustomAlias    string
	ExpirationDate *time.Time
	Password       string
	Description    string
}

// ResolveInput параметры одного перехода по короткой ссылке
type ResolveInput struct {
	ShortCode string
	Password  string
	IPAddress string
	UserAgent string
	Referer   string
}

// BulkItemResult результат создания одной ссылки в пакете
type BulkItemResult struct {
	Index       int    `json:"index"`
	OriginalURL string `json:"originalUrl"`
	Success     bool   `json:"success"`
	Link        *Link  `json:"-"`
	Error       string `json:"error,omitempty"`
}

type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type BulkResult struct {
	Results []BulkItemResult `json:"results"`
	Summary BulkSummary      `json:"summary"`
}
