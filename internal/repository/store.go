package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
	ErrLinkInactive = errors.New("link is deactivated")
)

// RecentClicksLimit сколько последних кликов отдаёт GetAnalytics
const RecentClicksLimit = 10

// LinkStore хранилище записей реестра и их аналитики. Запись и её аналитика
// создаются вместе и никогда не удаляются.
type LinkStore interface {
	// Create атомарно проверяет код и вставляет запись; ErrCodeExists если код занят
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	// RecordClick увеличивает счётчики и дописывает клик в историю, присваивая click.ID.
	// Для деактивированной записи ничего не пишет и возвращает ErrLinkInactive.
	RecordClick(ctx context.Context, code string, click *models.Click) error
	SetClickCountry(ctx context.Context, code string, clickID int64, country string) error
	GetAnalytics(ctx context.Context, code string, now time.Time) (*models.ClickSummary, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// window начала окон "сегодня", "неделя" (7 дней с сегодняшним) и "месяц" (30 дней)
type window struct {
	day, week, month time.Time
}

func windowsAt(now time.Time) window {
	day := startOfDay(now)
	return window{
		day:   day,
		week:  day.AddDate(0, 0, -6),
		month: day.AddDate(0, 0, -29),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
