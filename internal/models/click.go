package models

import (
	"time"
)

// Click одно событие перехода, хранится в истории кликов
type Click struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"shortCode"`
	IPAddress   string    `json:"ip"` // усечённый адрес
	VisitorHash string    `json:"-"`
	UserAgent   string    `json:"userAgent"`
	Referer     string    `json:"referrer"`
	Device      string    `json:"device"`
	Browser     string    `json:"browser"`
	Country     string    `json:"country,omitempty"`
	ClickedAt   time.Time `json:"timestamp"`
}

// ClickEvent задание для асинхронного обогащения клика (гео)
type ClickEvent struct {
	ShortCode string
	ClickID   int64
	IPAddress string // полный адрес, в хранилище не попадает
}

// ClickSummary агрегаты по одной ссылке, которые отдаёт хранилище
type ClickSummary struct {
	TotalClicks     int64
	UniqueClicks    int64
	ClicksToday     int64
	ClicksThisWeek  int64
	ClicksThisMonth int64
	Referrers       map[string]int64
	Countries       map[string]int64
	Devices         map[string]int64
	Browsers        map[string]int64
	RecentClicks    []Click // новые первыми
}

// CategoryCount строка топ-списка
type CategoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Analytics агрегированное представление для GET /analytics
type Analytics struct {
	TotalClicks     int64           `json:"totalClicks"`
	UniqueClicks    int64           `json:"uniqueClicks"`
	ClicksToday     int64           `json:"clicksToday"`
	ClicksThisWeek  int64           `json:"clicksThisWeek"`
	ClicksThisMonth int64           `json:"clicksThisMonth"`
	TopReferrers    []CategoryCount `json:"topReferrers"`
	TopCountries    []CategoryCount `json:"topCountries"`
	TopDevices      []CategoryCount `json:"topDevices"`
	TopBrowsers     []CategoryCount `json:"topBrowsers"`
	RecentClicks    []Click         `json:"recentClicks"`
}

type LinkAnalytics struct {
	Link      *Link
	Analytics *Analytics
}
