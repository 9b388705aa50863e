package repository

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
)

const (
	dayKeyLayout = "2006-01-02"
	// дневные корзины старше этого срока не нужны ни одному окну
	dayBucketRetention = 31
)

// MemoryStore хранит реестр в памяти процесса. История кликов ограничена
// кольцевым буфером, счётчики по дням ведутся инкрементально.
type MemoryStore struct {
	mu           sync.RWMutex
	links        map[string]*models.Link
	analytics    map[string]*analyticsRecord
	historyLimit int
	nextClickID  int64
}

type analyticsRecord struct {
	totalClicks  int64
	uniqueClicks int64
	visitors     map[string]struct{}
	history      *clickRing
	daily        map[string]int64
	referrers    map[string]int64
	countries    map[string]int64
	devices      map[string]int64
	browsers     map[string]int64
}

func NewMemoryStore(historyLimit int) *MemoryStore {
	if historyLimit <= 0 {
		historyLimit = 1000
	}
	return &MemoryStore{
		links:        make(map[string]*models.Link),
		analytics:    make(map[string]*analyticsRecord),
		historyLimit: historyLimit,
	}
}

func newAnalyticsRecord(limit int) *analyticsRecord {
	return &analyticsRecord{
		visitors:  make(map[string]struct{}),
		history:   &clickRing{limit: limit},
		daily:     make(map[string]int64),
		referrers: make(map[string]int64),
		countries: make(map[string]int64),
		devices:   make(map[string]int64),
		browsers:  make(map[string]int64),
	}
}

func (s *MemoryStore) Create(ctx context.Context, link *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.ShortCode]; exists {
		return ErrCodeExists
	}

	stored := *link
	s.links[link.ShortCode] = &stored
	s.analytics[link.ShortCode] = newAnalyticsRecord(s.historyLimit)
	return nil
}

func (s *MemoryStore) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, exists := s.links[code]
	if !exists {
		return nil, ErrLinkNotFound
	}
	out := *link
	return &out, nil
}

func (s *MemoryStore) RecordClick(ctx context.Context, code string, click *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, exists := s.links[code]
	if !exists {
		return ErrLinkNotFound
	}
	if !link.IsActive {
		return ErrLinkInactive
	}
	rec := s.analytics[code]

	s.nextClickID++
	click.ID = s.nextClickID
	click.ShortCode = code

	link.Clicks++
	rec.totalClicks++
	if click.VisitorHash != "" {
		if _, seen := rec.visitors[click.VisitorHash]; !seen {
			rec.visitors[click.VisitorHash] = struct{}{}
			rec.uniqueClicks++
		}
	}
	rec.referrers[click.Referer]++
	rec.devices[click.Device]++
	rec.browsers[click.Browser]++
	if click.Country != "" {
		rec.countries[click.Country]++
	}

	rec.daily[click.ClickedAt.UTC().Format(dayKeyLayout)]++
	rec.pruneDaily(click.ClickedAt)

	rec.history.push(*click)
	return nil
}

func (s *MemoryStore) SetClickCountry(ctx context.Context, code string, clickID int64, country string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.analytics[code]
	if !exists {
		return ErrLinkNotFound
	}
	rec.countries[country]++
	// клик мог уже выпасть из буфера, тогда меняется только счётчик
	rec.history.update(clickID, func(c *models.Click) { c.Country = country })
	return nil
}

func (s *MemoryStore) GetAnalytics(ctx context.Context, code string, now time.Time) (*models.ClickSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.analytics[code]
	if !exists {
		return nil, ErrLinkNotFound
	}

	w := windowsAt(now)
	summary := &models.ClickSummary{
		TotalClicks:     rec.totalClicks,
		UniqueClicks:    rec.uniqueClicks,
		ClicksToday:     rec.sumSince(w.day, now),
		ClicksThisWeek:  rec.sumSince(w.week, now),
		ClicksThisMonth: rec.sumSince(w.month, now),
		Referrers:       copyCounts(rec.referrers),
		Countries:       copyCounts(rec.countries),
		Devices:         copyCounts(rec.devices),
		Browsers:        copyCounts(rec.browsers),
		RecentClicks:    rec.history.recent(RecentClicksLimit),
	}
	return summary, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, code string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, exists := s.links[code]
	if !exists {
		return ErrLinkNotFound
	}
	link.IsActive = active
	return nil
}

// sumSince суммирует дневные корзины от from до дня now включительно
func (r *analyticsRecord) sumSince(from, now time.Time) int64 {
	var total int64
	for d := from; !d.After(now); d = d.AddDate(0, 0, 1) {
		total += r.daily[d.Format(dayKeyLayout)]
	}
	return total
}

func (r *analyticsRecord) pruneDaily(now time.Time) {
	cutoff := startOfDay(now).AddDate(0, 0, -dayBucketRetention).Format(dayKeyLayout)
	for key := range r.daily {
		// ключи в формате ISO сравниваются лексикографически
		if key < cutoff {
			delete(r.daily, key)
		}
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// clickRing кольцевой буфер последних кликов. Память выделяется по мере
// поступления кликов, до limit элементов.
type clickRing struct {
	buf   []models.Click
	limit int
	next  int
}

func (r *clickRing) push(c models.Click) {
	if len(r.buf) < r.limit {
		r.buf = append(r.buf, c)
		r.next = len(r.buf) % r.limit
		return
	}
	r.buf[r.next] = c
	r.next = (r.next + 1) % r.limit
}

// recent возвращает до n последних кликов, новые первыми
func (r *clickRing) recent(n int) []models.Click {
	size := len(r.buf)
	if n > size {
		n = size
	}
	out := make([]models.Click, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + size) % size
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *clickRing) update(id int64, fn func(*models.Click)) {
	for i := range r.buf {
		if r.buf[i].ID == id {
			fn(&r.buf[i])
			return
		}
	}
}

