package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
)

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]models.Link
	sets  int
	// Err, если задан, возвращается всеми методами
	Err error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]models.Link),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.cache[key]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	return &link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.cache[key] = *link
	m.sets++
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.cache, key)
	return nil
}

// Has сообщает, лежит ли ключ в кэше
func (m *MockCacheRepository) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cache[key]
	return ok
}

func (m *MockCacheRepository) Sets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}

// MockClickRecorder implements service.ClickRecorder for testing
type MockClickRecorder struct {
	mu     sync.Mutex
	events []models.ClickEvent
}

func NewMockClickRecorder() *MockClickRecorder {
	return &MockClickRecorder{}
}

func (m *MockClickRecorder) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *MockClickRecorder) Events() []models.ClickEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ClickEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MockLocator implements geo.Locator for testing
type MockLocator struct {
	Countries map[string]string
}

func NewMockLocator(countries map[string]string) *MockLocator {
	return &MockLocator{Countries: countries}
}

func (m *MockLocator) Country(ip string) string {
	if country, ok := m.Countries[ip]; ok {
		return country
	}
	return "Unknown"
}

func (m *MockLocator) Close() error { return nil }

// ErrStoreUnavailable возвращается FailingStore
var ErrStoreUnavailable = errors.New("store unavailable")

// FailingStore implements repository.LinkStore; каждый вызов завершается ошибкой
type FailingStore struct{}

func (FailingStore) Create(ctx context.Context, link *models.Link) error {
	return ErrStoreUnavailable
}

func (FailingStore) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	return nil, ErrStoreUnavailable
}

func (FailingStore) RecordClick(ctx context.Context, code string, click *models.Click) error {
	return ErrStoreUnavailable
}

func (FailingStore) SetClickCountry(ctx context.Context, code string, clickID int64, country string) error {
	return ErrStoreUnavailable
}

func (FailingStore) GetAnalytics(ctx context.Context, code string, now time.Time) (*models.ClickSummary, error) {
	return nil, ErrStoreUnavailable
}

func (FailingStore) SetActive(ctx context.Context, code string, active bool) error {
	return ErrStoreUnavailable
}
