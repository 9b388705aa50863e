package service_test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/SergeiKhy/link-registry/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock управляемое время для проверок истечения срока
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc    service.LinkService
	store  *repository.MemoryStore
	cache  *mocks.MockCacheRepository
	clicks *mocks.MockClickRecorder
	clock  *testClock
}

// setupTestService создаёт сервис поверх хранилища в памяти и моков
func setupTestService(opts ...service.Option) *testEnv {
	env := &testEnv{
		store:  repository.NewMemoryStore(100),
		cache:  mocks.NewMockCacheRepository(),
		clicks: mocks.NewMockClickRecorder(),
		clock:  &testClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]service.Option{service.WithClock(env.clock.Now)}, opts...)
	env.svc = service.NewLinkService(env.store, env.cache, env.clicks, zap.NewNop(), opts...)
	return env
}

func resolveInput(code string) *models.ResolveInput {
	return &models.ResolveInput{
		ShortCode: code,
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
		Referer:   "https://www.google.com/search?q=x",
	}
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// TestLinkService_Mint_Success проверяет успешное создание ссылки
func TestLinkService_Mint_Success(t *testing.T) {
	env := setupTestService()

	link, err := env.svc.Mint(context.Background(), &models.CreateLinkInput{
		OriginalURL: "https://example.com/page",
		Description: "landing",
	})

	require.NoError(t, err)
	assert.Regexp(t, codePattern, link.ShortCode)
	assert.Equal(t, "https://example.com/page", link.OriginalURL)
	assert.Equal(t, "landing", link.Description)
	assert.NotEmpty(t, link.ID)
	assert.True(t, link.IsActive)
	assert.False(t, link.IsCustom)
	assert.Zero(t, link.Clicks)
	assert.Equal(t, env.clock.Now(), link.CreatedAt)
	assert.True(t, env.cache.Has(link.ShortCode))
}

// TestLinkService_Mint_UniqueCodes генерирует 10000 кодов без повторов
func TestLinkService_Mint_UniqueCodes(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		link, err := env.svc.Mint(ctx, &models.CreateLinkInput{
			OriginalURL: fmt.Sprintf("https://example.com/%d", i),
		})
		require.NoError(t, err)
		require.Regexp(t, codePattern, link.ShortCode)

		_, dup := seen[link.ShortCode]
		require.False(t, dup, "duplicate code %s", link.ShortCode)
		seen[link.ShortCode] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

// TestLinkService_Mint_CustomAlias проверяет занятость псевдонима
func TestLinkService_Mint_CustomAlias(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	first, err := env.svc.Mint(ctx, &models.CreateLinkInput{
		OriginalURL: "https://example.com/first",
		CustomAlias: "promo1",
	})
	require.NoError(t, err)
	assert.Equal(t, "promo1", first.ShortCode)
	assert.True(t, first.IsCustom)

	_, err = env.svc.Mint(ctx, &models.CreateLinkInput{
		OriginalURL: "https://example.com/second",
		CustomAlias: "promo1",
	})
	assert.ErrorIs(t, err, service.ErrAliasTaken)

	// первая запись не изменилась
	got, err := env.store.GetByShortCode(ctx, "promo1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/first", got.OriginalURL)
	assert.Zero(t, got.Clicks)
}

func TestLinkService_Mint_Validation(t *testing.T) {
	env := setupTestService()
	past := env.clock.Now().Add(-time.Minute)

	tests := []struct {
		name  string
		input models.CreateLinkInput
		want  error
	}{
		{"empty url", models.CreateLinkInput{OriginalURL: ""}, service.ErrInvalidURL},
		{"not a url", models.CreateLinkInput{OriginalURL: "not a url"}, service.ErrInvalidURL},
		{"ftp scheme", models.CreateLinkInput{OriginalURL: "ftp://example.com/file"}, service.ErrInvalidURL},
		{"javascript scheme", models.CreateLinkInput{OriginalURL: "javascript:alert(1)"}, service.ErrInvalidURL},
		{"localhost", models.CreateLinkInput{OriginalURL: "http://localhost:3000/x"}, service.ErrSuspiciousURL},
		{"loopback ip", models.CreateLinkInput{OriginalURL: "http://127.0.0.1/x"}, service.ErrSuspiciousURL},
		{"another shortener", models.CreateLinkInput{OriginalURL: "https://bit.ly/abc"}, service.ErrSuspiciousURL},
		{"executable", models.CreateLinkInput{OriginalURL: "https://example.com/setup.EXE"}, service.ErrSuspiciousURL},
		{"short alias", models.CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "ab"}, service.ErrInvalidAlias},
		{"alias with space", models.CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "my alias"}, service.ErrInvalidAlias},
		{"long alias", models.CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "abcdefghijklmnopqrstu"}, service.ErrInvalidAlias},
		{"past expiration", models.CreateLinkInput{OriginalURL: "https://example.com", ExpirationDate: &past}, service.ErrInvalidExpiration},
		{"long password", models.CreateLinkInput{OriginalURL: "https://example.com", Password: string(make([]byte, 73))}, service.ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Mint(context.Background(), &tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLinkService_Mint_BlockedDomains(t *testing.T) {
	env := setupTestService(service.WithBlockedDomains([]string{"Evil.Example"}))

	_, err := env.svc.Mint(context.Background(), &models.CreateLinkInput{OriginalURL: "https://cdn.evil.example/x"})
	assert.ErrorIs(t, err, service.ErrSuspiciousURL)

	_, err = env.svc.Mint(context.Background(), &models.CreateLinkInput{OriginalURL: "https://notevil.example/x"})
	assert.NoError(t, err)
}

func TestLinkService_Mint_StoreFailure(t *testing.T) {
	svc := service.NewLinkService(mocks.FailingStore{}, nil, nil, nil)

	_, err := svc.Mint(context.Background(), &models.CreateLinkInput{OriginalURL: "https://example.com"})
	assert.ErrorIs(t, err, mocks.ErrStoreUnavailable)
}

// TestLinkService_Resolve_RecordsClick проверяет переход и запись клика
func TestLinkService_Resolve_RecordsClick(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/target"})
	require.NoError(t, err)

	target, err := env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/target", target)

	analytics, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, analytics.Link.Clicks)
	assert.EqualValues(t, 1, analytics.Analytics.TotalClicks)
	assert.EqualValues(t, 1, analytics.Analytics.UniqueClicks)
	assert.EqualValues(t, 1, analytics.Analytics.ClicksToday)
	require.Len(t, analytics.Analytics.RecentClicks, 1)

	click := analytics.Analytics.RecentClicks[0]
	assert.Equal(t, "203.0.113.0", click.IPAddress)
	assert.Equal(t, "google.com", click.Referer)
	assert.Equal(t, service.BrowserChrome, click.Browser)
	assert.Equal(t, service.DeviceDesktop, click.Device)

	events := env.clicks.Events()
	require.Len(t, events, 1)
	assert.Equal(t, link.ShortCode, events[0].ShortCode)
	assert.Equal(t, click.ID, events[0].ClickID)
	assert.Equal(t, "203.0.113.7", events[0].IPAddress)
}

func TestLinkService_Resolve_NotFound(t *testing.T) {
	env := setupTestService()

	_, err := env.svc.Resolve(context.Background(), resolveInput("nope12"))
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Empty(t, env.clicks.Events())
}

// TestLinkService_Resolve_Expired отличает истёкшую ссылку от отсутствующей
func TestLinkService_Resolve_Expired(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	expires := env.clock.Now().Add(time.Hour)
	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{
		OriginalURL:    "https://example.com/soon",
		ExpirationDate: &expires,
	})
	require.NoError(t, err)

	_, err = env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)

	_, err = env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	assert.ErrorIs(t, err, service.ErrExpired)

	_, err = env.svc.Resolve(ctx, resolveInput("absent"))
	assert.ErrorIs(t, err, service.ErrNotFound)

	// истёкший переход не считается
	analytics, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, analytics.Analytics.TotalClicks)
}

func TestLinkService_Resolve_Password(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{
		OriginalURL: "https://example.com/secret",
		Password:    "s3cret",
	})
	require.NoError(t, err)
	assert.True(t, link.HasPassword())
	assert.NotEqual(t, "s3cret", link.PasswordHash)

	input := resolveInput(link.ShortCode)
	_, err = env.svc.Resolve(ctx, input)
	assert.ErrorIs(t, err, service.ErrPasswordRequired)

	input.Password = "wrong"
	_, err = env.svc.Resolve(ctx, input)
	assert.ErrorIs(t, err, service.ErrPasswordIncorrect)

	analytics, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Zero(t, analytics.Analytics.TotalClicks)

	input.Password = "s3cret"
	target, err := env.svc.Resolve(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/secret", target)

	analytics, err = env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 1, analytics.Link.Clicks)
}

func TestLinkService_Resolve_UsesCache(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/cached"})
	require.NoError(t, err)
	sets := env.cache.Sets()

	for i := 0; i < 3; i++ {
		_, err := env.svc.Resolve(ctx, resolveInput(link.ShortCode))
		require.NoError(t, err)
	}
	assert.Equal(t, sets, env.cache.Sets())

	analytics, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 3, analytics.Link.Clicks)
}

func TestLinkService_Resolve_CacheErrorFallsBack(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/x"})
	require.NoError(t, err)

	env.cache.Err = fmt.Errorf("redis down")

	target, err := env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", target)
}

func TestLinkService_DeactivateActivate(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/x"})
	require.NoError(t, err)

	require.NoError(t, env.svc.Deactivate(ctx, link.ShortCode))
	assert.False(t, env.cache.Has(link.ShortCode))

	_, err = env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = env.svc.GetLink(ctx, link.ShortCode)
	assert.ErrorIs(t, err, service.ErrNotFound)

	// аналитика доступна и для выключенной ссылки
	_, err = env.svc.GetAnalytics(ctx, link.ShortCode)
	assert.NoError(t, err)

	require.NoError(t, env.svc.Activate(ctx, link.ShortCode))
	_, err = env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	assert.NoError(t, err)

	assert.ErrorIs(t, env.svc.Deactivate(ctx, "absent"), service.ErrNotFound)
}

// pausingStore останавливает чтение записи, пока тест не отпустит его
type pausingStore struct {
	*repository.MemoryStore
	reached chan struct{}
	release chan struct{}
}

func (s *pausingStore) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	link, err := s.MemoryStore.GetByShortCode(ctx, code)
	s.reached <- struct{}{}
	<-s.release
	return link, err
}

// TestLinkService_DeactivateDuringResolve деактивация между чтением записи и
// записью в кэш не должна оставлять ссылку рабочей
func TestLinkService_DeactivateDuringResolve(t *testing.T) {
	ctx := context.Background()
	memory := repository.NewMemoryStore(10)
	cache := mocks.NewMockCacheRepository()

	writer := service.NewLinkService(memory, cache, nil, zap.NewNop())
	_, err := writer.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "promo1"})
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, "promo1"))

	store := &pausingStore{MemoryStore: memory, reached: make(chan struct{}, 4), release: make(chan struct{})}
	svc := service.NewLinkService(store, cache, nil, zap.NewNop())

	type outcome struct {
		target string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		target, err := svc.Resolve(ctx, resolveInput("promo1"))
		done <- outcome{target, err}
	}()

	<-store.reached
	require.NoError(t, writer.Deactivate(ctx, "promo1"))
	close(store.release)

	first := <-done
	assert.ErrorIs(t, first.err, service.ErrNotFound)
	assert.Empty(t, first.target)
	assert.False(t, cache.Has("promo1"))

	// следующий переход идёт мимо кэша и видит выключенную запись
	_, err = svc.Resolve(ctx, resolveInput("promo1"))
	assert.ErrorIs(t, err, service.ErrNotFound)

	summary, err := memory.GetAnalytics(ctx, "promo1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalClicks)
}

// TestLinkService_Resolve_StaleCachedCopy устаревшая активная копия в кэше
// не пропускает переход к выключенной записи
func TestLinkService_Resolve_StaleCachedCopy(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/stale"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Deactivate(ctx, link.ShortCode))

	stale := *link
	stale.IsActive = true
	require.NoError(t, env.cache.Set(ctx, link.ShortCode, &stale, time.Hour))

	_, err = env.svc.Resolve(ctx, resolveInput(link.ShortCode))
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.False(t, env.cache.Has(link.ShortCode))

	summary, err := env.store.GetAnalytics(ctx, link.ShortCode, time.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalClicks)
}

func TestLinkService_GetAnalytics(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/a"})
	require.NoError(t, err)

	agents := []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
	for i, ua := range agents {
		input := resolveInput(link.ShortCode)
		input.UserAgent = ua
		input.IPAddress = fmt.Sprintf("198.51.100.%d", i%2)
		input.Referer = ""
		_, err := env.svc.Resolve(ctx, input)
		require.NoError(t, err)
	}

	result, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)

	a := result.Analytics
	assert.EqualValues(t, 3, a.TotalClicks)
	assert.EqualValues(t, 2, a.UniqueClicks)
	assert.EqualValues(t, 3, a.ClicksThisWeek)
	assert.EqualValues(t, 3, a.ClicksThisMonth)
	assert.Equal(t, []models.CategoryCount{
		{Name: service.BrowserFirefox, Count: 2},
		{Name: service.BrowserSafari, Count: 1},
	}, a.TopBrowsers)
	assert.Equal(t, []models.CategoryCount{
		{Name: service.DeviceDesktop, Count: 2},
		{Name: service.DeviceMobile, Count: 1},
	}, a.TopDevices)
	assert.Equal(t, []models.CategoryCount{{Name: service.ReferrerDirect, Count: 3}}, a.TopReferrers)
	assert.Empty(t, a.TopCountries)
	require.Len(t, a.RecentClicks, 3)
	assert.Equal(t, agents[2], a.RecentClicks[0].UserAgent)

	_, err = env.svc.GetAnalytics(ctx, "absent")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestLinkService_GetAnalytics_TopFive(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/a"})
	require.NoError(t, err)

	hosts := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com", "f.com"}
	for _, host := range hosts {
		input := resolveInput(link.ShortCode)
		input.Referer = "https://" + host + "/"
		_, err := env.svc.Resolve(ctx, input)
		require.NoError(t, err)
	}

	result, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{
		{Name: "f.com", Count: 2},
		{Name: "a.com", Count: 1},
		{Name: "b.com", Count: 1},
		{Name: "c.com", Count: 1},
		{Name: "d.com", Count: 1},
	}, result.Analytics.TopReferrers)
}

// TestLinkService_BulkMint_TooMany отклоняет пакет больше 100 элементов целиком
func TestLinkService_BulkMint_TooMany(t *testing.T) {
	env := setupTestService()

	inputs := make([]models.CreateLinkInput, 101)
	for i := range inputs {
		inputs[i].OriginalURL = fmt.Sprintf("https://example.com/%d", i)
	}

	_, err := env.svc.BulkMint(context.Background(), inputs)
	assert.ErrorIs(t, err, service.ErrTooManyItems)

	// ничего не создано
	_, err = env.svc.GetAnalytics(context.Background(), "absent")
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Zero(t, env.cache.Sets())
}

func TestLinkService_BulkMint_Empty(t *testing.T) {
	env := setupTestService()

	_, err := env.svc.BulkMint(context.Background(), nil)
	assert.ErrorIs(t, err, service.ErrEmptyBatch)
}

// TestLinkService_BulkMint_PartialFailure один плохой адрес не ломает пакет
func TestLinkService_BulkMint_PartialFailure(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	inputs := make([]models.CreateLinkInput, 100)
	for i := range inputs {
		inputs[i].OriginalURL = fmt.Sprintf("https://example.com/%d", i)
	}
	inputs[42].OriginalURL = "not a url"

	result, err := env.svc.BulkMint(ctx, inputs)
	require.NoError(t, err)

	assert.Equal(t, models.BulkSummary{Total: 100, Successful: 99, Failed: 1}, result.Summary)
	require.Len(t, result.Results, 100)

	for i, item := range result.Results {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, inputs[i].OriginalURL, item.OriginalURL)
		if i == 42 {
			assert.False(t, item.Success)
			assert.Equal(t, service.ErrInvalidURL.Error(), item.Error)
			assert.Nil(t, item.Link)
			continue
		}
		require.True(t, item.Success)
		require.NotNil(t, item.Link)
		_, err := env.store.GetByShortCode(ctx, item.Link.ShortCode)
		assert.NoError(t, err)
	}
}

func TestLinkService_BulkMint_AliasConflictInsideBatch(t *testing.T) {
	env := setupTestService()

	result, err := env.svc.BulkMint(context.Background(), []models.CreateLinkInput{
		{OriginalURL: "https://example.com/1", CustomAlias: "same-alias"},
		{OriginalURL: "https://example.com/2", CustomAlias: "same-alias"},
	})
	require.NoError(t, err)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, service.ErrAliasTaken.Error(), result.Results[1].Error)
}

func TestLinkService_ConcurrentResolve(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	link, err := env.svc.Mint(ctx, &models.CreateLinkInput{OriginalURL: "https://example.com/hot"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Resolve(ctx, resolveInput(link.ShortCode))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	result, err := env.svc.GetAnalytics(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.EqualValues(t, 50, result.Analytics.TotalClicks)
	assert.EqualValues(t, 50, result.Link.Clicks)
}
