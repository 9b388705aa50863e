package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/metrics"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Ошибки сервиса
var (
	ErrInvalidURL        = errors.New("invalid URL: must be an absolute http or https URL")
	ErrSuspiciousURL     = errors.New("URL is not allowed")
	ErrInvalidAlias      = errors.New("custom alias must be 3-20 characters: letters, digits, hyphens or underscores")
	ErrAliasTaken        = errors.New("custom alias is already taken")
	ErrInvalidExpiration = errors.New("expiration date must be in the future")
	ErrPasswordTooLong   = errors.New("password must be at most 72 bytes")
	ErrNotFound          = errors.New("short URL not found")
	ErrExpired           = errors.New("short URL has expired")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("incorrect password")
	ErrTooManyItems      = errors.New("maximum 100 URLs allowed per bulk request")
	ErrEmptyBatch        = errors.New("urls must be a non-empty array")
)

// Константы сервиса
const (
	MaxBulkItems     = 100
	topCategoryLimit = 5
	defaultCacheTTL  = time.Hour
	maxPasswordBytes = 72
)

// LinkService операции реестра коротких ссылок
type LinkService interface {
	Mint(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	Resolve(ctx context.Context, input *models.ResolveInput) (string, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	GetAnalytics(ctx context.Context, code string) (*models.LinkAnalytics, error)
	BulkMint(ctx context.Context, inputs []models.CreateLinkInput) (*models.BulkResult, error)
	Deactivate(ctx context.Context, code string) error
	Activate(ctx context.Context, code string) error
}

// ClickRecorder принимает события кликов для асинхронной обработки
type ClickRecorder interface {
	RecordClick(ctx context.Context, event *models.ClickEvent) error
}

// Option настраивает linkService
type Option func(*linkService)

// WithClock подменяет источник времени (для тестов истечения срока)
func WithClock(now func() time.Time) Option {
	return func(s *linkService) { s.now = now }
}

// WithBlockedDomains добавляет домены к встроенному списку запрещённых
func WithBlockedDomains(domains []string) Option {
	return func(s *linkService) { s.policy = newURLPolicy(domains) }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *linkService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *linkService) { s.metrics = m }
}

// linkService реализация сервиса ссылок
type linkService struct {
	store    repository.LinkStore
	cache    repository.CacheRepository
	clicks   ClickRecorder
	logger   *zap.Logger
	metrics  *metrics.Metrics
	policy   *urlPolicy
	cacheTTL time.Duration
	now      func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса. cache и clicks могут быть nil.
func NewLinkService(
	store repository.LinkStore,
	cache repository.CacheRepository,
	clicks ClickRecorder,
	logger *zap.Logger,
	opts ...Option,
) LinkService {
	if cache == nil {
		cache = repository.NewNoopCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &linkService{
		store:    store,
		cache:    cache,
		clicks:   clicks,
		logger:   logger,
		metrics:  metrics.NewNop(),
		policy:   newURLPolicy(nil),
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint создаёт новую короткую ссылку
func (s *linkService) Mint(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	originalURL := strings.TrimSpace(input.OriginalURL)
	if err := s.policy.validate(originalURL); err != nil {
		return nil, err
	}

	alias := strings.TrimSpace(input.CustomAlias)
	if alias != "" {
		if err := validateAlias(alias); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if input.ExpirationDate != nil && !input.ExpirationDate.After(now) {
		return nil, ErrInvalidExpiration
	}

	var passwordHash string
	if input.Password != "" {
		if len(input.Password) > maxPasswordBytes {
			return nil, ErrPasswordTooLong
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	link := &models.Link{
		ID:             uuid.NewString(),
		OriginalURL:    originalURL,
		PasswordHash:   passwordHash,
		Description:    strings.TrimSpace(input.Description),
		ExpirationDate: input.ExpirationDate,
		CreatedAt:      now,
		IsActive:       true,
		IsCustom:       alias != "",
	}

	if alias != "" {
		link.ShortCode = alias
		if err := s.store.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrCodeExists) {
				return nil, ErrAliasTaken
			}
			return nil, err
		}
		s.metrics.LinksCreated.WithLabelValues("custom").Inc()
	} else {
		// Повторяем до свободного кода: при 62^6 вариантах коллизии редки
		for {
			code, err := generateShortCode()
			if err != nil {
				return nil, fmt.Errorf("failed to generate code: %w", err)
			}
			link.ShortCode = code

			err = s.store.Create(ctx, link)
			if err == nil {
				break
			}
			if !errors.Is(err, repository.ErrCodeExists) {
				return nil, err
			}
			s.logger.Debug("Short code collision, retrying", zap.String("short_code", code))
		}
		s.metrics.LinksCreated.WithLabelValues("random").Inc()
	}

	// Ошибка кэша не прерывает создание
	s.cacheLink(ctx, link)

	s.logger.Info("Short link created",
		zap.String("short_code", link.ShortCode),
		zap.Bool("custom", link.IsCustom),
		zap.Bool("password", link.HasPassword()),
	)

	return link, nil
}

// Resolve проверяет ссылку, записывает клик и возвращает адрес назначения
func (s *linkService) Resolve(ctx context.Context, input *models.ResolveInput) (string, error) {
	link, err := s.lookup(ctx, input.ShortCode)
	if err != nil {
		s.countResolve(err)
		return "", err
	}

	now := s.now()
	if err := s.checkAccess(link, input.Password, now); err != nil {
		s.countResolve(err)
		return "", err
	}

	click := &models.Click{
		IPAddress:   truncateIP(input.IPAddress),
		VisitorHash: visitorHash(input.IPAddress),
		UserAgent:   input.UserAgent,
		Referer:     classifyReferrer(input.Referer),
		Device:      classifyDevice(input.UserAgent),
		Browser:     classifyBrowser(input.UserAgent),
		ClickedAt:   now,
	}
	if err := s.store.RecordClick(ctx, link.ShortCode, click); err != nil {
		if errors.Is(err, repository.ErrLinkInactive) {
			// в кэше осталась копия, прочитанная до деактивации
			s.invalidate(ctx, link.ShortCode)
		}
		if errors.Is(err, repository.ErrLinkNotFound) || errors.Is(err, repository.ErrLinkInactive) {
			s.countResolve(ErrNotFound)
			return "", ErrNotFound
		}
		s.countResolve(err)
		return "", fmt.Errorf("failed to record click: %w", err)
	}

	// Гео определяется асинхронно, переход не ждёт
	if s.clicks != nil && input.IPAddress != "" {
		event := &models.ClickEvent{
			ShortCode: link.ShortCode,
			ClickID:   click.ID,
			IPAddress: input.IPAddress,
		}
		if err := s.clicks.RecordClick(ctx, event); err != nil {
			s.logger.Debug("Failed to enqueue click event", zap.Error(err))
		}
	}

	s.countResolve(nil)
	return link.OriginalURL, nil
}

func (s *linkService) checkAccess(link *models.Link, password string, now time.Time) error {
	if !link.IsActive {
		return ErrNotFound
	}
	if link.IsExpired(now) {
		return ErrExpired
	}
	if link.HasPassword() {
		if password == "" {
			return ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			return ErrPasswordIncorrect
		}
	}
	return nil
}

// GetLink возвращает запись; деактивированные записи считаются отсутствующими
func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.IsActive {
		return nil, ErrNotFound
	}
	return link, nil
}

// GetAnalytics собирает агрегаты по ссылке на момент вызова
func (s *linkService) GetAnalytics(ctx context.Context, code string) (*models.LinkAnalytics, error) {
	// Мимо кэша: нужен актуальный счётчик кликов
	link, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	summary, err := s.store.GetAnalytics(ctx, code, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	recent := summary.RecentClicks
	if recent == nil {
		recent = []models.Click{}
	}

	return &models.LinkAnalytics{
		Link: link,
		Analytics: &models.Analytics{
			TotalClicks:     summary.TotalClicks,
			UniqueClicks:    summary.UniqueClicks,
			ClicksToday:     summary.ClicksToday,
			ClicksThisWeek:  summary.ClicksThisWeek,
			ClicksThisMonth: summary.ClicksThisMonth,
			TopReferrers:    topCategories(summary.Referrers, topCategoryLimit),
			TopCountries:    topCategories(summary.Countries, topCategoryLimit),
			TopDevices:      topCategories(summary.Devices, topCategoryLimit),
			TopBrowsers:     topCategories(summary.Browsers, topCategoryLimit),
			RecentClicks:    recent,
		},
	}, nil
}

// BulkMint создаёт ссылки по одной; ошибка одного элемента не прерывает пакет
func (s *linkService) BulkMint(ctx context.Context, inputs []models.CreateLinkInput) (*models.BulkResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(inputs) > MaxBulkItems {
		return nil, ErrTooManyItems
	}

	result := &models.BulkResult{
		Results: make([]models.BulkItemResult, 0, len(inputs)),
		Summary: models.BulkSummary{Total: len(inputs)},
	}

	for i := range inputs {
		item := models.BulkItemResult{
			Index:       i,
			OriginalURL: inputs[i].OriginalURL,
		}

		var link *models.Link
		err := ctx.Err()
		if err == nil {
			link, err = s.Mint(ctx, &inputs[i])
		}

		if err != nil {
			item.Error = err.Error()
			result.Summary.Failed++
		} else {
			item.Success = true
			item.Link = link
			result.Summary.Successful++
		}
		result.Results = append(result.Results, item)
	}

	s.logger.Info("Bulk mint completed",
		zap.Int("total", result.Summary.Total),
		zap.Int("successful", result.Summary.Successful),
		zap.Int("failed", result.Summary.Failed),
	)

	return result, nil
}

func (s *linkService) Deactivate(ctx context.Context, code string) error {
	return s.setActive(ctx, code, false)
}

func (s *linkService) Activate(ctx context.Context, code string) error {
	return s.setActive(ctx, code, true)
}

func (s *linkService) setActive(ctx context.Context, code string, active bool) error {
	if err := s.store.SetActive(ctx, code, active); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.invalidate(ctx, code)

	s.logger.Info("Short link state changed", zap.String("short_code", code), zap.Bool("active", active))
	return nil
}

func (s *linkService) invalidate(ctx context.Context, code string) {
	if err := s.cache.Delete(ctx, code); err != nil {
		s.logger.Warn("Failed to invalidate cached link", zap.String("short_code", code), zap.Error(err))
	}
}

// lookup получает ссылку (сначала из кэша, затем из хранилища)
func (s *linkService) lookup(ctx context.Context, code string) (*models.Link, error) {
	link, err := s.cache.Get(ctx, code)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("Cache read failed", zap.String("short_code", code), zap.Error(err))
	}

	link, err = s.store.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.cacheLink(ctx, link)
	return link, nil
}

func (s *linkService) cacheLink(ctx context.Context, link *models.Link) {
	ttl := s.cacheTTL
	if link.ExpirationDate != nil {
		if untilExpiry := link.ExpirationDate.Sub(s.now()); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if ttl <= 0 {
		return
	}

	if err := s.cache.Set(ctx, link.ShortCode, link, ttl); err != nil {
		s.logger.Warn("Failed to cache link", zap.String("short_code", link.ShortCode), zap.Error(err))
	}
}

func (s *linkService) countResolve(err error) {
	outcome := metrics.OutcomeRedirected
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, ErrExpired):
		outcome = metrics.OutcomeExpired
	case errors.Is(err, ErrPasswordRequired):
		outcome = metrics.OutcomePasswordRequired
	case errors.Is(err, ErrPasswordIncorrect):
		outcome = metrics.OutcomePasswordIncorrect
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.Resolves.WithLabelValues(outcome).Inc()
}

// topCategories сортирует по убыванию счётчика, при равенстве по имени
func topCategories(counts map[string]int64, limit int) []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, models.CategoryCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
