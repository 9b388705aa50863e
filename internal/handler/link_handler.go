package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/qr"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName    = "url-shortener"
	serviceVersion = "1.0.0"
	dateOnlyLayout = "2006-01-02"

	healthCheckTimeout = 2 * time.Second
)

var errInvalidExpirationFormat = errors.New("expirationDate must be an RFC 3339 timestamp or a YYYY-MM-DD date")

// HandlerConfig параметры, которые обработчики отдают клиентам
type HandlerConfig struct {
	BaseURL       string
	StorageDriver string
	// Dependencies внешние сервисы, которые проверяет /health (postgres, redis)
	Dependencies map[string]Pinger
}

// Pinger внешняя зависимость с проверкой доступности
type Pinger interface {
	Ping(ctx context.Context) error
}

type LinkHandler struct {
	service   service.LinkService
	processor service.ClickProcessor
	cfg       HandlerConfig
	logger    *zap.Logger
	startedAt time.Time
}

// NewLinkHandler создаёт обработчики; processor может быть nil
func NewLinkHandler(svc service.LinkService, processor service.ClickProcessor, cfg HandlerConfig, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LinkHandler{
		service:   svc,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
}

type ShortenRequest struct {
	OriginalURL    string `json:"originalUrl"`
	CustomAlias    string `json:"customAlias,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	Password       string `json:"password,omitempty"`
	Description    string `json:"description,omitempty"`
}

type BulkRequest struct {
	URLs []ShortenRequest `json:"urls"`
}

type LinkResponse struct {
	ID             string     `json:"id"`
	OriginalURL    string     `json:"originalUrl"`
	ShortURL       string     `json:"shortUrl"`
	ShortCode      string     `json:"shortCode"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpirationDate *time.Time `json:"expirationDate"`
	HasPassword    bool       `json:"hasPassword"`
	Description    string     `json:"description"`
	QRCode         string     `json:"qrCode"`
	Clicks         int64      `json:"clicks"`
	IsActive       bool       `json:"isActive"`
}

type RedirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type AnalyticsResponse struct {
	URL       LinkResponse      `json:"url"`
	Analytics *models.Analytics `json:"analytics"`
}

type BulkItemResponse struct {
	Index       int           `json:"index"`
	OriginalURL string        `json:"originalUrl"`
	Success     bool          `json:"success"`
	Data        *LinkResponse `json:"data,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type BulkResponse struct {
	Results []BulkItemResponse `json:"results"`
	Summary models.BulkSummary `json:"summary"`
}

type StateResponse struct {
	ShortCode string `json:"shortCode"`
	IsActive  bool   `json:"isActive"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Shorten godoc
// @Summary Create a short link
// @Description Mint a short code (random or custom alias) for a URL
// @Tags links
// @Accept json
// @Produce json
// @Param request body ShortenRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/shorten [post]
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.respondError(c, err)
		return
	}

	link, err := h.service.Mint(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.linkResponse(link))
}

// Redirect godoc
// @Summary Resolve a short code
// @Description Check the code, record a click and return the destination URL
// @Tags links
// @Produce json
// @Param shortCode path string true "Short code"
// @Param password query string false "Password for protected links"
// @Success 200 {object} RedirectResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/redirect/{shortCode} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	target, err := h.service.Resolve(c.Request.Context(), h.resolveInput(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RedirectResponse{RedirectURL: target})
}

// Follow godoc
// @Summary Browser redirect
// @Description Same as resolve, but answers with 302 to the destination
// @Tags links
// @Param shortCode path string true "Short code"
// @Param password query string false "Password for protected links"
// @Success 302
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /s/{shortCode} [get]
func (h *LinkHandler) Follow(c *gin.Context) {
	target, err := h.service.Resolve(c.Request.Context(), h.resolveInput(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// Analytics godoc
// @Summary Link analytics
// @Description Totals, windowed counts, top categories and recent clicks
// @Tags analytics
// @Produce json
// @Param shortCode path string true "Short code"
// @Success 200 {object} AnalyticsResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/analytics/{shortCode} [get]
func (h *LinkHandler) Analytics(c *gin.Context) {
	result, err := h.service.GetAnalytics(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AnalyticsResponse{
		URL:       h.linkResponse(result.Link),
		Analytics: result.Analytics,
	})
}

// QRCode godoc
// @Summary QR code for a short link
// @Description Renders the short URL as a QR symbol
// @Tags links
// @Produce image/svg+xml
// @Produce image/png
// @Param shortCode path string true "Short code"
// @Param size query int false "Image size in pixels (100-1000)" default(200)
// @Param format query string false "svg or png" default(svg)
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/qr/{shortCode} [get]
func (h *LinkHandler) QRCode(c *gin.Context) {
	size := qr.DefaultSize
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, qr.ErrInvalidSize)
			return
		}
		size = parsed
	}
	format := strings.ToLower(c.DefaultQuery("format", qr.FormatSVG))

	link, err := h.service.GetLink(c.Request.Context(), c.Param("shortCode"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	img, err := qr.Render(h.shortURL(link.ShortCode), size, format)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// Bulk godoc
// @Summary Create short links in bulk
// @Description Mints up to 100 links; each item succeeds or fails independently
// @Tags links
// @Accept json
// @Produce json
// @Param request body BulkRequest true "URLs to shorten"
// @Success 200 {object} BulkResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/bulk [post]
func (h *LinkHandler) Bulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid bulk body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if len(req.URLs) > service.MaxBulkItems {
		h.respondError(c, service.ErrTooManyItems)
		return
	}

	inputs := make([]models.CreateLinkInput, len(req.URLs))
	parseErrs := make(map[int]error)
	for i, item := range req.URLs {
		input, err := item.toInput()
		if err != nil {
			parseErrs[i] = err
			continue
		}
		inputs[i] = *input
	}

	result, err := h.service.BulkMint(c.Request.Context(), inputs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := BulkResponse{
		Results: make([]BulkItemResponse, len(result.Results)),
		Summary: result.Summary,
	}
	for i, item := range result.Results {
		out := BulkItemResponse{
			Index:       item.Index,
			OriginalURL: req.URLs[i].OriginalURL,
			Success:     item.Success,
			Error:       item.Error,
		}
		if item.Link != nil {
			data := h.linkResponse(item.Link)
			out.Data = &data
		}
		resp.Results[i] = out
	}

	// Вход с нечитаемой датой пуст и уже отклонён сервисом; возвращаем настоящую причину
	for i, parseErr := range parseErrs {
		resp.Results[i].Error = parseErr.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// Deactivate godoc
// @Summary Deactivate a short link
// @Description The entry is kept; resolving it answers 404 until reactivated
// @Tags admin
// @Produce json
// @Param shortCode path string true "Short code"
// @Security ApiKeyAuth
// @Success 200 {object} StateResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{shortCode}/deactivate [post]
func (h *LinkHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Activate godoc
// @Summary Reactivate a short link
// @Tags admin
// @Produce json
// @Param shortCode path string true "Short code"
// @Security ApiKeyAuth
// @Success 200 {object} StateResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{shortCode}/activate [post]
func (h *LinkHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *LinkHandler) setActive(c *gin.Context, active bool) {
	code := c.Param("shortCode")

	var err error
	if active {
		err = h.service.Activate(c.Request.Context(), code)
	} else {
		err = h.service.Deactivate(c.Request.Context(), code)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Аудит: кто переключил ссылку
	actor, ok := middleware.APIKeyName(c)
	if !ok {
		actor = "anonymous"
	}
	h.logger.Info("Link state changed via API",
		zap.String("short_code", code),
		zap.Bool("active", active),
		zap.String("actor", actor),
		zap.String("client_ip", c.ClientIP()),
	)

	c.JSON(http.StatusOK, StateResponse{ShortCode: code, IsActive: active})
}

// Info godoc
// @Summary Service capabilities
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/info [get]
func (h *LinkHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        serviceName,
		"version":     serviceVersion,
		"description": "Short-link registry with click analytics",
		"features": []string{
			"custom-alias",
			"expiration",
			"password-protection",
			"click-analytics",
			"qr-codes",
			"bulk-creation",
		},
		"limits": gin.H{
			"bulkMaxItems": service.MaxBulkItems,
			"aliasPattern": "^[A-Za-z0-9_-]{3,20}$",
			"qrMinSize":    qr.MinSize,
			"qrMaxSize":    qr.MaxSize,
		},
		"endpoints": []string{
			"POST /api/v1/shorten",
			"GET /api/v1/redirect/:shortCode",
			"GET /api/v1/analytics/:shortCode",
			"GET /api/v1/qr/:shortCode",
			"POST /api/v1/bulk",
			"GET /s/:shortCode",
		},
	})
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/health [get]
func (h *LinkHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"service":   serviceName,
		"storage":   h.cfg.StorageDriver,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	}
	if h.processor != nil {
		body["clickProcessor"] = h.processor.Stats()
	}

	status := http.StatusOK
	if len(h.cfg.Dependencies) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		deps := make(map[string]string, len(h.cfg.Dependencies))
		for name, dep := range h.cfg.Dependencies {
			if err := dep.Ping(ctx); err != nil {
				h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}
		body["dependencies"] = deps
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}

	c.JSON(status, body)
}

func (h *LinkHandler) resolveInput(c *gin.Context) *models.ResolveInput {
	return &models.ResolveInput{
		ShortCode: c.Param("shortCode"),
		Password:  c.Query("password"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}
}

func (h *LinkHandler) shortURL(code string) string {
	return h.cfg.BaseURL + "/s/" + code
}

func (h *LinkHandler) linkResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ID:             link.ID,
		OriginalURL:    link.OriginalURL,
		ShortURL:       h.shortURL(link.ShortCode),
		ShortCode:      link.ShortCode,
		CreatedAt:      link.CreatedAt,
		ExpirationDate: link.ExpirationDate,
		HasPassword:    link.HasPassword(),
		Description:    link.Description,
		QRCode:         h.cfg.BaseURL + "/api/v1/qr/" + link.ShortCode,
		Clicks:         link.Clicks,
		IsActive:       link.IsActive,
	}
}

func (h *LinkHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// statusFor переводит ошибки сервиса в HTTP статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrSuspiciousURL),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrAliasTaken),
		errors.Is(err, service.ErrInvalidExpiration),
		errors.Is(err, service.ErrPasswordTooLong),
		errors.Is(err, service.ErrTooManyItems),
		errors.Is(err, service.ErrEmptyBatch),
		errors.Is(err, errInvalidExpirationFormat),
		errors.Is(err, qr.ErrInvalidSize),
		errors.Is(err, qr.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrPasswordRequired),
		errors.Is(err, service.ErrPasswordIncorrect):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (r ShortenRequest) toInput() (*models.CreateLinkInput, error) {
	input := &models.CreateLinkInput{
		OriginalURL: r.OriginalURL,
		CustomAlias: r.CustomAlias,
		Password:    r.Password,
		Description: r.Description,
	}

	if raw := strings.TrimSpace(r.ExpirationDate); raw != "" {
		expires, err := parseExpiration(raw)
		if err != nil {
			return nil, err
		}
		input.ExpirationDate = &expires
	}

	return input, nil
}

// parseExpiration принимает RFC 3339 или дату без времени (00:00 UTC)
func parseExpiration(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnlyLayout, raw); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidExpirationFormat
}
