package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SergeiKhy/link-registry/internal/geo"
	"github.com/SergeiKhy/link-registry/internal/metrics"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
	processTimeout       = 5 * time.Second
)

// ClickProcessor асинхронно дополняет записанные клики страной посетителя
type ClickProcessor interface {
	ClickRecorder
	Start()
	Stop()
	Stats() ChannelStats
}

// ProcessorConfig параметры пула; нулевые значения заменяются значениями по умолчанию
type ProcessorConfig struct {
	Workers    int
	BufferSize int
}

// clickProcessor реализация процессора кликов с использованием Worker Pool
type clickProcessor struct {
	store        repository.LinkStore
	locator      geo.Locator
	logger       *zap.Logger
	metrics      *metrics.Metrics
	clickChannel chan *models.ClickEvent // Канал для событий кликов
	workerCount  int                     // Количество воркеров
	wg           sync.WaitGroup          // WaitGroup для ожидания завершения воркеров

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewClickProcessor создаёт новый экземпляр процессора кликов
func NewClickProcessor(
	store repository.LinkStore,
	locator geo.Locator,
	logger *zap.Logger,
	m *metrics.Metrics,
	cfg ProcessorConfig,
) ClickProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultChannelBuffer
	}
	if locator == nil {
		locator = geo.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &clickProcessor{
		store:        store,
		locator:      locator,
		logger:       logger,
		metrics:      m,
		clickChannel: make(chan *models.ClickEvent, cfg.BufferSize),
		workerCount:  cfg.Workers,
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true

	p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop останавливает worker pool; события, оставшиеся в буфере, отбрасываются
func (p *clickProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.logger.Info("Остановка процессора кликов...")
	p.wg.Wait()
	p.logger.Info("Процессор кликов остановлен")
}

// worker обрабатывает события кликов из канала
func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
			return

		case event := <-p.clickChannel:
			p.processClick(event)
		}
	}
}

// processClick определяет страну и сохраняет её с повторными попытками
func (p *clickProcessor) processClick(event *models.ClickEvent) {
	country := p.locator.Country(event.IPAddress)

	ctx, cancel := context.WithTimeout(p.ctx, processTimeout)
	defer cancel()

	var err error
	for i := 0; i < maxRetries; i++ {
		err = p.store.SetClickCountry(ctx, event.ShortCode, event.ClickID, country)
		if err == nil {
			p.metrics.ClickEventsEnriched.Inc()
			return
		}
		if errors.Is(err, repository.ErrLinkNotFound) || ctx.Err() != nil {
			break
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи страны клика",
				zap.String("short_code", event.ShortCode),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("Не удалось записать страну клика",
		zap.String("short_code", event.ShortCode),
		zap.Int64("click_id", event.ClickID),
		zap.Error(err),
	)
}

// RecordClick отправляет событие клика в worker pool (неблокирующая операция)
func (p *clickProcessor) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.clickChannel <- event:
		return nil
	default:
		// Канал заполнен: переход не ждёт, страна клика останется пустой
		p.metrics.ClickEventsDropped.Inc()
		p.logger.Warn("Буфер канала кликов заполнен, событие потеряно",
			zap.String("short_code", event.ShortCode),
		)
		return nil
	}
}

// Stats возвращает состояние канала для мониторинга
func (p *clickProcessor) Stats() ChannelStats {
	return ChannelStats{
		BufferSize:  cap(p.clickChannel),
		BufferUsed:  len(p.clickChannel),
		WorkerCount: p.workerCount,
	}
}

// ChannelStats статистика канала worker pool
type ChannelStats struct {
	BufferSize  int `json:"bufferSize"`  // Общая ёмкость канала
	BufferUsed  int `json:"bufferUsed"`  // Текущее использование
	WorkerCount int `json:"workerCount"` // Количество воркеров
}
