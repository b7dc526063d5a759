package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrDuplicateTimer повторная регистрация активности с тем же именем
	ErrDuplicateTimer = errors.New("timer already registered")

	// ErrUnknownTimer активность с таким именем не зарегистрирована
	ErrUnknownTimer = errors.New("timer not registered")

	// ErrSchedulerRunning регистрация после запуска
	ErrSchedulerRunning = errors.New("scheduler already running")

	// ErrInvalidInterval интервал активности должен быть положительным
	ErrInvalidInterval = errors.New("timer interval must be positive")
)

// TickSystem периодическая активность со своим фиксированным интервалом
type TickSystem interface {
	Update(deltaTime time.Duration) error
	GetName() string
	GetInterval() time.Duration
}

// timer состояние одной активности
type timer struct {
	system   TickSystem
	interval time.Duration

	// Две активации одной активности никогда не пересекаются
	mu           sync.Mutex
	lastTickTime time.Time
	tickCount    atomic.Uint64
	skippedTicks atomic.Uint64
	panics       atomic.Uint64
}

// Scheduler запускает каждую активность в своей горутине со своим интервалом
type Scheduler struct {
	mu      sync.RWMutex
	timers  map[string]*timer
	order   []string
	running bool

	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	perfMonitor *PerformanceMonitor
	logger      *log.Logger
}

// NewScheduler создает планировщик
func NewScheduler(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}

	return &Scheduler{
		timers:      make(map[string]*timer),
		perfMonitor: NewPerformanceMonitor(50),
		logger:      logger,
	}
}

// Register добавляет активность. Дубликат имени - ошибка запуска.
func (s *Scheduler) Register(system TickSystem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := system.GetName()
	if s.running {
		return fmt.Errorf("register %s: %w", name, ErrSchedulerRunning)
	}
	if _, exists := s.timers[name]; exists {
		return fmt.Errorf("register %s: %w", name, ErrDuplicateTimer)
	}
	interval := system.GetInterval()
	if interval <= 0 {
		return fmt.Errorf("register %s (%v): %w", name, interval, ErrInvalidInterval)
	}

	s.timers[name] = &timer{system: system, interval: interval}
	s.order = append(s.order, name)

	// Предупреждение при 50% интервала, критично при 100%
	s.perfMonitor.initSystemMetrics(name, interval/2)

	s.logger.Printf("[Scheduler] Зарегистрирована активность: %s (интервал: %v)", name, interval)
	return nil
}

// Start запускает все зарегистрированные активности
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil // Уже запущен
	}

	s.running = true
	s.startTime = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Printf("[Scheduler] Запуск: активностей %d", len(s.timers))

	for _, name := range s.order {
		t := s.timers[name]
		t.mu.Lock()
		t.lastTickTime = s.startTime
		t.mu.Unlock()

		s.wg.Add(1)
		go s.runTimer(s.ctx, t)
	}

	return nil
}

// Stop запрещает новые активации и ждет завершения текущих.
// Уже начавшаяся активация не прерывается.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Printf("[Scheduler] Остановлен (работал %v)", time.Since(s.startTime).Round(time.Millisecond))
}

// IsRunning сообщает, запущен ли планировщик
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// runTimer цикл одной активности
func (s *Scheduler) runTimer(ctx context.Context, t *timer) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tickTime := <-ticker.C:
			// Отмена имеет приоритет над уже готовым тиком
			if ctx.Err() != nil {
				return
			}
			s.executeTick(t, tickTime)
		}
	}
}

// Fire выполняет одну активацию синхронно, вне расписания
func (s *Scheduler) Fire(name string) error {
	s.mu.RLock()
	t, exists := s.timers[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("fire %s: %w", name, ErrUnknownTimer)
	}
	return s.executeTick(t, time.Now())
}

// executeTick одна активация с замером времени и перехватом паники
func (s *Scheduler) executeTick(t *timer, tickTime time.Time) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := t.system.GetName()
	deltaTime := tickTime.Sub(t.lastTickTime)
	if !t.lastTickTime.IsZero() && deltaTime > t.interval*2 {
		t.skippedTicks.Add(1)
		s.logger.Printf("[Scheduler] ПРЕДУПРЕЖДЕНИЕ: %s: большая задержка между тиками: %v (ожидалось: %v)",
			name, deltaTime, t.interval)
	}
	t.lastTickTime = tickTime
	tick := t.tickCount.Add(1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.panics.Add(1)
			s.perfMonitor.recordError(name)
			s.logger.Printf("[Scheduler] КРИТИЧЕСКАЯ ОШИБКА в %s (тик %d): %v", name, tick, r)
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()

	err = t.system.Update(deltaTime)

	executionTime := time.Since(start)
	s.perfMonitor.recordExecution(name, executionTime)

	if err != nil {
		s.perfMonitor.recordError(name)
		s.logger.Printf("[Scheduler] Ошибка в %s: %v", name, err)
	}

	s.checkPerformance(name, executionTime, t.interval)
	return err
}

func (s *Scheduler) checkPerformance(name string, executionTime, interval time.Duration) {
	if executionTime > interval {
		s.logger.Printf("[Scheduler] КРИТИЧЕСКОЕ ПРЕДУПРЕЖДЕНИЕ: %s превысил интервал! %v > %v",
			name, executionTime, interval)
	} else if executionTime > interval/2 {
		s.logger.Printf("[Scheduler] ПРЕДУПРЕЖДЕНИЕ: Медленный тик %s: %v (интервал: %v)",
			name, executionTime, interval)
	}
}

// TickCount количество активаций активности
func (s *Scheduler) TickCount(name string) uint64 {
	s.mu.RLock()
	t, exists := s.timers[name]
	s.mu.RUnlock()

	if !exists {
		return 0
	}
	return t.tickCount.Load()
}

// PerformanceMonitor метрики активностей
func (s *Scheduler) PerformanceMonitor() *PerformanceMonitor {
	return s.perfMonitor
}

// Names имена активностей в порядке регистрации
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}

// GetStats возвращает статистику планировщика
func (s *Scheduler) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timers := make(map[string]interface{}, len(s.timers))
	for name, t := range s.timers {
		timers[name] = map[string]interface{}{
			"interval":      t.interval,
			"tick_count":    t.tickCount.Load(),
			"skipped_ticks": t.skippedTicks.Load(),
			"panics":        t.panics.Load(),
		}
	}

	uptime := time.Duration(0)
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	return map[string]interface{}{
		"is_running":     s.running,
		"uptime_seconds": uptime.Seconds(),
		"timers":         timers,
		"systems":        s.perfMonitor.GetSystemsStats(),
	}
}
