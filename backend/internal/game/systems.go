package game

import (
	"log"
	"time"

	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/service"
	"x-arena/backend/internal/core/port/in/arena"
)

// Имена активностей
const (
	FoodSpawnSystemName = "food_spawn"
	BroadcastSystemName = "snapshot_broadcast"
	MetricsSystemName   = "arena_metrics"
	TelemetrySystemName = "telemetry"
)

// MovementSystemName имя активности движения зависит от режима
func MovementSystemName(mode config.Mode) string {
	if mode == config.ModePlatformer {
		return "physics"
	}
	return "movement"
}

// FoodSpawnSystem поддерживает плотность еды
type FoodSpawnSystem struct {
	arena    arena.ArenaPort
	interval time.Duration
	logger   *log.Logger

	ticks uint64
}

// NewFoodSpawnSystem создает систему спавна еды
func NewFoodSpawnSystem(port arena.ArenaPort, interval time.Duration, logger *log.Logger) *FoodSpawnSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &FoodSpawnSystem{arena: port, interval: interval, logger: logger}
}

// Update выполняет один тик спавна
func (fs *FoodSpawnSystem) Update(deltaTime time.Duration) error {
	fs.ticks++

	spawned, err := fs.arena.OnFoodSpawnTick()
	if err != nil {
		return err
	}

	// Логируем раз в ~10 секунд при интервале 500мс
	if spawned > 0 && fs.ticks%20 == 0 {
		fs.logger.Printf("[FoodSpawnSystem] Добавлено еды: %d", spawned)
	}
	return nil
}

// GetName возвращает имя системы
func (fs *FoodSpawnSystem) GetName() string { return FoodSpawnSystemName }

// GetInterval возвращает интервал системы
func (fs *FoodSpawnSystem) GetInterval() time.Duration { return fs.interval }

// ReportSink получает события поглощения после тика движения
type ReportSink interface {
	PublishAbsorptions(tick uint64, absorptions []service.Absorption) error
}

// MovementSystem тик движения (circle) или физики (platformer)
type MovementSystem struct {
	name     string
	arena    arena.ArenaPort
	interval time.Duration
	sink     ReportSink
	logger   *log.Logger
}

// NewMovementSystem создает систему движения для режима
func NewMovementSystem(port arena.ArenaPort, mode config.Mode, interval time.Duration, logger *log.Logger) *MovementSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &MovementSystem{
		name:     MovementSystemName(mode),
		arena:    port,
		interval: interval,
		logger:   logger,
	}
}

// SetReportSink устанавливает получателя событий поглощения
func (ms *MovementSystem) SetReportSink(sink ReportSink) {
	ms.sink = sink
}

// Update выполняет один тик движения
func (ms *MovementSystem) Update(deltaTime time.Duration) error {
	report, err := ms.arena.OnMovementTick()
	if err != nil {
		return err
	}
	if len(report.Absorptions) == 0 || ms.sink == nil {
		return nil
	}

	if err := ms.sink.PublishAbsorptions(report.Tick, report.Absorptions); err != nil {
		// Ошибка доставки не отменяет уже примененный тик
		ms.logger.Printf("[MovementSystem] Ошибка отправки событий поглощения: %v", err)
	}
	return nil
}

// GetName возвращает имя системы
func (ms *MovementSystem) GetName() string { return ms.name }

// GetInterval возвращает интервал системы
func (ms *MovementSystem) GetInterval() time.Duration { return ms.interval }

// SnapshotBroadcaster интерфейс для отправки снимков клиентам
type SnapshotBroadcaster interface {
	BroadcastSnapshot(snapshot service.WorldSnapshot) error
	ClientCount() int
}

// SnapshotBroadcastSystem рассылает снимок мира подключенным клиентам
type SnapshotBroadcastSystem struct {
	arena       arena.ArenaPort
	broadcaster SnapshotBroadcaster
	interval    time.Duration
	logger      *log.Logger

	sent uint64
}

// NewSnapshotBroadcastSystem создает систему рассылки снимков
func NewSnapshotBroadcastSystem(port arena.ArenaPort, broadcaster SnapshotBroadcaster, interval time.Duration, logger *log.Logger) *SnapshotBroadcastSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &SnapshotBroadcastSystem{
		arena:       port,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger,
	}
}

// Update отправляет снимок, если есть кому
func (sb *SnapshotBroadcastSystem) Update(deltaTime time.Duration) error {
	if sb.broadcaster.ClientCount() == 0 {
		return nil
	}

	snapshot := sb.arena.Snapshot()
	if err := sb.broadcaster.BroadcastSnapshot(snapshot); err != nil {
		return err
	}

	sb.sent++
	if sb.sent%300 == 0 {
		sb.logger.Printf("[SnapshotBroadcast] Отправлено снимков: %d (тик %d, сущностей %d)",
			sb.sent, snapshot.Tick, len(snapshot.Entities))
	}
	return nil
}

// GetName возвращает имя системы
func (sb *SnapshotBroadcastSystem) GetName() string { return BroadcastSystemName }

// GetInterval возвращает интервал системы
func (sb *SnapshotBroadcastSystem) GetInterval() time.Duration { return sb.interval }

// StatsProvider источник статистики
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// ArenaMetricsSystem периодически логирует состояние арены и планировщика
type ArenaMetricsSystem struct {
	arena     StatsProvider
	scheduler StatsProvider
	interval  time.Duration
	logger    *log.Logger
}

// NewArenaMetricsSystem создает систему сбора метрик
func NewArenaMetricsSystem(arenaStats, schedulerStats StatsProvider, interval time.Duration, logger *log.Logger) *ArenaMetricsSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &ArenaMetricsSystem{
		arena:     arenaStats,
		scheduler: schedulerStats,
		interval:  interval,
		logger:    logger,
	}
}

// Update собирает и логирует метрики
func (am *ArenaMetricsSystem) Update(deltaTime time.Duration) error {
	stats := am.arena.GetStats()

	am.logger.Printf("[ArenaMetrics] Режим: %v, Тиков: %v, Игроков: %v, Сущностей: %v, Еды: %v/%v, Поглощений: %v",
		stats["mode"], stats["tick_count"], stats["players"], stats["entities"],
		stats["food"], stats["target_food"], stats["absorptions"])

	if am.scheduler == nil {
		return nil
	}

	schedulerStats := am.scheduler.GetStats()
	systems, _ := schedulerStats["systems"].(map[string]interface{})
	for name, raw := range systems {
		metrics, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if slow, _ := metrics["slow_ticks"].(uint64); slow > 0 {
			am.logger.Printf("[ArenaMetrics] ПРЕДУПРЕЖДЕНИЕ: %s: медленных тиков %d, среднее время %v",
				name, slow, metrics["average_time"])
		}
	}

	return nil
}

// GetName возвращает имя системы
func (am *ArenaMetricsSystem) GetName() string { return MetricsSystemName }

// GetInterval возвращает интервал системы
func (am *ArenaMetricsSystem) GetInterval() time.Duration { return am.interval }

// SummaryPrinter источник периодической сводки
type SummaryPrinter interface {
	PrintSummary()
}

// TelemetrySystem выводит сводку телеметрии физики
type TelemetrySystem struct {
	printer  SummaryPrinter
	interval time.Duration
}

// NewTelemetrySystem создает систему вывода телеметрии
func NewTelemetrySystem(printer SummaryPrinter, interval time.Duration) *TelemetrySystem {
	return &TelemetrySystem{printer: printer, interval: interval}
}

// Update выводит сводку
func (ts *TelemetrySystem) Update(deltaTime time.Duration) error {
	ts.printer.PrintSummary()
	return nil
}

// GetName возвращает имя системы
func (ts *TelemetrySystem) GetName() string { return TelemetrySystemName }

// GetInterval возвращает интервал системы
func (ts *TelemetrySystem) GetInterval() time.Duration { return ts.interval }
