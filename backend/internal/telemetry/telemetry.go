package telemetry

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/core/domain/entity"
)

// Vector2 вектор в JSON-представлении
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func fromVec(v mgl64.Vec2) Vector2 {
	return Vector2{X: v.X(), Y: v.Y()}
}

// TelemetryData структура для сбора телеметрии объекта
type TelemetryData struct {
	Timestamp      int64    `json:"timestamp"`                 // Время в миллисекундах
	EntityID       uint32   `json:"entity_id"`                 // ID сущности
	ObjectType     string   `json:"object_type"`               // Тип сущности (player, circle, food)
	Position       Vector2  `json:"position"`                  // Позиция
	Velocity       Vector2  `json:"velocity"`                  // Скорость
	Mass           float64  `json:"mass"`                      // Масса
	Radius         float64  `json:"radius"`                    // Радиус
	Speed          float64  `json:"speed"`                     // Модуль скорости
	AppliedImpulse *Vector2 `json:"applied_impulse,omitempty"` // Примененный импульс (если есть)
}

// TelemetryManager управляет сбором и выводом телеметрии
type TelemetryManager struct {
	enabled    bool
	data       []TelemetryData
	mutex      sync.RWMutex
	maxEntries int

	// Счетчики для статистики
	counters      map[string]int
	lastPrint     time.Time
	printInterval time.Duration

	// Последнее состояние каждой сущности
	latest map[entity.EntityID]TelemetryData

	logger *log.Logger
	now    func() time.Time
}

// NewTelemetryManager создает новый менеджер телеметрии
func NewTelemetryManager(maxEntries int, printInterval time.Duration, logger *log.Logger) *TelemetryManager {
	if logger == nil {
		logger = log.Default()
	}
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &TelemetryManager{
		enabled:       true,
		data:          make([]TelemetryData, 0, maxEntries),
		maxEntries:    maxEntries,
		counters:      make(map[string]int),
		printInterval: printInterval,
		latest:        make(map[entity.EntityID]TelemetryData),
		logger:        logger,
		now:           time.Now,
	}
}

// RecordState записывает состояние тела после шага физики
func (tm *TelemetryManager) RecordState(id entity.EntityID, kind entity.Kind, position, velocity mgl64.Vec2, mass float64) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}

	entry := TelemetryData{
		Timestamp:  tm.now().UnixMilli(),
		EntityID:   uint32(id),
		ObjectType: kind.String(),
		Position:   fromVec(position),
		Velocity:   fromVec(velocity),
		Mass:       mass,
		Radius:     entity.MassToRadius(mass),
		Speed:      velocity.Len(),
	}

	tm.append(entry)
	tm.latest[id] = entry
	tm.counters["state_"+entry.ObjectType]++
}

// RecordImpulse записывает примененный импульс
func (tm *TelemetryManager) RecordImpulse(id entity.EntityID, kind entity.Kind, impulse mgl64.Vec2) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}

	applied := fromVec(impulse)
	entry := TelemetryData{
		Timestamp:      tm.now().UnixMilli(),
		EntityID:       uint32(id),
		ObjectType:     kind.String(),
		AppliedImpulse: &applied,
	}

	// Импульс дополняет последнее известное состояние
	if last, ok := tm.latest[id]; ok {
		entry.Position = last.Position
		entry.Velocity = last.Velocity
		entry.Mass = last.Mass
		entry.Radius = last.Radius
		entry.Speed = last.Speed
	}

	tm.append(entry)
	tm.counters["impulse_"+entry.ObjectType]++
}

func (tm *TelemetryManager) append(entry TelemetryData) {
	tm.data = append(tm.data, entry)

	// Ограничиваем размер буфера
	if len(tm.data) > tm.maxEntries {
		tm.data = tm.data[len(tm.data)-tm.maxEntries:]
	}
}

// Forget удаляет последнее состояние сущности (после удаления из мира)
func (tm *TelemetryManager) Forget(id entity.EntityID, _ entity.Kind) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	delete(tm.latest, id)
}

// PrintSummary выводит сводку телеметрии не чаще printInterval
func (tm *TelemetryManager) PrintSummary() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.enabled {
		return
	}

	now := tm.now()
	if now.Sub(tm.lastPrint) < tm.printInterval {
		return
	}

	tm.logger.Println("🔬 [Telemetry] ===== СЕРВЕРНАЯ ТЕЛЕМЕТРИЯ =====")
	tm.logger.Printf("📊 [Telemetry] Всего записей: %d", len(tm.data))

	keys := make([]string, 0, len(tm.counters))
	for key := range tm.counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		tm.logger.Printf("📈 [Telemetry] %s: %d", key, tm.counters[key])
	}

	tm.printRecentPlayerData()

	// Сброс счетчиков
	tm.counters = make(map[string]int)
	tm.lastPrint = now

	tm.logger.Println("🔬 [Telemetry] ===================================")
}

// printRecentPlayerData выводит последние состояния тел игроков
func (tm *TelemetryManager) printRecentPlayerData() {
	ids := make([]entity.EntityID, 0, len(tm.latest))
	for id, data := range tm.latest {
		if data.ObjectType == entity.KindPlayer.String() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		data := tm.latest[id]
		timestamp := time.UnixMilli(data.Timestamp)

		tm.logger.Printf("🎮 [Telemetry] Сущность %d [%s]:", id, timestamp.Format("15:04:05.000"))
		tm.logger.Printf("   📍 Позиция: (%.2f, %.2f)", data.Position.X, data.Position.Y)
		tm.logger.Printf("   🏃 Скорость: (%.2f, %.2f) |%.2f|", data.Velocity.X, data.Velocity.Y, data.Speed)
		tm.logger.Printf("   ⚖️  Масса: %.2f, Радиус: %.2f", data.Mass, data.Radius)
	}
}

// GetTelemetryJSON возвращает телеметрию в JSON формате
func (tm *TelemetryManager) GetTelemetryJSON() ([]byte, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	return json.MarshalIndent(tm.data, "", "  ")
}

// Len количество записей в буфере
func (tm *TelemetryManager) Len() int {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return len(tm.data)
}

// SetEnabled включает/выключает телеметрию
func (tm *TelemetryManager) SetEnabled(enabled bool) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	tm.enabled = enabled
	tm.logger.Printf("🔬 [Telemetry] Телеметрия %s", map[bool]string{true: "включена", false: "выключена"}[enabled])
}

// Clear очищает все данные телеметрии
func (tm *TelemetryManager) Clear() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	tm.data = tm.data[:0]
	tm.counters = make(map[string]int)
	tm.latest = make(map[entity.EntityID]TelemetryData)
	tm.logger.Println("🔬 [Telemetry] Данные телеметрии очищены")
}
