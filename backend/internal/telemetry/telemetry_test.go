package telemetry

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/core/domain/entity"
)

func newTestManager(buf *bytes.Buffer, maxEntries int) (*TelemetryManager, *time.Time) {
	tm := NewTelemetryManager(maxEntries, 2*time.Second, log.New(buf, "", 0))
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return clock }
	return tm, &clock
}

func TestTelemetryManager_RecordAndBound(t *testing.T) {
	var buf bytes.Buffer
	tm, _ := newTestManager(&buf, 3)

	for i := 1; i <= 5; i++ {
		tm.RecordState(entity.EntityID(i), entity.KindPlayer, mgl64.Vec2{float64(i), 0}, mgl64.Vec2{3, 4}, 16)
	}

	if tm.Len() != 3 {
		t.Fatalf("записей %d, ожидалось 3", tm.Len())
	}

	raw, err := tm.GetTelemetryJSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var entries []TelemetryData
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Остаются последние записи
	if entries[0].EntityID != 3 || entries[2].EntityID != 5 {
		t.Errorf("буфер = %+v", entries)
	}
	if entries[0].Speed != 5 || entries[0].Radius != 4 {
		t.Errorf("speed=%v radius=%v, ожидалось 5 и 4", entries[0].Speed, entries[0].Radius)
	}
}

func TestTelemetryManager_ImpulseUsesLastState(t *testing.T) {
	var buf bytes.Buffer
	tm, _ := newTestManager(&buf, 10)

	tm.RecordState(7, entity.KindPlayer, mgl64.Vec2{10, 20}, mgl64.Vec2{1, 0}, 15)
	tm.RecordImpulse(7, entity.KindPlayer, mgl64.Vec2{75, 0})

	raw, _ := tm.GetTelemetryJSON()
	var entries []TelemetryData
	_ = json.Unmarshal(raw, &entries)

	last := entries[len(entries)-1]
	if last.AppliedImpulse == nil || last.AppliedImpulse.X != 75 {
		t.Fatalf("импульс не записан: %+v", last)
	}
	if last.Position.X != 10 || last.Mass != 15 {
		t.Errorf("импульс без последнего состояния: %+v", last)
	}
}

func TestTelemetryManager_PrintSummaryThrottled(t *testing.T) {
	var buf bytes.Buffer
	tm, clock := newTestManager(&buf, 10)

	tm.RecordState(1, entity.KindPlayer, mgl64.Vec2{1, 2}, mgl64.Vec2{}, 15)
	tm.RecordState(2, entity.KindCircle, mgl64.Vec2{1, 2}, mgl64.Vec2{}, 15)

	tm.PrintSummary()
	out := buf.String()
	if !strings.Contains(out, "state_player: 1") || !strings.Contains(out, "Сущность 1") {
		t.Fatalf("нет сводки: %q", out)
	}
	if strings.Contains(out, "Сущность 2") {
		t.Error("в сводку по игрокам попала клетка")
	}

	// Повторный вывод раньше интервала подавляется
	buf.Reset()
	tm.PrintSummary()
	if buf.Len() != 0 {
		t.Errorf("сводка выведена раньше интервала: %q", buf.String())
	}

	*clock = clock.Add(3 * time.Second)
	tm.PrintSummary()
	if buf.Len() == 0 {
		t.Error("сводка не выведена после интервала")
	}
}

func TestTelemetryManager_DisabledAndForget(t *testing.T) {
	var buf bytes.Buffer
	tm, _ := newTestManager(&buf, 10)

	tm.RecordState(1, entity.KindPlayer, mgl64.Vec2{}, mgl64.Vec2{}, 15)
	tm.Forget(1, entity.KindPlayer)
	tm.RecordImpulse(1, entity.KindPlayer, mgl64.Vec2{0, 10})

	raw, _ := tm.GetTelemetryJSON()
	var entries []TelemetryData
	_ = json.Unmarshal(raw, &entries)
	if entries[1].Mass != 0 {
		t.Errorf("состояние забытой сущности использовано: %+v", entries[1])
	}

	tm.SetEnabled(false)
	tm.RecordState(2, entity.KindPlayer, mgl64.Vec2{}, mgl64.Vec2{}, 15)
	if tm.Len() != 2 {
		t.Errorf("запись при выключенной телеметрии: %d", tm.Len())
	}

	tm.Clear()
	if tm.Len() != 0 {
		t.Error("Clear не очистил буфер")
	}
}
