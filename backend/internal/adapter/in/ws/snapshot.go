package ws

import (
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"x-arena/backend/internal/core/domain/service"
)

// EntityFrame сущность в бинарном снимке
type EntityFrame struct {
	ID     uint32  `msgpack:"id"`
	Kind   string  `msgpack:"kind"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	VX     float64 `msgpack:"vx,omitempty"`
	VY     float64 `msgpack:"vy,omitempty"`
	Mass   float64 `msgpack:"mass"`
	Radius float64 `msgpack:"radius"`
	Owner  uint32  `msgpack:"owner,omitempty"`
}

// PlayerFrame игрок в бинарном снимке
type PlayerFrame struct {
	ID   uint32 `msgpack:"id"`
	Name string `msgpack:"name"`
}

// SnapshotFrame бинарный снимок мира для клиентов
type SnapshotFrame struct {
	Tick       uint64        `msgpack:"tick"`
	Mode       string        `msgpack:"mode"`
	WorldSize  float64       `msgpack:"world_size"`
	ServerTime int64         `msgpack:"server_time"`
	Entities   []EntityFrame `msgpack:"entities"`
	Players    []PlayerFrame `msgpack:"players"`
}

// safeValue проверяет значения на NaN и Inf и заменяет их на defaultValue
func safeValue(value float64, defaultValue float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return defaultValue
	}
	return value
}

// NewSnapshotFrame переводит снимок мира в кадр для отправки
func NewSnapshotFrame(snapshot service.WorldSnapshot, serverTime int64) SnapshotFrame {
	frame := SnapshotFrame{
		Tick:       snapshot.Tick,
		Mode:       string(snapshot.Mode),
		WorldSize:  snapshot.WorldSize,
		ServerTime: serverTime,
		Entities:   make([]EntityFrame, 0, len(snapshot.Entities)),
		Players:    make([]PlayerFrame, 0, len(snapshot.Players)),
	}

	for _, e := range snapshot.Entities {
		frame.Entities = append(frame.Entities, EntityFrame{
			ID:     uint32(e.ID),
			Kind:   e.Kind.String(),
			X:      safeValue(e.Position.X(), 0),
			Y:      safeValue(e.Position.Y(), 0),
			VX:     safeValue(e.Velocity.X(), 0),
			VY:     safeValue(e.Velocity.Y(), 0),
			Mass:   e.Mass,
			Radius: e.Radius(),
			Owner:  uint32(snapshot.Owners[e.ID]),
		})
	}

	for _, p := range snapshot.Players {
		frame.Players = append(frame.Players, PlayerFrame{ID: uint32(p.ID), Name: p.Name})
	}

	return frame
}

// EncodeSnapshot кодирует снимок в msgpack
func EncodeSnapshot(snapshot service.WorldSnapshot, serverTime int64) ([]byte, error) {
	frame := NewSnapshotFrame(snapshot, serverTime)
	return msgpack.Marshal(&frame)
}

// DecodeSnapshot разбирает бинарный кадр снимка
func DecodeSnapshot(data []byte) (SnapshotFrame, error) {
	var frame SnapshotFrame
	err := msgpack.Unmarshal(data, &frame)
	return frame, err
}
