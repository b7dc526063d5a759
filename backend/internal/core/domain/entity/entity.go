package entity

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// EntityID уникальный идентификатор сущности, стабилен на все время жизни
type EntityID uint32

// PlayerID идентификатор игрока (не путать с сущностью игрока)
type PlayerID uint32

// Kind тип сущности
type Kind uint8

// Константы типов сущностей
const (
	KindPlayer Kind = iota + 1 // Игрок платформера (управляется физикой)
	KindFood                   // Еда
	KindCircle                 // Клетка игрока в режиме circle
)

// String возвращает имя типа
func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindFood:
		return "food"
	case KindCircle:
		return "circle"
	default:
		return "unknown"
	}
}

// Valid сообщает, известен ли тип
func (k Kind) Valid() bool {
	switch k {
	case KindPlayer, KindFood, KindCircle:
		return true
	default:
		return false
	}
}

// IsActor true для сущностей, принадлежащих игроку
func (k Kind) IsActor() bool {
	switch k {
	case KindPlayer, KindCircle:
		return true
	case KindFood:
		return false
	default:
		return false
	}
}

// Entity симулируемый объект мира
type Entity struct {
	ID       EntityID
	Kind     Kind
	Position mgl64.Vec2
	Velocity mgl64.Vec2 // Нулевая для сущностей без физики
	Mass     float64
}

// Radius вычисляется из массы и никогда не хранится
func (e Entity) Radius() float64 {
	return MassToRadius(e.Mass)
}

// MassToRadius переводит массу в радиус
func MassToRadius(mass float64) float64 {
	return math.Sqrt(mass)
}

// MovementController параметры движения игрока в режиме платформера
type MovementController struct {
	EntityID  EntityID
	PlayerID  PlayerID
	MoveSpeed float64
	JumpForce float64
	CanJump   bool // Зависит от определения земли
}

// Circle параметры движения клетки в режиме circle
type Circle struct {
	EntityID      EntityID
	PlayerID      PlayerID
	Direction     mgl64.Vec2
	Speed         float64
	LastSplitTime time.Time
}
