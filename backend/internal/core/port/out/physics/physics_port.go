package physics

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/core/domain/entity"
)

// ErrBodyExists нарушение биекции entity <-> body
var ErrBodyExists = errors.New("physics body already exists for entity")

// BodyKind тип физического тела
type BodyKind uint8

const (
	BodyDynamic   BodyKind = iota // Подвержено силам и гравитации (игроки)
	BodyStatic                    // Неподвижно (земля, стены)
	BodyKinematic                 // Двигается заданием скорости
)

// String возвращает имя типа тела
func (k BodyKind) String() string {
	switch k {
	case BodyDynamic:
		return "dynamic"
	case BodyStatic:
		return "static"
	case BodyKinematic:
		return "kinematic"
	default:
		return "unknown"
	}
}

// BodyState состояние тела для синхронизации с хранилищем
type BodyState struct {
	Position mgl64.Vec2
	Velocity mgl64.Vec2
	OnGround bool
}

// World операции над физическим миром. Доступен только внутри Bridge.Acquire.
// Операции с неизвестным id ничего не делают.
type World interface {
	// CreateBody создает тело для сущности. ErrBodyExists при повторе.
	CreateBody(id entity.EntityID, position mgl64.Vec2, mass float64, kind BodyKind, shape entity.Kind) error

	// RemoveBody удаляет тело сущности
	RemoveBody(id entity.EntityID) bool

	// ApplyMovementForce горизонтальный импульс axis * moveSpeed * mass
	ApplyMovementForce(id entity.EntityID, axis, moveSpeed float64)

	// ApplyJumpImpulse вертикальный импульс, только если тело на земле
	ApplyJumpImpulse(id entity.EntityID, jumpForce float64) bool

	// Step продвигает симуляцию ровно на один фиксированный шаг
	Step()

	// QueryState возвращает позицию и скорость тела
	QueryState(id entity.EntityID) (BodyState, bool)

	// SetState принудительно задает позицию и скорость тела
	SetState(id entity.EntityID, position, velocity mgl64.Vec2) bool

	// Resize меняет массу тела и размер коллайдера под радиус sqrt(mass).
	// Нижняя точка тела остается на месте.
	Resize(id entity.EntityID, mass float64) bool

	// IsGrounded упрощенное определение земли по вертикальной скорости
	IsGrounded(id entity.EntityID) bool

	// Has сообщает, есть ли тело у сущности
	Has(id entity.EntityID) bool

	// BodyCount количество отслеживаемых тел
	BodyCount() int
}

// Bridge владеет физическим миром и выдает к нему исключительный доступ.
// Блокировка снимается на любом пути выхода из fn, включая панику.
type Bridge interface {
	Acquire(fn func(w World) error) error
}
