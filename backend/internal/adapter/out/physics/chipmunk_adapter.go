package physics

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"

	"x-arena/backend/internal/core/domain/entity"
	portPhysics "x-arena/backend/internal/core/port/out/physics"
)

// ChipmunkBridge адаптер физического порта поверх Chipmunk2D.
// Единственный владелец cp.Space и отображения entity <-> body.
type ChipmunkBridge struct {
	mu     sync.Mutex
	world  *chipmunkWorld
	logger *log.Logger
}

// body запись о теле на стороне моста
type body struct {
	entityID entity.EntityID
	kind     portPhysics.BodyKind
	shape    entity.Kind
	radius   float64
	handle   *cp.Body
	shapes   []*cp.Shape
	onGround bool
}

// chipmunkWorld реализация portPhysics.World; используется только под mu
type chipmunkWorld struct {
	cfg    PhysicsConfig
	space  *cp.Space
	logger *log.Logger

	entityToBody map[entity.EntityID]*body
	bodyToEntity map[*cp.Body]entity.EntityID
}

// NewChipmunkBridge создает физический мир с землей и стенами
func NewChipmunkBridge(cfg PhysicsConfig, logger *log.Logger) (*ChipmunkBridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid physics config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	space := cp.NewSpace()
	space.SetGravity(cp.Vector{X: 0, Y: cfg.Gravity})

	w := &chipmunkWorld{
		cfg:          cfg,
		space:        space,
		logger:       logger,
		entityToBody: make(map[entity.EntityID]*body),
		bodyToEntity: make(map[*cp.Body]entity.EntityID),
	}
	w.createStaticGround()
	if cfg.Walls {
		w.createWalls()
	}

	logger.Printf("[ChipmunkBridge] Физический мир создан: шаг %.4f с, гравитация %.2f, мир %.0f",
		cfg.Timestep, cfg.Gravity, cfg.WorldSize)

	return &ChipmunkBridge{world: w, logger: logger}, nil
}

// Acquire выдает исключительный доступ к физическому миру на время fn
func (b *ChipmunkBridge) Acquire(fn func(w portPhysics.World) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.world)
}

// createStaticGround создает платформу под миром, верх которой на y = 0
func (w *chipmunkWorld) createStaticGround() {
	size := w.cfg.WorldSize
	bb := cp.BB{L: 0, B: -w.cfg.GroundThickness, R: size, T: 0}

	ground := cp.NewBox2(w.space.StaticBody, bb, 0)
	ground.SetFriction(w.cfg.GroundFriction)
	ground.SetElasticity(w.cfg.Restitution)
	w.space.AddShape(ground)
}

// createWalls ограничивает мир слева, справа и сверху
func (w *chipmunkWorld) createWalls() {
	size := w.cfg.WorldSize
	segments := []struct {
		a cp.Vector
		b cp.Vector
	}{
		{a: cp.Vector{X: 0, Y: 0}, b: cp.Vector{X: 0, Y: size}},       // левая
		{a: cp.Vector{X: size, Y: 0}, b: cp.Vector{X: size, Y: size}}, // правая
		{a: cp.Vector{X: 0, Y: size}, b: cp.Vector{X: size, Y: size}}, // потолок
	}

	for _, seg := range segments {
		shape := cp.NewSegment(w.space.StaticBody, seg.a, seg.b, 1)
		shape.SetFriction(w.cfg.GroundFriction)
		w.space.AddShape(shape)
	}
}

// CreateBody создает тело: капсулу для игрока платформера, круг для остальных.
// Радиус коллайдера равен sqrt(mass), как и радиус сущности.
func (w *chipmunkWorld) CreateBody(id entity.EntityID, position mgl64.Vec2, mass float64, kind portPhysics.BodyKind, shape entity.Kind) error {
	if _, exists := w.entityToBody[id]; exists {
		return fmt.Errorf("create body %d: %w", id, portPhysics.ErrBodyExists)
	}
	if !(mass > 0) {
		return fmt.Errorf("create body %d: %w (got %v)", id, entity.ErrInvalidMass, mass)
	}

	radius := entity.MassToRadius(mass)

	var handle *cp.Body
	switch kind {
	case portPhysics.BodyDynamic:
		handle = cp.NewBody(mass, w.moment(mass, radius, shape))
	case portPhysics.BodyKinematic:
		handle = cp.NewKinematicBody()
	case portPhysics.BodyStatic:
		handle = cp.NewStaticBody()
	default:
		return fmt.Errorf("create body %d: unknown body kind %d", id, kind)
	}
	handle.SetPosition(cp.Vector{X: position.X(), Y: position.Y()})
	w.space.AddBody(handle)

	rec := &body{
		entityID: id,
		kind:     kind,
		shape:    shape,
		radius:   radius,
		handle:   handle,
		shapes:   []*cp.Shape{w.addCollider(handle, radius, shape)},
	}
	w.entityToBody[id] = rec
	w.bodyToEntity[handle] = id

	return nil
}

// moment момент инерции; персонаж платформера не вращается
func (w *chipmunkWorld) moment(mass, radius float64, shape entity.Kind) float64 {
	if shape == entity.KindPlayer {
		return math.Inf(1)
	}
	return cp.MomentForCircle(mass, 0, radius, cp.Vector{})
}

// addCollider создает коллайдер тела и добавляет его в пространство
func (w *chipmunkWorld) addCollider(handle *cp.Body, radius float64, shape entity.Kind) *cp.Shape {
	var collider *cp.Shape
	switch shape {
	case entity.KindPlayer:
		halfHeight := radius * w.cfg.CapsuleAspect
		collider = cp.NewSegment(handle, cp.Vector{X: 0, Y: -halfHeight}, cp.Vector{X: 0, Y: halfHeight}, radius)
	default:
		collider = cp.NewCircle(handle, radius, cp.Vector{})
	}
	collider.SetFriction(w.cfg.Friction)
	collider.SetElasticity(w.cfg.Restitution)
	return w.space.AddShape(collider)
}

// extent расстояние от центра тела до его нижней точки
func (w *chipmunkWorld) extent(radius float64, shape entity.Kind) float64 {
	if shape == entity.KindPlayer {
		return radius + radius*w.cfg.CapsuleAspect
	}
	return radius
}

// Resize пересоздает коллайдер под новую массу. Центр сдвигается так,
// чтобы нижняя точка тела осталась на месте.
func (w *chipmunkWorld) Resize(id entity.EntityID, mass float64) bool {
	rec, exists := w.entityToBody[id]
	if !exists || !(mass > 0) {
		return false
	}

	radius := entity.MassToRadius(mass)
	lift := w.extent(radius, rec.shape) - w.extent(rec.radius, rec.shape)
	rec.radius = radius

	for _, shape := range rec.shapes {
		w.space.RemoveShape(shape)
	}
	rec.shapes = []*cp.Shape{w.addCollider(rec.handle, radius, rec.shape)}

	if rec.kind == portPhysics.BodyDynamic {
		rec.handle.SetMass(mass)
		rec.handle.SetMoment(w.moment(mass, radius, rec.shape))
	}

	p := rec.handle.Position()
	rec.handle.SetPosition(cp.Vector{X: p.X, Y: p.Y + lift})
	return true
}

// RemoveBody удаляет тело и его коллайдеры из пространства
func (w *chipmunkWorld) RemoveBody(id entity.EntityID) bool {
	rec, exists := w.entityToBody[id]
	if !exists {
		return false
	}

	for _, shape := range rec.shapes {
		w.space.RemoveShape(shape)
	}
	w.space.RemoveBody(rec.handle)

	delete(w.entityToBody, id)
	delete(w.bodyToEntity, rec.handle)
	return true
}

// ApplyMovementForce применяет горизонтальный импульс к динамическому телу
func (w *chipmunkWorld) ApplyMovementForce(id entity.EntityID, axis, moveSpeed float64) {
	rec, exists := w.entityToBody[id]
	if !exists || rec.kind != portPhysics.BodyDynamic {
		return
	}

	impulse := cp.Vector{X: axis * moveSpeed * rec.handle.Mass(), Y: 0}
	rec.handle.ApplyImpulseAtWorldPoint(impulse, rec.handle.Position())
}

// ApplyJumpImpulse применяет вертикальный импульс, если тело на земле
func (w *chipmunkWorld) ApplyJumpImpulse(id entity.EntityID, jumpForce float64) bool {
	rec, exists := w.entityToBody[id]
	if !exists || rec.kind != portPhysics.BodyDynamic {
		return false
	}
	if !w.grounded(rec) {
		return false
	}

	impulse := cp.Vector{X: 0, Y: jumpForce * rec.handle.Mass()}
	rec.handle.ApplyImpulseAtWorldPoint(impulse, rec.handle.Position())
	rec.onGround = false
	return true
}

// Step продвигает мир на один фиксированный шаг и обновляет флаги земли
func (w *chipmunkWorld) Step() {
	w.space.Step(w.cfg.Timestep)

	for _, rec := range w.entityToBody {
		if rec.kind != portPhysics.BodyDynamic {
			continue
		}
		if limit := w.cfg.MaxHorizontalSpeed; limit > 0 {
			v := rec.handle.Velocity()
			if math.Abs(v.X) > limit {
				rec.handle.SetVelocity(math.Copysign(limit, v.X), v.Y)
			}
		}
		rec.onGround = w.grounded(rec)
	}
}

// QueryState возвращает позицию и скорость тела
func (w *chipmunkWorld) QueryState(id entity.EntityID) (portPhysics.BodyState, bool) {
	rec, exists := w.entityToBody[id]
	if !exists {
		return portPhysics.BodyState{}, false
	}

	p := rec.handle.Position()
	v := rec.handle.Velocity()
	return portPhysics.BodyState{
		Position: mgl64.Vec2{p.X, p.Y},
		Velocity: mgl64.Vec2{v.X, v.Y},
		OnGround: rec.onGround,
	}, true
}

// SetState задает позицию и скорость подвижного тела
func (w *chipmunkWorld) SetState(id entity.EntityID, position, velocity mgl64.Vec2) bool {
	rec, exists := w.entityToBody[id]
	if !exists || rec.kind == portPhysics.BodyStatic {
		return false
	}

	rec.handle.SetPosition(cp.Vector{X: position.X(), Y: position.Y()})
	rec.handle.SetVelocity(velocity.X(), velocity.Y())
	rec.onGround = w.grounded(rec)
	return true
}

// IsGrounded сообщает, стоит ли тело на земле
func (w *chipmunkWorld) IsGrounded(id entity.EntityID) bool {
	rec, exists := w.entityToBody[id]
	if !exists {
		return false
	}
	return w.grounded(rec)
}

// grounded упрощенная проверка: вертикальная скорость близка к нулю.
// Лучи не используются, ложные срабатывания в вершине прыжка допустимы.
func (w *chipmunkWorld) grounded(rec *body) bool {
	return math.Abs(rec.handle.Velocity().Y) <= w.cfg.GroundEpsilon
}

// Has сообщает, отслеживается ли тело сущности
func (w *chipmunkWorld) Has(id entity.EntityID) bool {
	_, exists := w.entityToBody[id]
	return exists
}

// BodyCount количество тел, привязанных к сущностям
func (w *chipmunkWorld) BodyCount() int {
	return len(w.entityToBody)
}
