package service

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/port/out/physics"
)

// MovementStrategy движение и появление сущностей игроков для одного режима игры
type MovementStrategy interface {
	// Mode режим, который реализует стратегия
	Mode() config.Mode

	// Spawn создает начальную сущность игрока
	Spawn(playerID entity.PlayerID) (entity.EntityID, error)

	// Advance выполняет один тик движения. Вызывается внутри транзакции хранилища.
	Advance(tick uint64) error

	// ApplyInput переносит принятый ввод на сущности игрока
	ApplyInput(input PlayerInput) error
}

// StateRecorder получает состояния тел после шага физики
type StateRecorder interface {
	RecordState(id entity.EntityID, kind entity.Kind, position, velocity mgl64.Vec2, mass float64)
	RecordImpulse(id entity.EntityID, kind entity.Kind, impulse mgl64.Vec2)
}

// NewMovementStrategy выбирает стратегию по режиму из конфигурации
func NewMovementStrategy(cfg *config.Config, store *entity.Store, bridge physics.Bridge, inputs *InputValidator,
	rng *rand.Rand, recorder StateRecorder, logger *log.Logger) (MovementStrategy, error) {

	switch cfg.Mode {
	case config.ModeCircle:
		return &CircleMovement{cfg: cfg, store: store, rng: rng, logger: logger}, nil
	case config.ModePlatformer:
		if bridge == nil {
			return nil, ErrPhysicsRequired
		}
		return &PlatformerMovement{
			cfg:      cfg,
			store:    store,
			bridge:   bridge,
			inputs:   inputs,
			rng:      rng,
			recorder: recorder,
			logger:   logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown game mode %q", cfg.Mode)
	}
}

// randomRange равномерное значение в [lo, hi); при lo >= hi возвращает середину
func randomRange(rng *rand.Rand, lo, hi float64) float64 {
	if !(hi > lo) {
		return (lo + hi) / 2
	}
	return lo + rng.Float64()*(hi-lo)
}

// CircleMovement режим circle: кинематическое движение без физики
type CircleMovement struct {
	cfg    *config.Config
	store  *entity.Store
	rng    *rand.Rand
	logger *log.Logger
}

// Mode режим circle
func (m *CircleMovement) Mode() config.Mode {
	return config.ModeCircle
}

// Spawn создает клетку игрока в случайной точке мира
func (m *CircleMovement) Spawn(playerID entity.PlayerID) (entity.EntityID, error) {
	ws := m.cfg.WorldSize
	r := entity.MassToRadius(m.cfg.StartPlayerMass)
	pos := mgl64.Vec2{randomRange(m.rng, r, ws-r), randomRange(m.rng, r, ws-r)}

	id, err := m.store.Create(pos, m.cfg.StartPlayerMass, entity.KindCircle)
	if err != nil {
		return 0, fmt.Errorf("spawn circle: %w", err)
	}

	err = m.store.AttachCircle(entity.Circle{
		EntityID: id,
		PlayerID: playerID,
		Speed:    m.cfg.StartPlayerSpeed,
	})
	if err != nil {
		return 0, fmt.Errorf("spawn circle: %w", err)
	}

	return id, nil
}

// ApplyInput задает направление всем клеткам игрока
func (m *CircleMovement) ApplyInput(input PlayerInput) error {
	for _, c := range m.store.CirclesOf(input.PlayerID) {
		err := m.store.UpdateCircle(c.EntityID, func(c *entity.Circle) {
			c.Direction = input.Direction
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Advance сдвигает каждую клетку на direction * speed с ограничением границами мира
func (m *CircleMovement) Advance(tick uint64) error {
	for _, c := range m.store.Circles() {
		step := c.Direction.Mul(c.Speed)
		if step.X() == 0 && step.Y() == 0 {
			continue
		}

		err := m.store.Update(c.EntityID, func(e *entity.Entity) {
			e.Position = e.Position.Add(step)
		})
		if err != nil {
			return fmt.Errorf("move circle %d: %w", c.EntityID, err)
		}
	}

	if tick%200 == 0 {
		m.logger.Printf("[CircleMovement] Тик %d: клеток %d", tick, len(m.store.Circles()))
	}
	return nil
}

// PlatformerMovement режим платформера: движение через физический мост
type PlatformerMovement struct {
	cfg      *config.Config
	store    *entity.Store
	bridge   physics.Bridge
	inputs   *InputValidator
	rng      *rand.Rand
	recorder StateRecorder
	logger   *log.Logger
}

// Mode режим платформера
func (m *PlatformerMovement) Mode() config.Mode {
	return config.ModePlatformer
}

// Spawn создает персонажа над землей и его физическое тело.
// Тело создается последним, чтобы ошибка не оставила лишнего тела.
func (m *PlatformerMovement) Spawn(playerID entity.PlayerID) (entity.EntityID, error) {
	ws := m.cfg.WorldSize
	x := randomRange(m.rng, m.cfg.PlayerSpawnInset, ws-m.cfg.PlayerSpawnInset)
	pos := mgl64.Vec2{x, m.cfg.PlayerSpawnY}

	id, err := m.store.Create(pos, m.cfg.StartPlayerMass, entity.KindPlayer)
	if err != nil {
		return 0, fmt.Errorf("spawn player: %w", err)
	}

	err = m.store.AttachController(entity.MovementController{
		EntityID:  id,
		PlayerID:  playerID,
		MoveSpeed: m.cfg.PlayerMoveSpeed,
		JumpForce: m.cfg.PlayerJumpForce,
		CanJump:   false, // Обновится определением земли
	})
	if err != nil {
		return 0, fmt.Errorf("spawn player: %w", err)
	}

	created, _ := m.store.Get(id)
	err = m.bridge.Acquire(func(w physics.World) error {
		return w.CreateBody(id, created.Position, created.Mass, physics.BodyDynamic, entity.KindPlayer)
	})
	if err != nil {
		return 0, fmt.Errorf("spawn player: %w", err)
	}

	return id, nil
}

// ApplyInput ввод платформера хранится в валидаторе и читается на тике
func (m *PlatformerMovement) ApplyInput(PlayerInput) error {
	return nil
}

// Advance шаг физики строго по порядку: ввод -> step -> синхронизация -> земля
func (m *PlatformerMovement) Advance(tick uint64) error {
	return m.bridge.Acquire(func(w physics.World) error {
		if err := m.applyInputs(w); err != nil {
			return err
		}

		w.Step()

		if err := m.syncEntities(w); err != nil {
			return err
		}

		if err := m.updateGroundDetection(w); err != nil {
			return err
		}

		if tick%250 == 0 {
			m.logger.Printf("[PlatformerMovement] Тик %d: тел %d, контроллеров %d",
				tick, w.BodyCount(), len(m.store.Controllers()))
		}
		return nil
	})
}

// applyInputs переводит сохраненный ввод в импульсы
func (m *PlatformerMovement) applyInputs(w physics.World) error {
	for _, c := range m.store.Controllers() {
		input, ok := m.inputs.Input(c.PlayerID)
		if !ok {
			continue
		}
		// Мост масштабирует импульс массой тела, она равна массе сущности
		e, ok := m.store.Get(c.EntityID)
		if !ok {
			continue
		}

		if math.Abs(input.Horizontal) > horizontalDeadzone {
			w.ApplyMovementForce(c.EntityID, input.Horizontal, c.MoveSpeed)
			m.recordImpulse(c.EntityID, mgl64.Vec2{input.Horizontal * c.MoveSpeed * e.Mass, 0})
		}

		if !input.Action || !c.CanJump {
			continue
		}
		if !w.ApplyJumpImpulse(c.EntityID, c.JumpForce) {
			continue
		}

		// Без двойного прыжка
		err := m.store.UpdateController(c.EntityID, func(c *entity.MovementController) {
			c.CanJump = false
		})
		if err != nil {
			return err
		}
		m.recordImpulse(c.EntityID, mgl64.Vec2{0, c.JumpForce * e.Mass})
	}
	return nil
}

// syncEntities копирует позицию и скорость тел в хранилище. Если хранилище
// ограничило позицию, тело возвращается в ту же точку, а скорость по
// ограниченной оси обнуляется.
func (m *PlatformerMovement) syncEntities(w physics.World) error {
	for _, e := range m.store.Iterate() {
		if e.Kind != entity.KindPlayer {
			continue
		}

		st, ok := w.QueryState(e.ID)
		if !ok {
			continue
		}

		clamped := entity.ClampToWorld(st.Position, e.Radius(), m.store.WorldSize())
		velocity := st.Velocity
		if clamped.X() != st.Position.X() {
			velocity[0] = 0
		}
		if clamped.Y() != st.Position.Y() {
			velocity[1] = 0
		}

		err := m.store.Update(e.ID, func(e *entity.Entity) {
			e.Position = clamped
			e.Velocity = velocity
		})
		if err != nil {
			return fmt.Errorf("sync entity %d: %w", e.ID, err)
		}

		if clamped != st.Position {
			w.SetState(e.ID, clamped, velocity)
		}

		if m.recorder != nil {
			m.recorder.RecordState(e.ID, e.Kind, clamped, velocity, e.Mass)
		}
	}
	return nil
}

// updateGroundDetection возвращает возможность прыжка приземлившимся
func (m *PlatformerMovement) updateGroundDetection(w physics.World) error {
	for _, c := range m.store.Controllers() {
		if c.CanJump || !w.IsGrounded(c.EntityID) {
			continue
		}
		err := m.store.UpdateController(c.EntityID, func(c *entity.MovementController) {
			c.CanJump = true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *PlatformerMovement) recordImpulse(id entity.EntityID, impulse mgl64.Vec2) {
	if m.recorder != nil {
		m.recorder.RecordImpulse(id, entity.KindPlayer, impulse)
	}
}
