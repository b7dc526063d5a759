package service

import (
	"errors"
	"io"
	"log"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/port/out/physics"
)

// mockBody тело тестового физического мира
type mockBody struct {
	pos      mgl64.Vec2
	vel      mgl64.Vec2
	mass     float64
	grounded bool
}

// MockWorld упрощенный физический мир: без гравитации, земля задается тестом
type MockWorld struct {
	bodies     map[entity.EntityID]*mockBody
	steps      int
	jumps      int
	forces     int
	resizes    int
	failCreate error
}

func (w *MockWorld) CreateBody(id entity.EntityID, position mgl64.Vec2, mass float64, kind physics.BodyKind, shape entity.Kind) error {
	if w.failCreate != nil {
		return w.failCreate
	}
	if _, exists := w.bodies[id]; exists {
		return physics.ErrBodyExists
	}
	w.bodies[id] = &mockBody{pos: position, mass: mass}
	return nil
}

func (w *MockWorld) RemoveBody(id entity.EntityID) bool {
	if _, exists := w.bodies[id]; !exists {
		return false
	}
	delete(w.bodies, id)
	return true
}

func (w *MockWorld) ApplyMovementForce(id entity.EntityID, axis, moveSpeed float64) {
	if b, ok := w.bodies[id]; ok {
		b.vel[0] += axis * moveSpeed
		w.forces++
	}
}

func (w *MockWorld) ApplyJumpImpulse(id entity.EntityID, jumpForce float64) bool {
	b, ok := w.bodies[id]
	if !ok || !b.grounded {
		return false
	}
	b.vel[1] = jumpForce
	b.grounded = false
	w.jumps++
	return true
}

func (w *MockWorld) Step() {
	w.steps++
	for _, b := range w.bodies {
		b.pos = b.pos.Add(b.vel.Mul(0.02))
	}
}

func (w *MockWorld) QueryState(id entity.EntityID) (physics.BodyState, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return physics.BodyState{}, false
	}
	return physics.BodyState{Position: b.pos, Velocity: b.vel, OnGround: b.grounded}, true
}

func (w *MockWorld) SetState(id entity.EntityID, position, velocity mgl64.Vec2) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.pos, b.vel = position, velocity
	return true
}

func (w *MockWorld) Resize(id entity.EntityID, mass float64) bool {
	b, ok := w.bodies[id]
	if !ok || !(mass > 0) {
		return false
	}
	b.mass = mass
	w.resizes++
	return true
}

func (w *MockWorld) IsGrounded(id entity.EntityID) bool {
	b, ok := w.bodies[id]
	return ok && b.grounded
}

func (w *MockWorld) Has(id entity.EntityID) bool {
	_, ok := w.bodies[id]
	return ok
}

func (w *MockWorld) BodyCount() int {
	return len(w.bodies)
}

// MockBridge выдает доступ к MockWorld под мьютексом
type MockBridge struct {
	mu    sync.Mutex
	world *MockWorld
}

func NewMockBridge() *MockBridge {
	return &MockBridge{world: &MockWorld{bodies: make(map[entity.EntityID]*mockBody)}}
}

func (b *MockBridge) Acquire(fn func(w physics.World) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.world)
}

func testConfig(mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.TargetFoodCount = 40
	cfg.InputRateLimit = 0
	return cfg
}

func newTestArena(t *testing.T, cfg *config.Config, bridge physics.Bridge) *ArenaService {
	t.Helper()
	s, err := NewArenaService(cfg, bridge, log.New(io.Discard, "", 0), WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("NewArenaService: %v", err)
	}
	return s
}

func connectAndJoin(t *testing.T, s *ArenaService, identity entity.Identity, name string) (entity.Player, entity.EntityID) {
	t.Helper()
	p, err := s.OnPlayerConnect(identity)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	id, err := s.OnPlayerJoin(identity, name)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return p, id
}

func TestNewArenaService_Preconditions(t *testing.T) {
	if _, err := NewArenaService(nil, nil, nil); !errors.Is(err, config.ErrConfigMissing) {
		t.Errorf("nil config: %v", err)
	}
	if _, err := NewArenaService(testConfig(config.ModePlatformer), nil, nil); !errors.Is(err, ErrPhysicsRequired) {
		t.Errorf("platformer without bridge: %v", err)
	}

	bad := testConfig(config.ModeCircle)
	bad.WorldSize = 0
	if _, err := NewArenaService(bad, nil, nil); err == nil {
		t.Error("invalid config accepted")
	}
}

func TestArena_ConnectJoinDisconnectReconnect(t *testing.T) {
	s := newTestArena(t, testConfig(config.ModeCircle), nil)

	player, entityID := connectAndJoin(t, s, "alice", "Alice")
	if player.ID == 0 {
		t.Fatal("player id not assigned")
	}
	if owner, ok := s.store.OwnerOf(entityID); !ok || owner != player.ID {
		t.Errorf("owner of %d = %d,%v", entityID, owner, ok)
	}
	e, _ := s.store.Get(entityID)
	if e.Kind != entity.KindCircle || e.Mass != s.cfg.StartPlayerMass {
		t.Errorf("spawned entity = %+v", e)
	}

	if err := s.OnPlayerDisconnect("alice"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok := s.store.Get(entityID); ok {
		t.Error("entity survived disconnect")
	}
	if len(s.store.CirclesOf(player.ID)) != 0 {
		t.Error("circle attachment survived disconnect")
	}

	again, err := s.OnPlayerConnect("alice")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if again.ID != player.ID || again.Name != "Alice" {
		t.Errorf("reconnected player = %+v, want id %d and name Alice", again, player.ID)
	}

	other, _ := s.OnPlayerConnect("bob")
	if other.ID == player.ID {
		t.Error("new identity reused an existing player id")
	}
}

func TestArena_MissingPlayerPreconditions(t *testing.T) {
	s := newTestArena(t, testConfig(config.ModeCircle), nil)

	if err := s.OnPlayerDisconnect("ghost"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("disconnect: %v", err)
	}
	if _, err := s.OnPlayerJoin("ghost", "Ghost"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("join: %v", err)
	}
	if _, err := s.SubmitInput("ghost", InputParams{Horizontal: 1}); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("input: %v", err)
	}
	if s.store.Len() != 0 {
		t.Errorf("failed operations left %d entities", s.store.Len())
	}
}

func TestArena_FoodSpawnRequiresPlayers(t *testing.T) {
	s := newTestArena(t, testConfig(config.ModeCircle), nil)

	spawned, err := s.OnFoodSpawnTick()
	if err != nil || spawned != 0 {
		t.Fatalf("spawned %d, err %v with no players", spawned, err)
	}
	if s.store.Count(entity.KindFood) != 0 {
		t.Error("food spawned without players")
	}
}

func TestArena_FoodDensityConverges(t *testing.T) {
	cfg := testConfig(config.ModeCircle)
	s := newTestArena(t, cfg, nil)
	_, _ = s.OnPlayerConnect("alice")

	spawned, err := s.OnFoodSpawnTick()
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if spawned != cfg.TargetFoodCount {
		t.Errorf("spawned %d, want %d", spawned, cfg.TargetFoodCount)
	}

	for _, e := range s.store.Iterate() {
		if e.Kind != entity.KindFood {
			continue
		}
		if e.Mass < float64(cfg.FoodMassMin) || e.Mass > float64(cfg.FoodMassMax) || e.Mass != float64(int(e.Mass)) {
			t.Errorf("food mass %v outside [%d, %d]", e.Mass, cfg.FoodMassMin, cfg.FoodMassMax)
		}
		r := e.Radius()
		if e.Position.X() < r || e.Position.X() > cfg.WorldSize-r || e.Position.Y() < r || e.Position.Y() > cfg.WorldSize-r {
			t.Errorf("food %d at %v outside the world", e.ID, e.Position)
		}
	}

	// Съедаем часть еды и проверяем, что плотность восстанавливается без превышения
	eaten := 0
	for _, e := range s.store.Iterate() {
		if eaten == 15 {
			break
		}
		if e.Kind != entity.KindFood {
			continue
		}
		s.store.Delete(e.ID)
		eaten++
	}

	previous := s.store.Count(entity.KindFood)
	for tick := 0; tick < 5; tick++ {
		if _, err := s.OnFoodSpawnTick(); err != nil {
			t.Fatalf("spawn tick %d: %v", tick, err)
		}
		count := s.store.Count(entity.KindFood)
		if count > cfg.TargetFoodCount {
			t.Fatalf("food count %d exceeds target %d", count, cfg.TargetFoodCount)
		}
		if count < previous {
			t.Fatalf("food count decreased from %d to %d", previous, count)
		}
		previous = count
	}
	if previous != cfg.TargetFoodCount {
		t.Errorf("food count %d did not converge to %d", previous, cfg.TargetFoodCount)
	}
}

func TestArena_CircleMovementAndClamping(t *testing.T) {
	cfg := testConfig(config.ModeCircle)
	s := newTestArena(t, cfg, nil)
	_, id := connectAndJoin(t, s, "alice", "Alice")

	_ = s.store.Update(id, func(e *entity.Entity) { e.Position = mgl64.Vec2{500, 500} })

	if _, err := s.SubmitInput("alice", InputParams{Direction: mgl64.Vec2{3, 0}}); err != nil {
		t.Fatalf("input: %v", err)
	}
	c, _ := s.store.Circle(id)
	if c.Direction != (mgl64.Vec2{1, 0}) {
		t.Errorf("circle direction = %v, want [1 0]", c.Direction)
	}

	if _, err := s.OnMovementTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	e, _ := s.store.Get(id)
	if e.Position != (mgl64.Vec2{500 + cfg.StartPlayerSpeed, 500}) {
		t.Errorf("position after one tick = %v", e.Position)
	}

	for i := 0; i < 200; i++ {
		_, _ = s.OnMovementTick()
	}
	e, _ = s.store.Get(id)
	if want := cfg.WorldSize - e.Radius(); e.Position.X() != want {
		t.Errorf("x = %v, want clamped to %v", e.Position.X(), want)
	}
}

func TestArena_MovementTickAbsorbsFood(t *testing.T) {
	cfg := testConfig(config.ModeCircle)
	s := newTestArena(t, cfg, nil)
	_, id := connectAndJoin(t, s, "alice", "Alice")
	_ = s.store.Update(id, func(e *entity.Entity) { e.Position = mgl64.Vec2{300, 300} })

	food, err := s.store.Create(mgl64.Vec2{301, 300}, 3, entity.KindFood)
	if err != nil {
		t.Fatalf("create food: %v", err)
	}

	report, err := s.OnMovementTick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(report.Absorptions) != 1 || report.Absorptions[0].Prey != food {
		t.Fatalf("absorptions = %+v", report.Absorptions)
	}

	e, _ := s.store.Get(id)
	if e.Mass != cfg.StartPlayerMass+3 {
		t.Errorf("mass = %v, want %v", e.Mass, cfg.StartPlayerMass+3)
	}
	if _, ok := s.store.Get(food); ok {
		t.Error("food still exists")
	}
}

func TestArena_CircleEliminatesSmallerOpponent(t *testing.T) {
	s := newTestArena(t, testConfig(config.ModeCircle), nil)
	_, big := connectAndJoin(t, s, "alice", "Alice")
	bob, small := connectAndJoin(t, s, "bob", "Bob")

	_ = s.store.Update(big, func(e *entity.Entity) { e.Mass, e.Position = 100, mgl64.Vec2{400, 400} })
	_ = s.store.Update(small, func(e *entity.Entity) { e.Mass, e.Position = 80, mgl64.Vec2{405, 400} })

	if _, err := s.OnMovementTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if _, ok := s.store.Get(small); ok {
		t.Error("smaller circle survived")
	}
	if len(s.store.CirclesOf(bob.ID)) != 0 {
		t.Error("eliminated circle kept its attachment")
	}
	if e, _ := s.store.Get(big); e.Mass != 180 {
		t.Errorf("winner mass = %v, want 180", e.Mass)
	}
}

func TestArena_PlatformerJoinCreatesBody(t *testing.T) {
	cfg := testConfig(config.ModePlatformer)
	bridge := NewMockBridge()
	s := newTestArena(t, cfg, bridge)

	_, id := connectAndJoin(t, s, "alice", "Alice")

	e, _ := s.store.Get(id)
	if e.Kind != entity.KindPlayer || e.Position.Y() != cfg.PlayerSpawnY {
		t.Errorf("player entity = %+v", e)
	}
	if e.Position.X() < cfg.PlayerSpawnInset || e.Position.X() > cfg.WorldSize-cfg.PlayerSpawnInset {
		t.Errorf("spawn x = %v outside inset", e.Position.X())
	}
	c, ok := s.store.Controller(id)
	if !ok || c.CanJump || c.MoveSpeed != cfg.PlayerMoveSpeed {
		t.Errorf("controller = %+v, %v", c, ok)
	}
	if !bridge.world.Has(id) {
		t.Fatal("physics body not created")
	}

	if err := s.OnPlayerDisconnect("alice"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if bridge.world.Has(id) {
		t.Error("physics body survived disconnect")
	}
}

func TestArena_PlatformerJoinRollsBackOnBodyFailure(t *testing.T) {
	bridge := NewMockBridge()
	bridge.world.failCreate = physics.ErrBodyExists
	s := newTestArena(t, testConfig(config.ModePlatformer), bridge)

	_, _ = s.OnPlayerConnect("alice")
	if _, err := s.OnPlayerJoin("alice", "Alice"); !errors.Is(err, physics.ErrBodyExists) {
		t.Fatalf("err = %v, want ErrBodyExists", err)
	}
	if s.store.Len() != 0 || len(s.store.Controllers()) != 0 {
		t.Errorf("failed join left len=%d controllers=%d", s.store.Len(), len(s.store.Controllers()))
	}
	if p, _ := s.players.Lookup("alice"); p.Name != "" {
		t.Errorf("failed join changed the name to %q", p.Name)
	}

	// Успешный вход после сбоя задает имя
	bridge.world.failCreate = nil
	if _, err := s.OnPlayerJoin("alice", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if p, _ := s.players.Lookup("alice"); p.Name != "Alice" {
		t.Errorf("name = %q, want Alice", p.Name)
	}
}

// failingInput стратегия, отклоняющая ввод
type failingInput struct {
	MovementStrategy
	err error
}

func (f failingInput) ApplyInput(PlayerInput) error {
	return f.err
}

func TestArena_InputRollsBackOnApplyFailure(t *testing.T) {
	cfg := testConfig(config.ModeCircle)
	cfg.InputRateLimit = 1
	cfg.InputBurst = 1
	s := newTestArena(t, cfg, nil)
	p, _ := connectAndJoin(t, s, "alice", "Alice")

	boom := errors.New("boom")
	s.movement = failingInput{MovementStrategy: s.movement, err: boom}

	got, err := s.SubmitInput("alice", InputParams{Horizontal: 1, Direction: mgl64.Vec2{1, 0}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got.Sequence != 0 {
		t.Errorf("rejected input returned %+v", got)
	}
	if in, ok := s.inputs.Input(p.ID); ok {
		t.Errorf("rejected input left validator state %+v", in)
	}

	// Токен ограничителя возвращен: следующий ввод проходит и получает номер 1
	s.movement = s.movement.(failingInput).MovementStrategy
	in, err := s.SubmitInput("alice", InputParams{Direction: mgl64.Vec2{0, 1}})
	if err != nil {
		t.Fatalf("input after rollback: %v", err)
	}
	if in.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", in.Sequence)
	}

	// Откат существующего намерения восстанавливает его
	s.movement = failingInput{MovementStrategy: s.movement, err: boom}
	s.inputs.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, _ = s.SubmitInput("alice", InputParams{Direction: mgl64.Vec2{-1, 0}})
	stored, _ := s.inputs.Input(p.ID)
	if stored.Sequence != 1 || stored.Direction != (mgl64.Vec2{0, 1}) {
		t.Errorf("stored after rollback = %+v", stored)
	}
}

func TestArena_PlatformerTickOrderAndSync(t *testing.T) {
	bridge := NewMockBridge()
	s := newTestArena(t, testConfig(config.ModePlatformer), bridge)
	_, id := connectAndJoin(t, s, "alice", "Alice")

	if _, err := s.SubmitInput("alice", InputParams{Horizontal: 5}); err != nil {
		t.Fatalf("input: %v", err)
	}
	if _, err := s.OnMovementTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if bridge.world.forces != 1 || bridge.world.steps != 1 {
		t.Errorf("forces = %d, steps = %d", bridge.world.forces, bridge.world.steps)
	}

	st, _ := bridge.world.QueryState(id)
	e, _ := s.store.Get(id)
	if e.Position != st.Position || e.Velocity != st.Velocity {
		t.Errorf("entity %v/%v not synced with body %v/%v", e.Position, e.Velocity, st.Position, st.Velocity)
	}
	if e.Velocity.X() != s.cfg.PlayerMoveSpeed {
		t.Errorf("vx = %v, want clamped axis * move speed", e.Velocity.X())
	}
}

func TestArena_PlatformerClampPushedBackToBody(t *testing.T) {
	bridge := NewMockBridge()
	s := newTestArena(t, testConfig(config.ModePlatformer), bridge)
	_, id := connectAndJoin(t, s, "alice", "Alice")

	bridge.world.bodies[id].pos = mgl64.Vec2{-50, 100}
	bridge.world.bodies[id].vel = mgl64.Vec2{-30, 5}

	if _, err := s.OnMovementTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	e, _ := s.store.Get(id)
	st, _ := bridge.world.QueryState(id)
	if e.Position.X() != e.Radius() || st.Position != e.Position {
		t.Errorf("entity %v, body %v: want both clamped to x = %v", e.Position, st.Position, e.Radius())
	}
	// Скорость в стену обнуляется, по свободной оси сохраняется
	if st.Velocity != (mgl64.Vec2{0, 5}) || e.Velocity != st.Velocity {
		t.Errorf("velocity body %v, entity %v, want (0, 5)", st.Velocity, e.Velocity)
	}
}

func TestArena_PlatformerAbsorptionResizesBody(t *testing.T) {
	bridge := NewMockBridge()
	s := newTestArena(t, testConfig(config.ModePlatformer), bridge)
	_, id := connectAndJoin(t, s, "alice", "Alice")

	player, _ := s.store.Get(id)
	_, _ = s.store.Create(player.Position, 5, entity.KindFood)

	if _, err := s.OnMovementTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if bridge.world.resizes != 1 || bridge.world.bodies[id].mass != player.Mass+5 {
		t.Errorf("resizes = %d, body mass = %v, want %v",
			bridge.world.resizes, bridge.world.bodies[id].mass, player.Mass+5)
	}
}

func TestArena_PlatformerJumpSingleFire(t *testing.T) {
	bridge := NewMockBridge()
	s := newTestArena(t, testConfig(config.ModePlatformer), bridge)
	_, id := connectAndJoin(t, s, "alice", "Alice")

	// Тело стоит на земле: после тика прыжок становится доступен
	bridge.world.bodies[id].grounded = true
	_, _ = s.OnMovementTick()
	if c, _ := s.store.Controller(id); !c.CanJump {
		t.Fatal("grounded player must be able to jump")
	}

	_, _ = s.SubmitInput("alice", InputParams{Action: true})
	_, _ = s.OnMovementTick()

	if bridge.world.jumps != 1 {
		t.Fatalf("jumps = %d, want 1", bridge.world.jumps)
	}
	if c, _ := s.store.Controller(id); c.CanJump {
		t.Error("jump availability not cleared")
	}

	// Кнопка удерживается, но тело в воздухе
	_, _ = s.OnMovementTick()
	_, _ = s.OnMovementTick()
	if bridge.world.jumps != 1 {
		t.Errorf("double jump: jumps = %d", bridge.world.jumps)
	}

	// Приземление возвращает прыжок
	bridge.world.bodies[id].grounded = true
	bridge.world.bodies[id].vel = mgl64.Vec2{}
	_, _ = s.OnMovementTick()
	_, _ = s.OnMovementTick()
	if bridge.world.jumps != 2 {
		t.Errorf("jump after landing: jumps = %d, want 2", bridge.world.jumps)
	}
}

func TestArena_Snapshot(t *testing.T) {
	s := newTestArena(t, testConfig(config.ModeCircle), nil)
	p, id := connectAndJoin(t, s, "alice", "Alice")
	_, _ = s.OnFoodSpawnTick()

	snap := s.Snapshot()
	if snap.Mode != config.ModeCircle || snap.WorldSize != s.cfg.WorldSize {
		t.Errorf("snapshot header = %+v", snap)
	}
	if len(snap.Entities) != s.cfg.TargetFoodCount+1 {
		t.Errorf("entities = %d", len(snap.Entities))
	}
	if snap.Owners[id] != p.ID {
		t.Errorf("owner of %d = %d", id, snap.Owners[id])
	}
	if len(snap.Players) != 1 || snap.Players[0].Name != "Alice" {
		t.Errorf("players = %+v", snap.Players)
	}
}
