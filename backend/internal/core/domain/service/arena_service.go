package service

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/port/out/physics"
)

// TickReport итог одного тика движения
type TickReport struct {
	Tick        uint64
	Absorptions []Absorption
}

// WorldSnapshot согласованное состояние мира на момент вызова
type WorldSnapshot struct {
	Tick      uint64
	Mode      config.Mode
	WorldSize float64
	Entities  []entity.Entity
	Owners    map[entity.EntityID]entity.PlayerID
	Players   []entity.Player
}

// ArenaService ядро симуляции: каждая операция выполняется как единое целое
// под общей блокировкой внутри транзакции хранилища.
type ArenaService struct {
	cfg    *config.Config
	store  *entity.Store
	bridge physics.Bridge

	players  *PlayerRegistry
	inputs   *InputValidator
	resolver *CollisionResolver
	movement MovementStrategy
	food     *FoodSpawner

	unitMu    sync.Mutex
	tickCount atomic.Uint64
	eaten     atomic.Uint64

	logger *log.Logger
}

// Option дополнительная настройка сервиса
type Option func(*options)

type options struct {
	rng      *rand.Rand
	recorder StateRecorder
}

// WithRand задает генератор случайных чисел (для воспроизводимых тестов)
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithStateRecorder подключает запись состояний тел после шага физики
func WithStateRecorder(recorder StateRecorder) Option {
	return func(o *options) { o.recorder = recorder }
}

// NewArenaService создает сервис. bridge может быть nil в режиме circle.
func NewArenaService(cfg *config.Config, bridge physics.Bridge, logger *log.Logger, opts ...Option) (*ArenaService, error) {
	if cfg == nil {
		return nil, config.ErrConfigMissing
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	s := &ArenaService{
		cfg:      cfg,
		store:    entity.NewStore(cfg.WorldSize),
		bridge:   bridge,
		players:  NewPlayerRegistry(),
		resolver: NewCollisionResolver(cfg.MinimumSafeMassRatio),
		logger:   logger,
	}
	s.inputs = NewInputValidator(cfg.InputRateLimit, cfg.InputBurst, s.players.IsOnline, logger)
	s.food = NewFoodSpawner(cfg, s.store, o.rng, logger)

	movement, err := NewMovementStrategy(cfg, s.store, bridge, s.inputs, o.rng, o.recorder, logger)
	if err != nil {
		return nil, err
	}
	s.movement = movement

	// Тело удаляется вместе с сущностью
	if bridge != nil {
		s.store.OnDelete(s.removeBody)
	}
	if f, ok := o.recorder.(interface {
		Forget(id entity.EntityID, kind entity.Kind)
	}); ok {
		s.store.OnDelete(f.Forget)
	}

	logger.Printf("[Arena] Сервис создан: режим %s, мир %.0f, цель еды %d",
		cfg.Mode, cfg.WorldSize, cfg.TargetFoodCount)

	return s, nil
}

func (s *ArenaService) removeBody(id entity.EntityID, _ entity.Kind) {
	_ = s.bridge.Acquire(func(w physics.World) error {
		w.RemoveBody(id)
		return nil
	})
}

// unit выполняет fn атомарно: при ошибке или панике изменения откатываются
func (s *ArenaService) unit(name string, fn func() error) error {
	s.unitMu.Lock()
	defer s.unitMu.Unlock()

	if err := s.store.Transaction(fn); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// OnPlayerConnect регистрирует подключение. Вышедший ранее игрок
// получает свои ID и имя обратно.
func (s *ArenaService) OnPlayerConnect(identity entity.Identity) (entity.Player, error) {
	var player entity.Player
	err := s.unit("connect", func() error {
		var restored bool
		player, restored = s.players.Connect(identity)
		if restored {
			s.logger.Printf("[Arena] Игрок %d (%q) переподключился", player.ID, player.Name)
		} else {
			s.logger.Printf("[Arena] Игрок %d подключился", player.ID)
		}
		return nil
	})
	return player, err
}

// OnPlayerDisconnect удаляет сущности игрока и переносит его в список вышедших
func (s *ArenaService) OnPlayerDisconnect(identity entity.Identity) error {
	return s.unit("disconnect", func() error {
		player, ok := s.players.Lookup(identity)
		if !ok {
			return fmt.Errorf("identity %q: %w", identity, ErrPlayerNotFound)
		}

		removed := 0
		for _, c := range s.store.ControllersOf(player.ID) {
			if s.store.Delete(c.EntityID) {
				removed++
			}
		}
		for _, c := range s.store.CirclesOf(player.ID) {
			if s.store.Delete(c.EntityID) {
				removed++
			}
		}

		s.inputs.Reset(player.ID)
		s.players.Disconnect(identity)

		s.logger.Printf("[Arena] Игрок %d отключился, удалено сущностей: %d", player.ID, removed)
		return nil
	})
}

// OnPlayerJoin создает начальную сущность игрока и задает ему имя.
// Имя меняется только после успешного создания сущности.
func (s *ArenaService) OnPlayerJoin(identity entity.Identity, name string) (entity.EntityID, error) {
	var id entity.EntityID
	err := s.unit("join", func() error {
		player, ok := s.players.Lookup(identity)
		if !ok {
			return fmt.Errorf("identity %q: %w", identity, ErrPlayerNotFound)
		}

		var err error
		id, err = s.movement.Spawn(player.ID)
		if err != nil {
			return err
		}

		previous := player.Name
		s.players.SetName(identity, name)
		s.store.OnRollback(func() { s.players.SetName(identity, previous) })

		s.logger.Printf("[Arena] Игрок %d (%q) вошел в игру, сущность %d", player.ID, name, id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SubmitInput проверяет ввод и сохраняет намерение игрока.
// Ввод от неизвестного отправителя отбрасывается с предупреждением.
func (s *ArenaService) SubmitInput(identity entity.Identity, params InputParams) (PlayerInput, error) {
	var accepted PlayerInput
	err := s.unit("input", func() error {
		player, ok := s.players.Lookup(identity)
		if !ok {
			s.logger.Printf("[Arena] ПРЕДУПРЕЖДЕНИЕ: ввод от неизвестного игрока %q", identity)
			return fmt.Errorf("identity %q: %w", identity, ErrUnknownPlayer)
		}

		input, undo, err := s.inputs.SubmitWithUndo(player.ID, params)
		if err != nil {
			return err
		}
		// Валидатор живет вне хранилища, его откат идет через журнал транзакции
		s.store.OnRollback(undo)

		if err := s.movement.ApplyInput(input); err != nil {
			return err
		}
		accepted = input
		return nil
	})
	if err != nil {
		return PlayerInput{}, err
	}
	return accepted, nil
}

// OnFoodSpawnTick доводит количество еды до цели, если есть игроки
func (s *ArenaService) OnFoodSpawnTick() (int, error) {
	var spawned int
	err := s.unit("food spawn", func() error {
		if s.players.OnlineCount() == 0 {
			return nil
		}

		var err error
		spawned, err = s.food.Spawn()
		return err
	})
	if err != nil {
		return 0, err
	}
	return spawned, nil
}

// OnMovementTick тик движения выбранного режима, затем разрешение коллизий
func (s *ArenaService) OnMovementTick() (TickReport, error) {
	report := TickReport{}
	err := s.unit("movement", func() error {
		tick := s.tickCount.Load() + 1
		report.Tick = tick

		if err := s.movement.Advance(tick); err != nil {
			return err
		}

		outcome := s.resolver.Resolve(s.store.Iterate(), s.owners())
		if err := s.applyOutcome(outcome); err != nil {
			return err
		}
		report.Absorptions = outcome.Absorptions

		s.tickCount.Store(tick)
		return nil
	})
	if err != nil {
		return TickReport{Tick: report.Tick}, err
	}

	if n := len(report.Absorptions); n > 0 {
		s.eaten.Add(uint64(n))
		s.logger.Printf("[Arena] Тик %d: поглощений %d", report.Tick, n)
	}
	return report, nil
}

// applyOutcome применяет удаления и прирост массы одним пакетом
func (s *ArenaService) applyOutcome(outcome Outcome) error {
	for _, id := range outcome.Deleted {
		s.store.Delete(id)
	}

	for id, gain := range outcome.MassGain {
		err := s.store.Update(id, func(e *entity.Entity) {
			e.Mass += gain
		})
		if errors.Is(err, entity.ErrEntityNotFound) {
			return fmt.Errorf("absorption by vanished entity %d: %w", id, err)
		}
		if err != nil {
			return err
		}
	}

	// Последний шаг тика: после него ошибок нет, откатывать тела не нужно
	if err := s.resizeBodies(outcome.MassGain); err != nil {
		return err
	}

	for _, a := range outcome.Absorptions {
		if a.PreyKind != entity.KindFood {
			s.logger.Printf("[Arena] Сущность %d поглотила %s %d (масса %.1f)", a.Predator, a.PreyKind, a.Prey, a.Mass)
		}
	}
	return nil
}

// resizeBodies подгоняет коллайдеры выросших сущностей под новый радиус
func (s *ArenaService) resizeBodies(grown map[entity.EntityID]float64) error {
	if s.bridge == nil || len(grown) == 0 {
		return nil
	}
	return s.bridge.Acquire(func(w physics.World) error {
		for id := range grown {
			if e, ok := s.store.Get(id); ok && w.Has(id) {
				w.Resize(id, e.Mass)
			}
		}
		return nil
	})
}

// owners сопоставляет сущности их владельцам
func (s *ArenaService) owners() map[entity.EntityID]entity.PlayerID {
	result := make(map[entity.EntityID]entity.PlayerID)
	for _, c := range s.store.Controllers() {
		result[c.EntityID] = c.PlayerID
	}
	for _, c := range s.store.Circles() {
		result[c.EntityID] = c.PlayerID
	}
	return result
}

// Snapshot возвращает согласованный снимок мира
func (s *ArenaService) Snapshot() WorldSnapshot {
	s.unitMu.Lock()
	defer s.unitMu.Unlock()

	return WorldSnapshot{
		Tick:      s.tickCount.Load(),
		Mode:      s.cfg.Mode,
		WorldSize: s.cfg.WorldSize,
		Entities:  s.store.Iterate(),
		Owners:    s.owners(),
		Players:   s.players.Online(),
	}
}

// Input последний принятый ввод игрока
func (s *ArenaService) Input(playerID entity.PlayerID) (PlayerInput, bool) {
	return s.inputs.Input(playerID)
}

// Controller контроллер движения сущности платформера
func (s *ArenaService) Controller(id entity.EntityID) (entity.MovementController, bool) {
	return s.store.Controller(id)
}

// Config конфигурация сервиса
func (s *ArenaService) Config() *config.Config {
	return s.cfg
}

// GetStats статистика для периодического вывода
func (s *ArenaService) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"mode":         string(s.cfg.Mode),
		"tick_count":   s.tickCount.Load(),
		"players":      s.players.OnlineCount(),
		"entities":     s.store.Len(),
		"actors":       len(s.store.Controllers()) + len(s.store.Circles()),
		"food":         s.store.Count(entity.KindFood),
		"food_spawned": s.food.SpawnedTotal(),
		"target_food":  s.cfg.TargetFoodCount,
		"absorptions":  s.eaten.Load(),
	}
}
