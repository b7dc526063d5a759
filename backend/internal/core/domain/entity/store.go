package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrInvalidMass       = errors.New("mass must be positive")
	ErrInvalidKind       = errors.New("unknown entity kind")
	ErrEntityNotFound    = errors.New("entity not found")
	ErrAttachmentExists  = errors.New("attachment already exists")
	ErrAttachmentKind    = errors.New("attachment does not match entity kind")
	ErrAttachmentMissing = errors.New("attachment not found")
)

// DeleteListener вызывается после удаления сущности
type DeleteListener func(id EntityID, kind Kind)

// Store хранит все сущности мира и их вложения (контроллеры и клетки).
// Только методы Store изменяют эти данные.
type Store struct {
	mu        sync.RWMutex
	worldSize float64
	nextID    EntityID

	entities    map[EntityID]*Entity
	controllers map[EntityID]*MovementController
	circles     map[EntityID]*Circle
	kindCount   map[Kind]int

	listeners []DeleteListener

	// Журнал отмены активной транзакции (nil вне транзакции)
	txMu    sync.Mutex
	journal []func()
	pending []deletion
	inTx    bool
}

type deletion struct {
	id   EntityID
	kind Kind
}

// NewStore создает пустое хранилище для мира со стороной worldSize
func NewStore(worldSize float64) *Store {
	return &Store{
		worldSize:   worldSize,
		nextID:      1,
		entities:    make(map[EntityID]*Entity),
		controllers: make(map[EntityID]*MovementController),
		circles:     make(map[EntityID]*Circle),
		kindCount:   make(map[Kind]int),
	}
}

// WorldSize возвращает размер мира
func (s *Store) WorldSize() float64 {
	return s.worldSize
}

// OnDelete регистрирует слушателя удаления сущностей.
// Внутри транзакции слушатели вызываются только после фиксации.
func (s *Store) OnDelete(listener DeleteListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Transaction выполняет fn как единое целое: если fn вернула ошибку
// или запаниковала, все изменения хранилища откатываются.
// Транзакции не вкладываются.
func (s *Store) Transaction(fn func() error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.inTx = true
	s.journal = s.journal[:0]
	s.pending = s.pending[:0]
	s.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			s.rollback()
		}
	}()

	if err = fn(); err != nil {
		return err
	}

	committed = true
	s.commit()
	return nil
}

func (s *Store) commit() {
	s.mu.Lock()
	pending := append([]deletion(nil), s.pending...)
	listeners := append([]DeleteListener(nil), s.listeners...)
	s.inTx = false
	s.journal = s.journal[:0]
	s.pending = s.pending[:0]
	s.mu.Unlock()

	for _, d := range pending {
		for _, l := range listeners {
			l(d.id, d.kind)
		}
	}
}

func (s *Store) rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.journal) - 1; i >= 0; i-- {
		s.journal[i]()
	}
	s.inTx = false
	s.journal = s.journal[:0]
	s.pending = s.pending[:0]
}

// OnRollback добавляет в журнал активной транзакции шаг отмены для
// состояния вне хранилища. Вне транзакции шаг не сохраняется.
// undo выполняется под блокировкой хранилища и не должен обращаться к Store.
func (s *Store) OnRollback(undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(undo)
}

// record добавляет шаг отмены; вызывается под s.mu
func (s *Store) record(undo func()) {
	if s.inTx {
		s.journal = append(s.journal, undo)
	}
}

// Create добавляет сущность и возвращает ее новый идентификатор
func (s *Store) Create(position mgl64.Vec2, mass float64, kind Kind) (EntityID, error) {
	if !(mass > 0) {
		return 0, fmt.Errorf("create %s: %w (got %v)", kind, ErrInvalidMass, mass)
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("create: %w (%d)", ErrInvalidKind, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	s.entities[id] = &Entity{
		ID:       id,
		Kind:     kind,
		Position: ClampToWorld(position, MassToRadius(mass), s.worldSize),
		Mass:     mass,
	}
	s.kindCount[kind]++

	s.record(func() {
		delete(s.entities, id)
		s.kindCount[kind]--
	})

	return id, nil
}

// Delete удаляет сущность вместе с ее вложениями
func (s *Store) Delete(id EntityID) bool {
	s.mu.Lock()

	e, exists := s.entities[id]
	if !exists {
		s.mu.Unlock()
		return false
	}

	removed := *e
	ctrl, hasCtrl := s.controllers[id]
	circle, hasCircle := s.circles[id]

	delete(s.entities, id)
	delete(s.controllers, id)
	delete(s.circles, id)
	s.kindCount[removed.Kind]--

	s.record(func() {
		restored := removed
		s.entities[id] = &restored
		s.kindCount[removed.Kind]++
		if hasCtrl {
			s.controllers[id] = ctrl
		}
		if hasCircle {
			s.circles[id] = circle
		}
	})

	if s.inTx {
		s.pending = append(s.pending, deletion{id: id, kind: removed.Kind})
		s.mu.Unlock()
		return true
	}

	listeners := append([]DeleteListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(id, removed.Kind)
	}
	return true
}

// Get возвращает копию сущности
func (s *Store) Get(id EntityID) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entities[id]
	if !exists {
		return Entity{}, false
	}
	return *e, true
}

// Update применяет mutate к копии сущности, проверяет массу и
// ограничивает позицию границами мира. mutate не должна обращаться к Store.
func (s *Store) Update(id EntityID, mutate func(e *Entity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("update %d: %w", id, ErrEntityNotFound)
	}

	updated := *e
	mutate(&updated)
	updated.ID = e.ID
	updated.Kind = e.Kind

	if !(updated.Mass > 0) {
		return fmt.Errorf("update %d: %w (got %v)", id, ErrInvalidMass, updated.Mass)
	}
	updated.Position = ClampToWorld(updated.Position, updated.Radius(), s.worldSize)

	previous := *e
	*e = updated
	s.record(func() {
		if cur, ok := s.entities[id]; ok {
			*cur = previous
		}
	})

	return nil
}

// Iterate возвращает снимок всех сущностей, упорядоченный по ID
func (s *Store) Iterate() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count возвращает количество сущностей указанного типа
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kindCount[kind]
}

// Len возвращает общее количество сущностей
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// AttachController привязывает контроллер движения к сущности игрока
func (s *Store) AttachController(c MovementController) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[c.EntityID]
	if !exists {
		return fmt.Errorf("attach controller %d: %w", c.EntityID, ErrEntityNotFound)
	}
	if e.Kind != KindPlayer {
		return fmt.Errorf("attach controller to %s %d: %w", e.Kind, c.EntityID, ErrAttachmentKind)
	}
	if _, dup := s.controllers[c.EntityID]; dup {
		return fmt.Errorf("attach controller %d: %w", c.EntityID, ErrAttachmentExists)
	}

	stored := c
	s.controllers[c.EntityID] = &stored
	s.record(func() { delete(s.controllers, c.EntityID) })
	return nil
}

// Controller возвращает копию контроллера сущности
func (s *Store) Controller(id EntityID) (MovementController, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.controllers[id]
	if !exists {
		return MovementController{}, false
	}
	return *c, true
}

// UpdateController изменяет контроллер. mutate не должна обращаться к Store.
func (s *Store) UpdateController(id EntityID, mutate func(c *MovementController)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.controllers[id]
	if !exists {
		return fmt.Errorf("update controller %d: %w", id, ErrAttachmentMissing)
	}

	previous := *c
	mutate(c)
	c.EntityID, c.PlayerID = previous.EntityID, previous.PlayerID
	s.record(func() {
		if cur, ok := s.controllers[id]; ok {
			*cur = previous
		}
	})
	return nil
}

// Controllers возвращает все контроллеры, упорядоченные по EntityID
func (s *Store) Controllers() []MovementController {
	return s.controllersWhere(func(*MovementController) bool { return true })
}

// ControllersOf возвращает контроллеры игрока
func (s *Store) ControllersOf(playerID PlayerID) []MovementController {
	return s.controllersWhere(func(c *MovementController) bool { return c.PlayerID == playerID })
}

func (s *Store) controllersWhere(match func(*MovementController) bool) []MovementController {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MovementController, 0)
	for _, c := range s.controllers {
		if match(c) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// AttachCircle привязывает параметры клетки к сущности типа circle
func (s *Store) AttachCircle(c Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[c.EntityID]
	if !exists {
		return fmt.Errorf("attach circle %d: %w", c.EntityID, ErrEntityNotFound)
	}
	if e.Kind != KindCircle {
		return fmt.Errorf("attach circle to %s %d: %w", e.Kind, c.EntityID, ErrAttachmentKind)
	}
	if _, dup := s.circles[c.EntityID]; dup {
		return fmt.Errorf("attach circle %d: %w", c.EntityID, ErrAttachmentExists)
	}

	stored := c
	s.circles[c.EntityID] = &stored
	s.record(func() { delete(s.circles, c.EntityID) })
	return nil
}

// Circle возвращает копию параметров клетки
func (s *Store) Circle(id EntityID) (Circle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.circles[id]
	if !exists {
		return Circle{}, false
	}
	return *c, true
}

// UpdateCircle изменяет параметры клетки. mutate не должна обращаться к Store.
func (s *Store) UpdateCircle(id EntityID, mutate func(c *Circle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.circles[id]
	if !exists {
		return fmt.Errorf("update circle %d: %w", id, ErrAttachmentMissing)
	}

	previous := *c
	mutate(c)
	c.EntityID, c.PlayerID = previous.EntityID, previous.PlayerID
	s.record(func() {
		if cur, ok := s.circles[id]; ok {
			*cur = previous
		}
	})
	return nil
}

// Circles возвращает все клетки, упорядоченные по EntityID
func (s *Store) Circles() []Circle {
	return s.circlesWhere(func(*Circle) bool { return true })
}

// CirclesOf возвращает клетки игрока
func (s *Store) CirclesOf(playerID PlayerID) []Circle {
	return s.circlesWhere(func(c *Circle) bool { return c.PlayerID == playerID })
}

func (s *Store) circlesWhere(match func(*Circle) bool) []Circle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Circle, 0)
	for _, c := range s.circles {
		if match(c) {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// OwnerOf возвращает игрока, которому принадлежит сущность
func (s *Store) OwnerOf(id EntityID) (PlayerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.controllers[id]; ok {
		return c.PlayerID, true
	}
	if c, ok := s.circles[id]; ok {
		return c.PlayerID, true
	}
	return 0, false
}
