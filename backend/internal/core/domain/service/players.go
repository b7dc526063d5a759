package service

import (
	"sort"
	"sync"

	"x-arena/backend/internal/core/domain/entity"
)

// PlayerRegistry хранит подключенных и вышедших игроков
type PlayerRegistry struct {
	mu        sync.RWMutex
	online    map[entity.Identity]*entity.Player
	loggedOut map[entity.Identity]*entity.Player
	byID      map[entity.PlayerID]entity.Identity
	nextID    entity.PlayerID
}

// NewPlayerRegistry создает пустой реестр
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{
		online:    make(map[entity.Identity]*entity.Player),
		loggedOut: make(map[entity.Identity]*entity.Player),
		byID:      make(map[entity.PlayerID]entity.Identity),
		nextID:    1,
	}
}

// Connect переводит игрока в онлайн. Вышедший ранее игрок получает
// прежние ID и имя. restored сообщает, была ли запись восстановлена.
func (r *PlayerRegistry) Connect(identity entity.Identity) (player entity.Player, restored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.online[identity]; ok {
		return *p, false
	}

	if p, ok := r.loggedOut[identity]; ok {
		delete(r.loggedOut, identity)
		r.online[identity] = p
		return *p, true
	}

	p := &entity.Player{Identity: identity, ID: r.nextID}
	r.nextID++
	r.online[identity] = p
	r.byID[p.ID] = identity
	return *p, false
}

// Disconnect переводит игрока в список вышедших
func (r *PlayerRegistry) Disconnect(identity entity.Identity) (entity.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.online[identity]
	if !ok {
		return entity.Player{}, false
	}
	delete(r.online, identity)
	r.loggedOut[identity] = p
	return *p, true
}

// SetName меняет имя подключенного игрока
func (r *PlayerRegistry) SetName(identity entity.Identity, name string) (entity.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.online[identity]
	if !ok {
		return entity.Player{}, false
	}
	p.Name = name
	return *p, true
}

// Lookup ищет подключенного игрока по identity
func (r *PlayerRegistry) Lookup(identity entity.Identity) (entity.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.online[identity]
	if !ok {
		return entity.Player{}, false
	}
	return *p, true
}

// IsOnline сообщает, подключен ли игрок с данным ID
func (r *PlayerRegistry) IsOnline(id entity.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return false
	}
	_, online := r.online[identity]
	return online
}

// OnlineCount количество подключенных игроков
func (r *PlayerRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// Online возвращает подключенных игроков, упорядоченных по ID
func (r *PlayerRegistry) Online() []entity.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.Player, 0, len(r.online))
	for _, p := range r.online {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
