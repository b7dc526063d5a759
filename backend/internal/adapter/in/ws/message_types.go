package ws

import (
	"time"

	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/domain/service"
)

// Константы для WebSocket сообщений
const (
	// От клиента
	MessageTypeJoin  = "join"  // Вход в игру с именем
	MessageTypeInput = "input" // Ввод игрока
	MessageTypePing  = "ping"  // Пинг для измерения задержки

	// От сервера
	MessageTypeWelcome  = "welcome"  // Подключение принято
	MessageTypeJoined   = "joined"   // Сущность игрока создана
	MessageTypeInputAck = "input_ack"
	MessageTypePong     = "pong"     // Ответ на пинг
	MessageTypeAbsorbed = "absorbed" // События поглощения за тик
	MessageTypeError    = "error"    // Ошибка обработки сообщения
)

// Vec2Message вектор в JSON
type Vec2Message struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClientMessage входящее сообщение клиента. Поля зависят от типа.
type ClientMessage struct {
	Type string `json:"type"`

	// join
	Name string `json:"name,omitempty"`

	// input
	Horizontal float64      `json:"horizontal,omitempty"`
	Direction  *Vec2Message `json:"direction,omitempty"`
	Action     bool         `json:"action,omitempty"`

	// ping
	ClientTime float64 `json:"client_time,omitempty"`
}

// GetCurrentServerTime возвращает текущее серверное время в миллисекундах
func GetCurrentServerTime() int64 {
	return time.Now().UnixMilli()
}

// NewWelcomeMessage ответ на подключение
func NewWelcomeMessage(player entity.Player, mode string, worldSize float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        MessageTypeWelcome,
		"player_id":   uint32(player.ID),
		"name":        player.Name,
		"mode":        mode,
		"world_size":  worldSize,
		"server_time": GetCurrentServerTime(),
	}
}

// NewJoinedMessage подтверждение создания сущности игрока
func NewJoinedMessage(entityID entity.EntityID) map[string]interface{} {
	return map[string]interface{}{
		"type":      MessageTypeJoined,
		"entity_id": uint32(entityID),
	}
}

// NewInputAckMessage подтверждение принятого ввода
func NewInputAckMessage(sequence uint64) map[string]interface{} {
	return map[string]interface{}{
		"type":     MessageTypeInputAck,
		"sequence": sequence,
	}
}

// NewPongMessage создает новое сообщение-ответ на пинг
func NewPongMessage(clientTime float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        MessageTypePong,
		"client_time": clientTime,
		"server_time": GetCurrentServerTime(),
	}
}

// NewErrorMessage сообщение об ошибке для клиента
func NewErrorMessage(message string) map[string]interface{} {
	return map[string]interface{}{
		"type":    MessageTypeError,
		"message": message,
	}
}

// AbsorptionMessage одно поглощение в JSON
type AbsorptionMessage struct {
	Predator uint32  `json:"predator"`
	Prey     uint32  `json:"prey"`
	PreyKind string  `json:"prey_kind"`
	Mass     float64 `json:"mass"`
}

// NewAbsorbedMessage события поглощения за тик
func NewAbsorbedMessage(tick uint64, absorptions []service.Absorption) map[string]interface{} {
	events := make([]AbsorptionMessage, 0, len(absorptions))
	for _, a := range absorptions {
		events = append(events, AbsorptionMessage{
			Predator: uint32(a.Predator),
			Prey:     uint32(a.Prey),
			PreyKind: a.PreyKind.String(),
			Mass:     a.Mass,
		})
	}
	return map[string]interface{}{
		"type":   MessageTypeAbsorbed,
		"tick":   tick,
		"events": events,
	}
}
