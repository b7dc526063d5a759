package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"x-arena/backend/internal/core/domain/entity"
	"x-arena/backend/internal/core/domain/service"
	"x-arena/backend/internal/core/port/in/arena"
)

const (
	// IdentityParam параметр запроса с постоянной идентичностью клиента
	IdentityParam = "identity"

	DefaultWriteTimeout = 5 * time.Second
	maxMessageSize      = 4096
)

// client одно подключение
type client struct {
	identity entity.Identity
	writer   *SafeWriter
}

type messageHandler func(c *client, msg ClientMessage) error

// WSAdapter адаптер для WebSocket соединений: переводит сообщения клиентов
// в вызовы ArenaPort и рассылает снимки мира.
type WSAdapter struct {
	upgrader websocket.Upgrader
	arena    arena.ArenaPort
	handlers map[string]messageHandler

	clients   map[entity.Identity]*client // Для хранения активных клиентов
	clientsMu sync.RWMutex

	connCounter  atomic.Uint64
	sentFrames   atomic.Uint64
	writeErrors  atomic.Uint64
	writeTimeout time.Duration

	logger *log.Logger
}

// NewWSAdapter создает новый экземпляр WSAdapter
func NewWSAdapter(port arena.ArenaPort, logger *log.Logger) *WSAdapter {
	if logger == nil {
		logger = log.Default()
	}

	a := &WSAdapter{
		arena: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:      make(map[entity.Identity]*client),
		writeTimeout: DefaultWriteTimeout,
		logger:       logger,
	}
	a.registerHandlers()
	return a
}

// registerHandlers регистрирует обработчики сообщений
func (a *WSAdapter) registerHandlers() {
	a.handlers = map[string]messageHandler{
		MessageTypeJoin:  a.handleJoin,
		MessageTypeInput: a.handleInput,
		MessageTypePing:  a.handlePing,
	}
}

func (a *WSAdapter) handleJoin(c *client, msg ClientMessage) error {
	entityID, err := a.arena.OnPlayerJoin(c.identity, msg.Name)
	if err != nil {
		_ = c.writer.WriteJSON(NewErrorMessage("join failed"))
		return fmt.Errorf("join: %w", err)
	}
	return c.writer.WriteJSON(NewJoinedMessage(entityID))
}

func (a *WSAdapter) handleInput(c *client, msg ClientMessage) error {
	params := service.InputParams{
		Horizontal: msg.Horizontal,
		Action:     msg.Action,
	}
	if msg.Direction != nil {
		params.Direction[0] = msg.Direction.X
		params.Direction[1] = msg.Direction.Y
	}

	input, err := a.arena.SubmitInput(c.identity, params)
	switch {
	case errors.Is(err, service.ErrInputRateLimited):
		// Лишний ввод молча отбрасывается, клиенту не отвечаем
		return nil
	case err != nil:
		_ = c.writer.WriteJSON(NewErrorMessage("input rejected"))
		return fmt.Errorf("input: %w", err)
	}
	return c.writer.WriteJSON(NewInputAckMessage(input.Sequence))
}

func (a *WSAdapter) handlePing(c *client, msg ClientMessage) error {
	clientTime := msg.ClientTime
	if clientTime == 0 {
		clientTime = float64(GetCurrentServerTime())
	}
	return c.writer.WriteJSON(NewPongMessage(clientTime))
}

// identityFor берет идентичность из запроса или выдает новую
func (a *WSAdapter) identityFor(r *http.Request) entity.Identity {
	if id := r.URL.Query().Get(IdentityParam); id != "" {
		return entity.Identity(id)
	}
	return entity.Identity(fmt.Sprintf("conn-%d", a.connCounter.Add(1)))
}

// HandleWS обрабатывает WebSocket соединения
func (a *WSAdapter) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity := a.identityFor(r)

	a.clientsMu.RLock()
	_, busy := a.clients[identity]
	a.clientsMu.RUnlock()
	if busy {
		http.Error(w, "identity already connected", http.StatusConflict)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("[WSAdapter] Ошибка при установке WebSocket соединения: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{identity: identity, writer: NewSafeWriter(conn, a.writeTimeout)}

	// Регистрация под блокировкой, чтобы два соединения с одной идентичностью не прошли одновременно
	a.clientsMu.Lock()
	if _, exists := a.clients[identity]; exists {
		a.clientsMu.Unlock()
		_ = c.writer.WriteJSON(NewErrorMessage("identity already connected"))
		_ = c.writer.Close()
		return
	}
	a.clients[identity] = c
	a.clientsMu.Unlock()

	defer a.dropClient(c)

	player, err := a.arena.OnPlayerConnect(identity)
	if err != nil {
		a.logger.Printf("[WSAdapter] Ошибка подключения %s: %v", identity, err)
		return
	}

	snapshot := a.arena.Snapshot()
	if err := c.writer.WriteJSON(NewWelcomeMessage(player, string(snapshot.Mode), snapshot.WorldSize)); err != nil {
		a.logger.Printf("[WSAdapter] Ошибка отправки приветствия %s: %v", identity, err)
		return
	}

	a.logger.Printf("[WSAdapter] Подключен %s (игрок %d) с %s", identity, player.ID, conn.RemoteAddr())

	// Обрабатываем входящие сообщения
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Printf("[WSAdapter] Ошибка чтения %s: %v", identity, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			a.logger.Printf("[WSAdapter] Некорректное сообщение от %s: %v", identity, err)
			_ = c.writer.WriteJSON(NewErrorMessage("malformed message"))
			continue
		}

		handler, ok := a.handlers[msg.Type]
		if !ok {
			a.logger.Printf("[WSAdapter] Нет обработчика для типа сообщения: %q", msg.Type)
			_ = c.writer.WriteJSON(NewErrorMessage("unknown message type"))
			continue
		}

		if err := handler(c, msg); err != nil {
			a.logger.Printf("[WSAdapter] Ошибка обработки сообщения %s от %s: %v", msg.Type, identity, err)
		}
	}
}

// dropClient сообщает ядру об отключении и только затем освобождает
// идентичность: до этого повторное подключение получает 409.
func (a *WSAdapter) dropClient(c *client) {
	if err := a.arena.OnPlayerDisconnect(c.identity); err != nil && !errors.Is(err, service.ErrPlayerNotFound) {
		a.logger.Printf("[WSAdapter] Ошибка отключения %s: %v", c.identity, err)
	}

	a.clientsMu.Lock()
	if a.clients[c.identity] == c {
		delete(a.clients, c.identity)
	}
	a.clientsMu.Unlock()
	_ = c.writer.Close()

	a.logger.Printf("[WSAdapter] Отключен %s", c.identity)
}

// snapshotClients копия списка клиентов для рассылки без удержания блокировки
func (a *WSAdapter) snapshotClients() []*client {
	a.clientsMu.RLock()
	defer a.clientsMu.RUnlock()

	result := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		result = append(result, c)
	}
	return result
}

// BroadcastSnapshot кодирует снимок один раз и отправляет всем клиентам
func (a *WSAdapter) BroadcastSnapshot(snapshot service.WorldSnapshot) error {
	data, err := EncodeSnapshot(snapshot, GetCurrentServerTime())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	for _, c := range a.snapshotClients() {
		if err := c.writer.WriteBinary(data); err != nil {
			a.writeErrors.Add(1)
			a.logger.Printf("[WSAdapter] Ошибка при отправке снимка %s: %v", c.identity, err)
			continue
		}
		a.sentFrames.Add(1)
	}
	return nil
}

// PublishAbsorptions отправляет всем клиентам события поглощения
func (a *WSAdapter) PublishAbsorptions(tick uint64, absorptions []service.Absorption) error {
	message := NewAbsorbedMessage(tick, absorptions)

	var failed int
	for _, c := range a.snapshotClients() {
		if err := c.writer.WriteJSON(message); err != nil {
			a.writeErrors.Add(1)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("absorbed events not delivered to %d clients", failed)
	}
	return nil
}

// ClientCount количество подключенных клиентов
func (a *WSAdapter) ClientCount() int {
	a.clientsMu.RLock()
	defer a.clientsMu.RUnlock()
	return len(a.clients)
}

// CloseAll закрывает все соединения; обработчики сами сообщат об отключении
func (a *WSAdapter) CloseAll() {
	for _, c := range a.snapshotClients() {
		_ = c.writer.Close()
	}
}

// GetStats статистика адаптера
func (a *WSAdapter) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"clients":      a.ClientCount(),
		"sent_frames":  a.sentFrames.Load(),
		"write_errors": a.writeErrors.Load(),
	}
}
