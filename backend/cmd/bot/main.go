package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"x-arena/backend/internal/adapter/in/ws"
)

// Bot нагрузочный клиент арены
type Bot struct {
	ID          string
	ServerURL   string
	Pattern     string
	Duration    time.Duration
	CommandRate time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex
	running atomic.Bool

	entityID atomic.Uint32 // ID сущности игрока в мире
	Stats    BotStats
}

// BotStats содержит статистику работы бота
type BotStats struct {
	InputsSent        atomic.Int64
	InputsAcked       atomic.Int64
	SnapshotsReceived atomic.Int64
	Absorptions       atomic.Int64
	Errors            atomic.Int64
	LastTick          atomic.Uint64
	StartTime         time.Time
}

// NewBot создает нового бота
func NewBot(id, serverURL, pattern string, duration, commandRate time.Duration) *Bot {
	return &Bot{
		ID:          id,
		ServerURL:   serverURL,
		Pattern:     pattern,
		Duration:    duration,
		CommandRate: commandRate,
		Stats: BotStats{
			StartTime: time.Now(),
		},
	}
}

// Connect подключается к серверу под постоянной идентичностью бота
func (b *Bot) Connect() error {
	u, err := url.Parse(b.ServerURL)
	if err != nil {
		return fmt.Errorf("неверный URL: %w", err)
	}
	q := u.Query()
	q.Set(ws.IdentityParam, b.ID)
	u.RawQuery = q.Encode()

	log.Printf("[Bot %s] Подключение к %s", b.ID, u.String())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("ошибка подключения: %w", err)
	}

	b.conn = conn
	b.running.Store(true)

	log.Printf("[Bot %s] Успешно подключен", b.ID)
	return nil
}

// Disconnect отключается от сервера
func (b *Bot) Disconnect() {
	if b.running.CompareAndSwap(true, false) {
		b.conn.Close()
		log.Printf("[Bot %s] Отключен", b.ID)
	}
}

func (b *Bot) send(msg ws.ClientMessage) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(msg)
}

// generateDirection вектор направления в зависимости от паттерна
func (b *Bot) generateDirection() ws.Vec2Message {
	elapsed := time.Since(b.Stats.StartTime).Seconds()

	switch b.Pattern {
	case "circle":
		angle := elapsed * 0.5
		return ws.Vec2Message{X: math.Cos(angle), Y: math.Sin(angle)}
	case "linear":
		// Движение вперед-назад по оси X
		return ws.Vec2Message{X: math.Sin(elapsed * 0.3)}
	default: // "random"
		angle := rand.Float64() * 2 * math.Pi
		return ws.Vec2Message{X: math.Cos(angle), Y: math.Sin(angle)}
	}
}

// sendInput отправляет ввод: направление для circle, ось и прыжок для платформера
func (b *Bot) sendInput() error {
	if b.entityID.Load() == 0 {
		return nil // Ждем подтверждения входа
	}

	direction := b.generateDirection()
	msg := ws.ClientMessage{
		Type:       ws.MessageTypeInput,
		Horizontal: direction.X,
		Direction:  &direction,
		Action:     rand.Float64() < 0.1,
	}

	if err := b.send(msg); err != nil {
		return err
	}
	b.Stats.InputsSent.Add(1)
	return nil
}

func (b *Bot) handleMessage(messageType int, data []byte) {
	if messageType == websocket.BinaryMessage {
		frame, err := ws.DecodeSnapshot(data)
		if err != nil {
			b.Stats.Errors.Add(1)
			return
		}
		b.Stats.SnapshotsReceived.Add(1)
		b.Stats.LastTick.Store(frame.Tick)
		return
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		b.Stats.Errors.Add(1)
		return
	}

	switch msg["type"] {
	case ws.MessageTypeWelcome:
		log.Printf("[Bot %s] Игрок %v, режим %v", b.ID, msg["player_id"], msg["mode"])
		if err := b.send(ws.ClientMessage{Type: ws.MessageTypeJoin, Name: b.ID}); err != nil {
			log.Printf("[Bot %s] Ошибка входа: %v", b.ID, err)
		}
	case ws.MessageTypeJoined:
		if id, ok := msg["entity_id"].(float64); ok {
			b.entityID.Store(uint32(id))
			log.Printf("[Bot %s] Вошел в игру, сущность %d", b.ID, uint32(id))
		}
	case ws.MessageTypeInputAck:
		b.Stats.InputsAcked.Add(1)
	case ws.MessageTypeAbsorbed:
		if events, ok := msg["events"].([]interface{}); ok {
			b.Stats.Absorptions.Add(int64(len(events)))
		}
	case ws.MessageTypePong:
		if clientTime, ok := msg["client_time"].(float64); ok {
			rtt := time.Now().UnixMilli() - int64(clientTime)
			log.Printf("[Bot %s] RTT: %dms", b.ID, rtt)
		}
	case ws.MessageTypeError:
		b.Stats.Errors.Add(1)
		log.Printf("[Bot %s] Ошибка сервера: %v", b.ID, msg["message"])
	}
}

// Run запускает бота
func (b *Bot) Run() error {
	if err := b.Connect(); err != nil {
		return err
	}
	defer b.Disconnect()

	// Запускаем горутину для чтения сообщений
	go func() {
		for b.running.Load() {
			messageType, data, err := b.conn.ReadMessage()
			if err != nil {
				if b.running.Load() {
					log.Printf("[Bot %s] Ошибка чтения сообщения: %v", b.ID, err)
					b.Stats.Errors.Add(1)
					b.Disconnect()
				}
				return
			}
			b.handleMessage(messageType, data)
		}
	}()

	commandTicker := time.NewTicker(b.CommandRate)
	defer commandTicker.Stop()
	pingTicker := time.NewTicker(5 * time.Second)
	defer pingTicker.Stop()

	endTime := time.Now().Add(b.Duration)

	for b.running.Load() && time.Now().Before(endTime) {
		select {
		case <-commandTicker.C:
			if err := b.sendInput(); err != nil {
				log.Printf("[Bot %s] Ошибка отправки ввода: %v", b.ID, err)
				b.Stats.Errors.Add(1)
			}
		case <-pingTicker.C:
			ping := ws.ClientMessage{Type: ws.MessageTypePing, ClientTime: float64(time.Now().UnixMilli())}
			if err := b.send(ping); err != nil {
				log.Printf("[Bot %s] Ошибка отправки ping: %v", b.ID, err)
			}
		}
	}

	log.Printf("[Bot %s] Завершение работы", b.ID)
	return nil
}

// PrintStats выводит статистику бота
func (b *Bot) PrintStats() {
	duration := time.Since(b.Stats.StartTime)
	sent := b.Stats.InputsSent.Load()

	log.Printf("[Bot %s] Статистика:", b.ID)
	log.Printf("  Время работы: %v", duration.Round(time.Millisecond))
	log.Printf("  Ввода отправлено: %d, подтверждено: %d", sent, b.Stats.InputsAcked.Load())
	log.Printf("  Снимков получено: %d (последний тик %d)", b.Stats.SnapshotsReceived.Load(), b.Stats.LastTick.Load())
	log.Printf("  Поглощений увидено: %d", b.Stats.Absorptions.Load())
	log.Printf("  Ошибок: %d", b.Stats.Errors.Load())
	if sent > 0 {
		log.Printf("  Частота ввода: %.2f/сек", float64(sent)/duration.Seconds())
	}
}

func main() {
	var (
		serverURL   = flag.String("url", "ws://localhost:8080/ws", "URL WebSocket сервера")
		botID       = flag.String("id", "bot", "префикс ID ботов")
		count       = flag.Int("count", 1, "количество ботов")
		pattern     = flag.String("pattern", "random", "Паттерн движения (random, circle, linear)")
		duration    = flag.Duration("duration", 30*time.Second, "Длительность работы бота")
		commandRate = flag.Duration("rate", 100*time.Millisecond, "Частота отправки ввода")
	)
	flag.Parse()

	bots := make([]*Bot, 0, *count)
	for i := 1; i <= *count; i++ {
		bots = append(bots, NewBot(fmt.Sprintf("%s%d", *botID, i), *serverURL, *pattern, *duration, *commandRate))
	}

	// Обработка сигналов для корректного завершения
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		log.Printf("Получен сигнал прерывания, завершение работы...")
		for _, bot := range bots {
			bot.Disconnect()
		}
	}()

	var wg sync.WaitGroup
	for _, bot := range bots {
		wg.Add(1)
		go func(bot *Bot) {
			defer wg.Done()
			if err := bot.Run(); err != nil {
				log.Printf("[Bot %s] Ошибка: %v", bot.ID, err)
			}
		}(bot)
	}
	wg.Wait()

	for _, bot := range bots {
		bot.PrintStats()
	}
}
