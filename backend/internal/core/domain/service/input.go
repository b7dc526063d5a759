package service

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"x-arena/backend/internal/core/domain/entity"
)

// horizontalDeadzone ввод по оси меньше порога не двигает персонажа
const horizontalDeadzone = 0.01

// InputParams сырой ввод клиента
type InputParams struct {
	Horizontal float64    // Ось платформера
	Direction  mgl64.Vec2 // Направление в режиме circle
	Action     bool       // Прыжок (удерживается, пока клиент не отпустит)
}

// PlayerInput проверенное намерение игрока
type PlayerInput struct {
	PlayerID   entity.PlayerID
	Horizontal float64
	Direction  mgl64.Vec2
	Action     bool
	Sequence   uint64
}

// InputValidator нормализует ввод клиентов и хранит последнее
// намерение каждого игрока
type InputValidator struct {
	mu       sync.Mutex
	inputs   map[entity.PlayerID]*PlayerInput
	limiters map[entity.PlayerID]*rate.Limiter

	limit rate.Limit
	burst int
	known func(entity.PlayerID) bool

	logger *log.Logger
	now    func() time.Time
}

// NewInputValidator создает валидатор. ratePerSecond <= 0 отключает ограничение частоты.
// known сообщает, существует ли запись игрока.
func NewInputValidator(ratePerSecond float64, burst int, known func(entity.PlayerID) bool, logger *log.Logger) *InputValidator {
	if logger == nil {
		logger = log.Default()
	}

	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &InputValidator{
		inputs:   make(map[entity.PlayerID]*PlayerInput),
		limiters: make(map[entity.PlayerID]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		known:    known,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit проверяет и сохраняет ввод. Некорректные значения исправляются,
// а не отклоняются. Ошибка означает, что ввод отброшен.
func (v *InputValidator) Submit(playerID entity.PlayerID, params InputParams) (PlayerInput, error) {
	input, _, err := v.SubmitWithUndo(playerID, params)
	return input, err
}

// SubmitWithUndo как Submit, но также возвращает шаг отмены. Он
// восстанавливает прежнее намерение и возвращает токен ограничителя.
func (v *InputValidator) SubmitWithUndo(playerID entity.PlayerID, params InputParams) (PlayerInput, func(), error) {
	if v.known != nil && !v.known(playerID) {
		v.logger.Printf("[InputValidator] ПРЕДУПРЕЖДЕНИЕ: ввод от неизвестного игрока %d", playerID)
		return PlayerInput{}, nil, fmt.Errorf("player %d: %w", playerID, ErrUnknownPlayer)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	limiter, hadLimiter := v.limiters[playerID]
	if !hadLimiter {
		limiter = rate.NewLimiter(v.limit, v.burst)
	}

	now := v.now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() || reservation.DelayFrom(now) > 0 {
		reservation.CancelAt(now)
		return PlayerInput{}, nil, fmt.Errorf("player %d: %w", playerID, ErrInputRateLimited)
	}
	v.limiters[playerID] = limiter

	input, exists := v.inputs[playerID]
	var previous PlayerInput
	if exists {
		previous = *input
	} else {
		input = &PlayerInput{PlayerID: playerID}
		v.inputs[playerID] = input
	}

	input.Horizontal = ClampAxis(params.Horizontal)
	input.Direction = ClampDirection(params.Direction)
	input.Action = params.Action
	input.Sequence++

	undo := func() {
		v.mu.Lock()
		defer v.mu.Unlock()

		if hadLimiter {
			reservation.CancelAt(now)
		} else if v.limiters[playerID] == limiter {
			delete(v.limiters, playerID)
		}

		if !exists {
			delete(v.inputs, playerID)
		} else if current, ok := v.inputs[playerID]; ok {
			*current = previous
		}
	}

	return *input, undo, nil
}

// Input возвращает последнее намерение игрока
func (v *InputValidator) Input(playerID entity.PlayerID) (PlayerInput, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	input, exists := v.inputs[playerID]
	if !exists {
		return PlayerInput{}, false
	}
	return *input, true
}

// Reset обнуляет намерение вышедшего игрока. Номер последовательности
// сохраняется, чтобы после переподключения он продолжал расти.
func (v *InputValidator) Reset(playerID entity.PlayerID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if input, exists := v.inputs[playerID]; exists {
		input.Horizontal = 0
		input.Direction = mgl64.Vec2{}
		input.Action = false
	}
	delete(v.limiters, playerID)
}

// ClampAxis ограничивает ось диапазоном [-1, 1]; NaN и бесконечность дают 0
func ClampAxis(value float64) float64 {
	value = finite(value)
	return mgl64.Clamp(value, -1, 1)
}

// ClampDirection нормализует вектор длиннее единицы
func ClampDirection(d mgl64.Vec2) mgl64.Vec2 {
	d = mgl64.Vec2{finite(d.X()), finite(d.Y())}

	// Очень большие компоненты переполняют Len
	if m := math.Max(math.Abs(d.X()), math.Abs(d.Y())); m > 1 {
		d = d.Mul(1 / m)
	}

	if l := d.Len(); l > 1 {
		d = d.Mul(1 / l)
		// Округление может дать длину чуть больше 1
		for d.Len() > 1 {
			d = d.Mul(1 - 1e-12)
		}
	}
	return d
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
