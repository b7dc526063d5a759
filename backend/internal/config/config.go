package config

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Mode режим игры, определяет стратегию движения
type Mode string

const (
	ModeCircle     Mode = "circle"     // Вид сверху, поглощение массы
	ModePlatformer Mode = "platformer" // Платформер с физикой
)

// ErrConfigMissing возвращается, если конфигурация не передана
var ErrConfigMissing = errors.New("config not initialized")

// Config содержит размеры мира и игровые константы.
// Создается один раз при старте и дальше только читается.
type Config struct {
	Mode Mode

	// Мир
	WorldSize float64

	// Еда
	FoodMassMin     int
	FoodMassMax     int
	TargetFoodCount int

	// Игрок
	StartPlayerMass  float64
	StartPlayerSpeed float64 // Смещение за тик в режиме circle
	PlayerMoveSpeed  float64 // Горизонтальная скорость в платформере
	PlayerJumpForce  float64
	PlayerSpawnY     float64 // Высота появления в платформере
	PlayerSpawnInset float64 // Отступ от краев мира при появлении

	// Механика поглощения
	MinimumSafeMassRatio float64

	// Интервалы таймеров
	FoodSpawnInterval time.Duration
	MovementInterval  time.Duration // Тик движения в режиме circle
	PhysicsInterval   time.Duration // Тик физики в режиме platformer
	BroadcastInterval time.Duration

	// Анти-чит: ограничение частоты ввода (0 = без ограничения)
	InputRateLimit float64
	InputBurst     int

	// Сид генератора случайных чисел (0 = от времени)
	Seed uint64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Mode:      ModeCircle,
		WorldSize: 1000,

		FoodMassMin:     2,
		FoodMassMax:     4,
		TargetFoodCount: 600,

		StartPlayerMass:  15,
		StartPlayerSpeed: 10,
		PlayerMoveSpeed:  5,
		PlayerJumpForce:  12,
		PlayerSpawnY:     100,
		PlayerSpawnInset: 100,

		MinimumSafeMassRatio: 0.85,

		FoodSpawnInterval: 500 * time.Millisecond,
		MovementInterval:  50 * time.Millisecond,
		PhysicsInterval:   20 * time.Millisecond, // 50 Гц
		BroadcastInterval: 100 * time.Millisecond,

		InputRateLimit: 60,
		InputBurst:     30,
	}
}

// TickInterval возвращает интервал тика движения для текущего режима
func (c *Config) TickInterval() time.Duration {
	if c.Mode == ModePlatformer {
		return c.PhysicsInterval
	}
	return c.MovementInterval
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigMissing
	}

	switch c.Mode {
	case ModeCircle, ModePlatformer:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.WorldSize <= 0 {
		return fmt.Errorf("world size must be positive, got %v", c.WorldSize)
	}
	if c.FoodMassMin <= 0 || c.FoodMassMax < c.FoodMassMin {
		return fmt.Errorf("invalid food mass range [%d, %d]", c.FoodMassMin, c.FoodMassMax)
	}
	if c.TargetFoodCount < 0 {
		return fmt.Errorf("target food count must not be negative, got %d", c.TargetFoodCount)
	}
	if c.StartPlayerMass <= 0 {
		return fmt.Errorf("start player mass must be positive, got %v", c.StartPlayerMass)
	}
	if c.MinimumSafeMassRatio <= 0 || c.MinimumSafeMassRatio > 1 {
		return fmt.Errorf("minimum safe mass ratio must be in (0, 1], got %v", c.MinimumSafeMassRatio)
	}
	if c.FoodSpawnInterval <= 0 || c.MovementInterval <= 0 || c.PhysicsInterval <= 0 {
		return fmt.Errorf("timer intervals must be positive")
	}
	if c.InputRateLimit < 0 || c.InputBurst < 0 {
		return fmt.Errorf("input rate limit must not be negative")
	}

	return nil
}

// BindFlags регистрирует флаги командной строки поверх значений c
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.Func("mode", "game mode: circle or platformer (default "+string(c.Mode)+")", func(v string) error {
		c.Mode = Mode(v)
		return nil
	})
	fs.Float64Var(&c.WorldSize, "world-size", c.WorldSize, "world edge length")
	fs.IntVar(&c.TargetFoodCount, "target-food", c.TargetFoodCount, "food entities kept in the world")
	fs.IntVar(&c.FoodMassMin, "food-mass-min", c.FoodMassMin, "minimum food mass")
	fs.IntVar(&c.FoodMassMax, "food-mass-max", c.FoodMassMax, "maximum food mass")
	fs.Float64Var(&c.StartPlayerMass, "start-mass", c.StartPlayerMass, "player start mass")
	fs.Float64Var(&c.MinimumSafeMassRatio, "safe-mass-ratio", c.MinimumSafeMassRatio, "mass ratio below which the smaller entity is eliminated")
	fs.DurationVar(&c.FoodSpawnInterval, "food-interval", c.FoodSpawnInterval, "food spawn interval")
	fs.DurationVar(&c.MovementInterval, "move-interval", c.MovementInterval, "circle mode movement interval")
	fs.DurationVar(&c.PhysicsInterval, "physics-interval", c.PhysicsInterval, "platformer physics interval")
	fs.DurationVar(&c.BroadcastInterval, "broadcast-interval", c.BroadcastInterval, "snapshot broadcast interval")
	fs.Float64Var(&c.InputRateLimit, "input-rate", c.InputRateLimit, "accepted inputs per second per player (0 = unlimited)")
	fs.IntVar(&c.InputBurst, "input-burst", c.InputBurst, "input burst size per player")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 = time based)")
}
