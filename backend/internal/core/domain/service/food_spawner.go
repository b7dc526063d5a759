package service

import (
	"fmt"
	"log"
	"math/rand/v2"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/entity"
)

// FoodSpawner поддерживает плотность еды в мире
type FoodSpawner struct {
	cfg    *config.Config
	store  *entity.Store
	rng    *rand.Rand
	logger *log.Logger

	spawnedTotal atomic.Uint64
}

// NewFoodSpawner создает спавнер еды
func NewFoodSpawner(cfg *config.Config, store *entity.Store, rng *rand.Rand, logger *log.Logger) *FoodSpawner {
	if logger == nil {
		logger = log.Default()
	}
	return &FoodSpawner{cfg: cfg, store: store, rng: rng, logger: logger}
}

// Spawn создает еду, пока ее количество не достигнет TargetFoodCount.
// Никогда не превышает цель. Возвращает число созданных сущностей.
func (fs *FoodSpawner) Spawn() (int, error) {
	spawned := 0
	for count := fs.store.Count(entity.KindFood); count < fs.cfg.TargetFoodCount; count++ {
		if _, err := fs.createRandomFood(); err != nil {
			return spawned, err
		}
		spawned++
	}

	if spawned > 0 {
		fs.spawnedTotal.Add(uint64(spawned))
		fs.logger.Printf("[FoodSpawner] Создано еды: %d, в мире: %d/%d",
			spawned, fs.store.Count(entity.KindFood), fs.cfg.TargetFoodCount)
	}
	return spawned, nil
}

// SpawnedTotal сколько еды создано за все время
func (fs *FoodSpawner) SpawnedTotal() uint64 {
	return fs.spawnedTotal.Load()
}

// createRandomFood масса целая в [FoodMassMin, FoodMassMax], позиция внутри мира
func (fs *FoodSpawner) createRandomFood() (entity.EntityID, error) {
	mass := float64(fs.cfg.FoodMassMin + fs.rng.IntN(fs.cfg.FoodMassMax-fs.cfg.FoodMassMin+1))
	r := entity.MassToRadius(mass)
	ws := fs.cfg.WorldSize

	pos := mgl64.Vec2{randomRange(fs.rng, r, ws-r), randomRange(fs.rng, r, ws-r)}

	id, err := fs.store.Create(pos, mass, entity.KindFood)
	if err != nil {
		return 0, fmt.Errorf("spawn food: %w", err)
	}
	return id, nil
}
