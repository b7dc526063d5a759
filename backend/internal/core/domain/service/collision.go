package service

import (
	"x-arena/backend/internal/core/domain/entity"
)

// Absorption одно поглощение за тик
type Absorption struct {
	Predator entity.EntityID
	Prey     entity.EntityID
	PreyKind entity.Kind
	Mass     float64 // Масса, перешедшая к хищнику (включая накопленную жертвой за тик)
}

// Outcome результат разрешения коллизий, применяется одним пакетом
type Outcome struct {
	Deleted     []entity.EntityID
	MassGain    map[entity.EntityID]float64
	Absorptions []Absorption
}

// Empty true, если за тик ничего не произошло
func (o Outcome) Empty() bool {
	return len(o.Deleted) == 0 && len(o.MassGain) == 0
}

// CollisionResolver определяет поглощения между парами сущностей.
// Полный перебор пар: O(n²), приемлемо при целевом числе сущностей.
type CollisionResolver struct {
	minimumSafeMassRatio float64
}

// NewCollisionResolver создает резолвер с порогом безопасного отношения масс
func NewCollisionResolver(minimumSafeMassRatio float64) *CollisionResolver {
	return &CollisionResolver{minimumSafeMassRatio: minimumSafeMassRatio}
}

// Overlapping пересечение с допуском по большему радиусу:
// d² <= max(rA, rB)². Меньшая сущность поглощается чуть раньше касания краев.
func Overlapping(a, b entity.Entity) bool {
	d := a.Position.Sub(b.Position)
	r := max(a.Radius(), b.Radius())
	return d.Dot(d) <= r*r
}

// Resolve перебирает пары снимка в порядке ID. Сравнения используют только
// значения снимка; поглощенная сущность больше не участвует в тике,
// а масса, набранная ею раньше в этом тике, переходит к ее поглотителю.
// owners сопоставляет сущности игроков их владельцам.
func (r *CollisionResolver) Resolve(snapshot []entity.Entity, owners map[entity.EntityID]entity.PlayerID) Outcome {
	out := Outcome{MassGain: make(map[entity.EntityID]float64)}
	consumed := make(map[entity.EntityID]bool)

	for i := 0; i < len(snapshot); i++ {
		a := snapshot[i]
		if consumed[a.ID] {
			continue
		}

		for j := i + 1; j < len(snapshot); j++ {
			if consumed[a.ID] {
				break
			}
			b := snapshot[j]
			if consumed[b.ID] {
				continue
			}

			predator, prey, ok := r.match(a, b, owners)
			if !ok || !Overlapping(a, b) {
				continue
			}

			transferred := prey.Mass + out.MassGain[prey.ID]
			delete(out.MassGain, prey.ID)
			out.MassGain[predator.ID] += transferred

			consumed[prey.ID] = true
			out.Deleted = append(out.Deleted, prey.ID)
			out.Absorptions = append(out.Absorptions, Absorption{
				Predator: predator.ID,
				Prey:     prey.ID,
				PreyKind: prey.Kind,
				Mass:     transferred,
			})
		}
	}

	return out
}

// match определяет, кто кого может поглотить, независимо от расстояния
func (r *CollisionResolver) match(a, b entity.Entity, owners map[entity.EntityID]entity.PlayerID) (predator, prey entity.Entity, ok bool) {
	switch {
	case a.Kind == entity.KindFood && b.Kind == entity.KindFood:
		return entity.Entity{}, entity.Entity{}, false

	case a.Kind == entity.KindFood:
		if !b.Kind.IsActor() {
			return entity.Entity{}, entity.Entity{}, false
		}
		return b, a, true

	case b.Kind == entity.KindFood:
		if !a.Kind.IsActor() {
			return entity.Entity{}, entity.Entity{}, false
		}
		return a, b, true

	case a.Kind.IsActor() && b.Kind.IsActor():
		return r.matchActors(a, b, owners)

	default:
		return entity.Entity{}, entity.Entity{}, false
	}
}

// matchActors правило поглощения между сущностями разных игроков
func (r *CollisionResolver) matchActors(a, b entity.Entity, owners map[entity.EntityID]entity.PlayerID) (predator, prey entity.Entity, ok bool) {
	ownerA, okA := owners[a.ID]
	ownerB, okB := owners[b.ID]
	if !okA || !okB || ownerA == ownerB {
		return entity.Entity{}, entity.Entity{}, false
	}

	larger, smaller := a, b
	if b.Mass > a.Mass {
		larger, smaller = b, a
	}

	if smaller.Mass/larger.Mass >= r.minimumSafeMassRatio {
		return entity.Entity{}, entity.Entity{}, false
	}
	return larger, smaller, true
}
