package tower

import "fmt"

// Названия политик сложности, используемые в конфигурации.
const (
	PolicyFrozen = "frozen"
	PolicyRamp   = "ramp"
)

// DifficultyPolicy определяет, как меняется скорость после каждой установки.
// Реализация обязана быть детерминированной: одна и та же последовательность
// установок даёт одну и ту же скорость.
type DifficultyPolicy interface {
	Name() string
	// NextSpeed возвращает скорость после установки номер placements (с 1).
	NextSpeed(current float64, placements int) float64
}

// FrozenSpeed — скорость не меняется, сложность растёт только за счёт
// сужения блоков при обрезке. Политика по умолчанию.
type FrozenSpeed struct{}

func (FrozenSpeed) Name() string { return PolicyFrozen }

func (FrozenSpeed) NextSpeed(current float64, _ int) float64 { return current }

// RampSpeed увеличивает скорость на Step каждые Every установок, но не выше Max.
type RampSpeed struct {
	Step  float64
	Every int
	Max   float64
}

// DefaultRampSpeed — +40 px/s каждые 5 блоков, потолок 800 px/s.
func DefaultRampSpeed() RampSpeed {
	return RampSpeed{Step: 40, Every: 5, Max: 800}
}

func (r RampSpeed) Name() string { return PolicyRamp }

func (r RampSpeed) NextSpeed(current float64, placements int) float64 {
	every := r.Every
	if every <= 0 {
		every = 1
	}
	if placements <= 0 || placements%every != 0 {
		return current
	}
	next := current + r.Step
	if next > r.Max {
		next = r.Max
	}
	// скорость никогда не уменьшается, даже если Max ниже начальной
	if next < current {
		return current
	}
	return next
}

// PolicyByName возвращает политику по имени из конфигурации.
// Пустое имя означает политику по умолчанию.
func PolicyByName(name string) (DifficultyPolicy, error) {
	switch name {
	case "", PolicyFrozen:
		return FrozenSpeed{}, nil
	case PolicyRamp:
		return DefaultRampSpeed(), nil
	default:
		return nil, fmt.Errorf("unknown difficulty policy %q", name)
	}
}

// PerfectPoints — очки за идеальную установку при уже увеличенном combo.
func PerfectPoints(t Tuning, combo int) int {
	return 1 + t.PerfectBonus + combo/3
}

// PlacementPoints — очки за обрезанную установку.
func PlacementPoints(t Tuning, inTolerance bool) int {
	if inTolerance {
		return 1 + t.GoodBonus
	}
	return 1
}
