package tower

import (
	"errors"
	"fmt"
)

// Tuning содержит все игровые константы одного движка.
// Значения по умолчанию совпадают с исходной версией игры.
type Tuning struct {
	FieldWidth  float64 `yaml:"field_width"`
	FieldHeight float64 `yaml:"field_height"`

	BaseWidth     float64 `yaml:"base_width"`      // ширина основания
	BlockHeight   float64 `yaml:"block_height"`    // высота каждого блока
	VerticalStep  float64 `yaml:"vertical_step"`   // шаг по вертикали между блоками
	MinBlockWidth float64 `yaml:"min_block_width"` // пересечение уже этого значения — промах

	MoveSpeed float64 `yaml:"move_speed"` // начальная горизонтальная скорость, px/s

	PerfectPx    float64 `yaml:"perfect_px"` // допуск "perfect" по смещению центра
	GoodPx       float64 `yaml:"good_px"`    // допуск "good"
	PerfectBonus int     `yaml:"perfect_bonus"`
	GoodBonus    int     `yaml:"good_bonus"`

	EdgePadding float64 `yaml:"edge_padding"`
	BaseYRatio  float64 `yaml:"base_y_ratio"` // Y основания как доля высоты поля
}

// DefaultTuning возвращает константы исходной игры.
func DefaultTuning() Tuning {
	return Tuning{
		FieldWidth:    720,
		FieldHeight:   1280,
		BaseWidth:     180,
		BlockHeight:   30,
		VerticalStep:  32,
		MinBlockWidth: 15,
		MoveSpeed:     350,
		PerfectPx:     3,
		GoodPx:        8,
		PerfectBonus:  5,
		GoodBonus:     2,
		EdgePadding:   20,
		BaseYRatio:    0.86,
	}
}

// ErrInvalidTuning возвращается Validate для некорректных констант.
var ErrInvalidTuning = errors.New("invalid tuning")

// Validate проверяет согласованность констант.
func (t Tuning) Validate() error {
	switch {
	case t.FieldWidth <= 0 || t.FieldHeight <= 0:
		return fmt.Errorf("%w: field %.0fx%.0f", ErrInvalidTuning, t.FieldWidth, t.FieldHeight)
	case t.BaseWidth <= 0:
		return fmt.Errorf("%w: base_width must be positive", ErrInvalidTuning)
	case t.BlockHeight <= 0 || t.VerticalStep <= 0:
		return fmt.Errorf("%w: block_height and vertical_step must be positive", ErrInvalidTuning)
	case t.MinBlockWidth <= 0:
		// нулевой порог допустил бы блок нулевой ширины
		return fmt.Errorf("%w: min_block_width must be positive", ErrInvalidTuning)
	case t.MinBlockWidth > t.BaseWidth:
		return fmt.Errorf("%w: min_block_width %.1f exceeds base_width %.1f", ErrInvalidTuning, t.MinBlockWidth, t.BaseWidth)
	case t.MoveSpeed < 0:
		return fmt.Errorf("%w: move_speed must not be negative", ErrInvalidTuning)
	case t.PerfectPx < 0 || t.GoodPx < 0:
		return fmt.Errorf("%w: tolerances must not be negative", ErrInvalidTuning)
	case t.PerfectBonus < 0 || t.GoodBonus < 0:
		return fmt.Errorf("%w: bonuses must not be negative", ErrInvalidTuning)
	case t.EdgePadding < 0:
		return fmt.Errorf("%w: edge_padding must not be negative", ErrInvalidTuning)
	case t.BaseYRatio <= 0 || t.BaseYRatio > 1:
		return fmt.Errorf("%w: base_y_ratio must be in (0,1]", ErrInvalidTuning)
	}
	return nil
}
