package tower

// minPieceWidth — свесы уже этого значения не считаются отдельным куском.
const minPieceWidth = 0.1

// Span — горизонтальный отрезок [Left, Right].
type Span struct {
	Left  float64
	Right float64
}

// Width возвращает ширину отрезка. Для пустого пересечения значение <= 0.
func (s Span) Width() float64 { return s.Right - s.Left }

// Center возвращает середину отрезка.
func (s Span) Center() float64 { return (s.Left + s.Right) * 0.5 }

// Overlap вычисляет пересечение верхнего блока башни (prev) и активного блока (cur).
// Результат может иметь неположительную ширину, если блоки не пересекаются.
func Overlap(prev, cur Span) Span {
	return Span{
		Left:  max(prev.Left, cur.Left),
		Right: min(prev.Right, cur.Right),
	}
}

// Overhangs возвращает части cur, выступающие за пределы prev (0, 1 или 2 куска).
// Куски уже minPieceWidth отбрасываются.
func Overhangs(prev, cur Span) []Span {
	var out []Span
	if cur.Left < prev.Left {
		s := Span{Left: cur.Left, Right: min(prev.Left, cur.Right)}
		if s.Width() > minPieceWidth {
			out = append(out, s)
		}
	}
	if cur.Right > prev.Right {
		s := Span{Left: max(prev.Right, cur.Left), Right: cur.Right}
		if s.Width() > minPieceWidth {
			out = append(out, s)
		}
	}
	return out
}
