package tower

// Block представляет прямоугольный блок башни или активный (движущийся) блок.
// Координаты задаются в пикселях игрового поля, Y растёт вниз.
type Block struct {
	CenterX    float64 `json:"center_x"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Y          float64 `json:"y"`
	ColorIndex int     `json:"color_index"`
}

// Left возвращает левую границу блока.
func (b Block) Left() float64 { return b.CenterX - b.Width*0.5 }

// Right возвращает правую границу блока.
func (b Block) Right() float64 { return b.CenterX + b.Width*0.5 }

// Span возвращает горизонтальный отрезок, занимаемый блоком.
func (b Block) Span() Span { return Span{Left: b.Left(), Right: b.Right()} }

// Piece — отрезанный свес, который падает вниз. Движок не отслеживает его
// дальнейшую судьбу: геометрия передаётся презентеру только для анимации.
type Piece struct {
	CenterX    float64 `json:"center_x"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Y          float64 `json:"y"`
	ColorIndex int     `json:"color_index"`
}

// pieceFromSpan строит падающий кусок из отрезка, наследуя Y, высоту и цвет блока.
func pieceFromSpan(s Span, from Block) Piece {
	return Piece{
		CenterX:    s.Center(),
		Width:      s.Width(),
		Height:     from.Height,
		Y:          from.Y,
		ColorIndex: from.ColorIndex,
	}
}

// Palette — цвета блоков (0xRRGGBB). ColorIndex блока индексирует этот срез.
var Palette = []uint32{
	0x00d2ff, // Cyan
	0x3a86ff, // Blue
	0x8338ec, // Purple
	0xff006e, // Pink
	0xfb5607, // Orange
	0xffbe0b, // Yellow
	0x06ffa5, // Mint
	0xff1654, // Red
	0x00f5ff, // Sky blue
	0xb5179e, // Magenta
}
