package tower

import "fmt"

// OutcomeKind — результат команды Drop
type OutcomeKind uint8

const (
	OutcomeIgnored OutcomeKind = iota // нет активного блока, ввод заблокирован, пауза или конец игры
	OutcomePerfect                    // смещение в пределах PerfectPx, блок встаёт точно
	OutcomeGood                       // блок обрезан по пересечению
	OutcomeMiss                       // промах, раунд окончен
)

var outcomeNames = [...]string{
	OutcomeIgnored: "ignored",
	OutcomePerfect: "perfect",
	OutcomeGood:    "good",
	OutcomeMiss:    "miss",
}

func (k OutcomeKind) String() string {
	if int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return "unknown"
}

// MarshalText позволяет сериализовать OutcomeKind строкой в JSON.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText разбирает строковое представление.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*k = OutcomeKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", text)
}

// DropOutcome описывает результат установки блока.
type DropOutcome struct {
	Kind        OutcomeKind `json:"kind"`
	ScoreDelta  int         `json:"score_delta"`
	Combo       int         `json:"combo"`
	Offset      float64     `json:"offset"`       // смещение центра относительно блока ниже
	InTolerance bool        `json:"in_tolerance"` // смещение в пределах GoodPx
	Placed      *Block      `json:"placed,omitempty"`
	Overhang    []Piece     `json:"overhang,omitempty"`
}

// Accepted сообщает, был ли блок поставлен на башню.
func (o DropOutcome) Accepted() bool {
	return o.Kind == OutcomePerfect || o.Kind == OutcomeGood
}
