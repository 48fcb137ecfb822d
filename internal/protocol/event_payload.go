package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/tower-stack/internal/tower"
)

// EventDocument превращает событие движка в JSON-совместимый документ:
// поля события плюс "type" и "round".
func EventDocument(ev tower.Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", ev.GetType(), err)
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["type"] = ev.GetType().String()
	doc["round"] = ev.GetRound()
	return doc, nil
}

// EventPriority — приоритет конверта для back-pressure шины.
// Итоги раунда не должны теряться, движение и появление блоков — могут.
func EventPriority(t tower.EventType) int {
	switch t {
	case tower.EventTypeGameOver, tower.EventTypeBestUpdated:
		return 9
	case tower.EventTypeRoundStarted, tower.EventTypeMissed:
		return 7
	case tower.EventTypePlaced, tower.EventTypePaused, tower.EventTypeResumed:
		return 5
	default:
		return 2
	}
}
