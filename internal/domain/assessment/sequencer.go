package assessment

import (
	"github.com/onboard/onboard/internal/domain/catalog"
)

// NextQuestion returns the first question of the layer, in document order,
// that is unanswered, not already skipped and currently visible. It also
// returns the ids it passed over because their visibility rules failed; the
// caller records them as skipped so they are never asked later. A nil
// question means the layer is exhausted or one of its completion rules holds.
func NextQuestion(layer *catalog.Layer, rec *Record, skipped map[string]bool) (*catalog.Question, []string) {
	if Any(layer.CompleteWhen, rec) {
		return nil, nil
	}
	var hidden []string
	for i := range layer.Questions {
		q := &layer.Questions[i]
		if rec.Answered(q.ID) || skipped[q.ID] {
			continue
		}
		if !All(q.Conditions, rec) {
			hidden = append(hidden, q.ID)
			continue
		}
		return q, hidden
	}
	return nil, hidden
}
