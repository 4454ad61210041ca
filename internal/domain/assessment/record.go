package assessment

// Entry is one submitted answer in session order.
type Entry struct {
	Seq        int    `json:"seq"`
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
	Revision   bool   `json:"revision,omitempty"`
}

// Answer is a (question, value) pair as submitted by a client. An ordered
// list of answers fully determines a session.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// Record is the append-only answer record of a session. Corrections append
// a new entry and replace the current value; history is never rewritten.
type Record struct {
	values  map[string]any
	history []Entry
}

func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Value returns the current value of a question.
func (r *Record) Value(questionID string) (any, bool) {
	v, ok := r.values[questionID]
	return v, ok
}

func (r *Record) Answered(questionID string) bool {
	_, ok := r.values[questionID]
	return ok
}

// Len returns the number of distinct answered questions.
func (r *Record) Len() int { return len(r.values) }

// Append stores a canonical value and returns the new history entry.
func (r *Record) Append(questionID string, value any) Entry {
	_, revision := r.values[questionID]
	e := Entry{
		Seq:        len(r.history) + 1,
		QuestionID: questionID,
		Value:      value,
		Revision:   revision,
	}
	r.values[questionID] = value
	r.history = append(r.history, e)
	return e
}

// History returns a copy of every entry in submission order.
func (r *Record) History() []Entry {
	out := make([]Entry, len(r.history))
	copy(out, r.history)
	return out
}

// Answers returns a copy of the current values.
func (r *Record) Answers() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Revisions counts correction entries.
func (r *Record) Revisions() int {
	n := 0
	for _, e := range r.history {
		if e.Revision {
			n++
		}
	}
	return n
}
