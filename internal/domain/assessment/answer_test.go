package assessment

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onboard/onboard/internal/domain/catalog"
)

func TestValidateAnswer(t *testing.T) {
	cat := mustCatalog(t)
	text := &catalog.Question{ID: "notes", Type: catalog.TypeText, MaxLength: 5}

	tests := []struct {
		name     string
		question *catalog.Question
		raw      any
		want     any
		wantErr  bool
	}{
		{name: "scale int", question: mustQuestion(t, cat, "pain_severity"), raw: 4, want: 4.0},
		{name: "scale numeric string", question: mustQuestion(t, cat, "pain_severity"), raw: "6", want: 6.0},
		{name: "scale out of range", question: mustQuestion(t, cat, "pain_severity"), raw: 11, wantErr: true},
		{name: "scale fraction", question: mustQuestion(t, cat, "pain_severity"), raw: 2.5, wantErr: true},
		{name: "numeric fraction", question: mustQuestion(t, cat, "alcohol_units"), raw: 2.5, want: 2.5},
		{name: "numeric below min", question: mustQuestion(t, cat, "exercise_days"), raw: -1, wantErr: true},
		{name: "single option", question: mustQuestion(t, cat, "smoking_status"), raw: "former", want: "former"},
		{name: "single unknown option", question: mustQuestion(t, cat, "smoking_status"), raw: "sometimes", wantErr: true},
		{name: "single with list", question: mustQuestion(t, cat, "smoking_status"), raw: []string{"never"}, wantErr: true},
		{name: "multi list", question: mustQuestion(t, cat, "emergency_check"), raw: []any{"chest_pain", "severe_bleeding"}, want: []string{"chest_pain", "severe_bleeding"}},
		{name: "multi scalar", question: mustQuestion(t, cat, "emergency_check"), raw: "none", want: []string{"none"}},
		{name: "multi empty", question: mustQuestion(t, cat, "emergency_check"), raw: []any{}, wantErr: true},
		{name: "multi duplicate", question: mustQuestion(t, cat, "emergency_check"), raw: []string{"none", "none"}, wantErr: true},
		{name: "multi unknown", question: mustQuestion(t, cat, "emergency_check"), raw: []string{"headache"}, wantErr: true},
		{name: "boolean", question: mustQuestion(t, cat, "info_accurate"), raw: false, want: false},
		{name: "boolean string", question: mustQuestion(t, cat, "info_accurate"), raw: "Yes", want: true},
		{name: "boolean number", question: mustQuestion(t, cat, "info_accurate"), raw: 1, wantErr: true},
		{name: "text", question: text, raw: "héllo", want: "héllo"},
		{name: "text too long", question: text, raw: strings.Repeat("a", 6), wantErr: true},
		{name: "unsupported value", question: mustQuestion(t, cat, "pain_severity"), raw: map[string]any{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAnswer(tt.question, tt.raw)
			if tt.wantErr {
				var inputErr *InputError
				if !errors.As(err, &inputErr) {
					t.Fatalf("expected InputError, got %v (value %v)", err, got)
				}
				if inputErr.QuestionID != tt.question.ID {
					t.Errorf("expected question id %s, got %s", tt.question.ID, inputErr.QuestionID)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("value (-want +got):\n%s", diff)
			}
		})
	}
}

func mustQuestion(t *testing.T, cat *catalog.Catalog, id string) *catalog.Question {
	t.Helper()
	question, ok := cat.Question(id)
	if !ok {
		t.Fatalf("unknown question %s", id)
	}
	return question
}

func TestRecord_AppendOnly(t *testing.T) {
	rec := NewRecord()
	rec.Append("a", 1.0)
	rec.Append("b", "x")
	e := rec.Append("a", 2.0)

	if !e.Revision || e.Seq != 3 {
		t.Errorf("expected revision entry 3, got %+v", e)
	}
	if v, _ := rec.Value("a"); v != 2.0 {
		t.Errorf("expected current value 2, got %v", v)
	}
	if rec.Len() != 2 || rec.Revisions() != 1 {
		t.Errorf("expected 2 answers and 1 revision, got %d/%d", rec.Len(), rec.Revisions())
	}
	h := rec.History()
	h[0].Value = "tampered"
	if rec.History()[0].Value != 1.0 {
		t.Error("history must be returned by copy")
	}
}
