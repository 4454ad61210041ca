package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/pathway"
)

func TestMemoryStore_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour)
	s.now = clock.Now

	rec := &SessionRecord{
		SessionID:      "s1",
		UserID:         "u1",
		CatalogVersion: "2024.1",
		Answers: []assessment.Answer{
			{QuestionID: "pain_severity", Value: 3.0},
			{QuestionID: "emergency_check", Value: []any{"none"}},
		},
		StartedAt: clock.t,
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.UserID = "mutated"

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("store must not share state with callers, got %s", got.UserID)
	}
	if diff := cmp.Diff(rec.Answers, got.Answers); diff != "" {
		t.Errorf("answers (-want +got):\n%s", diff)
	}

	clock.Advance(time.Hour)
	if _, err := s.Load(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expiry after TTL, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expired record must be dropped, got %d", s.Len())
	}
}

func TestStaticProfiles(t *testing.T) {
	p := &StaticProfiles{
		Profiles: map[string]pathway.Profile{
			"u1": {UserID: "u1", Demographics: &pathway.Demographics{Age: 60}},
			"u2": {UserID: "u2", Resources: map[string]float64{"nurse": 0.1}},
		},
		Resources: map[string]float64{"nurse": 0.9},
	}
	ctx := context.Background()

	u1, _ := p.Profile(ctx, "u1")
	if u1.Demographics == nil || u1.Resources["nurse"] != 0.9 {
		t.Errorf("expected stored profile with shared resources, got %+v", u1)
	}
	u2, _ := p.Profile(ctx, "u2")
	if u2.Resources["nurse"] != 0.1 {
		t.Errorf("own resources win, got %v", u2.Resources)
	}
	anon, _ := p.Profile(ctx, "nobody")
	if anon.UserID != "nobody" || anon.Demographics != nil {
		t.Errorf("expected empty profile, got %+v", anon)
	}
	anon.Resources["nurse"] = 0
	if p.Resources["nurse"] != 0.9 {
		t.Error("shared resources must be copied")
	}
}

func TestProfileRows(t *testing.T) {
	age, region := 62, "north"
	d := demographicsOf(&age, nil, &region)
	if d == nil || d.Age != 62 || d.Region != "north" || d.Sex != "" {
		t.Errorf("unexpected demographics %+v", d)
	}
	if demographicsOf(nil, nil, nil) != nil {
		t.Error("all-null demographics must be unknown")
	}
	eng := 0.4
	b := behavioralOf(&eng, nil, nil)
	if b == nil || b.Engagement != 0.4 {
		t.Errorf("unexpected behavioral %+v", b)
	}
	if behavioralOf(nil, nil, nil) != nil {
		t.Error("all-null behavioral must be unknown")
	}
}
