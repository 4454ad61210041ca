package onboarding

import (
	"context"

	"github.com/onboard/onboard/internal/domain/pathway"
)

// ProfileProvider returns the read-only profile used for pathway matching.
// A user without a stored profile gets an empty one; unknown dimensions are
// scored with decay rather than rejected.
type ProfileProvider interface {
	Profile(ctx context.Context, userID string) (pathway.Profile, error)
}

// StaticProfiles serves profiles from memory. Resources, when set, is used
// for every profile that carries none of its own.
type StaticProfiles struct {
	Profiles  map[string]pathway.Profile
	Resources map[string]float64
}

func (s *StaticProfiles) Profile(_ context.Context, userID string) (pathway.Profile, error) {
	p, ok := s.Profiles[userID]
	if !ok {
		p = pathway.Profile{UserID: userID}
	}
	if p.Resources == nil && s.Resources != nil {
		p.Resources = make(map[string]float64, len(s.Resources))
		for k, v := range s.Resources {
			p.Resources[k] = v
		}
	}
	return p, nil
}
