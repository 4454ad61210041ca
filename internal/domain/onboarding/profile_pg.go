package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onboard/onboard/internal/domain/pathway"
)

// PGProfiles reads user_profile and the care_resource availability of the
// user's region. Rows for region '*' apply everywhere and are overridden by
// region-specific rows.
type PGProfiles struct {
	pool *pgxpool.Pool
}

func NewPGProfiles(pool *pgxpool.Pool) *PGProfiles {
	return &PGProfiles{pool: pool}
}

func (r *PGProfiles) Profile(ctx context.Context, userID string) (pathway.Profile, error) {
	p := pathway.Profile{UserID: userID}

	var (
		age                    *int
		sex, region, channel   *string
		engagement, completion *float64
		conditions             []string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT age, sex, region, engagement, completion_rate, preferred_channel, conditions
		FROM user_profile WHERE user_id = $1`, userID).
		Scan(&age, &sex, &region, &engagement, &completion, &channel, &conditions)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return p, fmt.Errorf("load profile %s: %w", userID, err)
	default:
		p.Demographics = demographicsOf(age, sex, region)
		p.Behavioral = behavioralOf(engagement, completion, channel)
		if len(conditions) > 0 {
			p.Clinical = &pathway.Clinical{Conditions: conditions}
		}
	}

	var reg string
	if p.Demographics != nil {
		reg = p.Demographics.Region
	}
	res, err := r.resources(ctx, reg)
	if err != nil {
		return p, err
	}
	p.Resources = res
	return p, nil
}

func (r *PGProfiles) resources(ctx context.Context, region string) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT resource, availability FROM care_resource
		WHERE region = '*' OR region = $1
		ORDER BY (region = '*') DESC`, region)
	if err != nil {
		return nil, fmt.Errorf("load care resources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var availability float64
		if err := rows.Scan(&name, &availability); err != nil {
			return nil, fmt.Errorf("scan care resource: %w", err)
		}
		out[name] = availability
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func demographicsOf(age *int, sex, region *string) *pathway.Demographics {
	if age == nil && sex == nil && region == nil {
		return nil
	}
	d := &pathway.Demographics{}
	if age != nil {
		d.Age = *age
	}
	if sex != nil {
		d.Sex = *sex
	}
	if region != nil {
		d.Region = *region
	}
	return d
}

func behavioralOf(engagement, completion *float64, channel *string) *pathway.Behavioral {
	if engagement == nil && completion == nil && channel == nil {
		return nil
	}
	b := &pathway.Behavioral{}
	if engagement != nil {
		b.Engagement = *engagement
	}
	if completion != nil {
		b.CompletionRate = *completion
	}
	if channel != nil {
		b.PreferredChannel = *channel
	}
	return b
}
