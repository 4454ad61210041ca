package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onboard/onboard/internal/domain/assessment"
)

// PGSink stores results in the assessment_result table.
type PGSink struct{ pool *pgxpool.Pool }

func NewPGSink(pool *pgxpool.Pool) *PGSink { return &PGSink{pool: pool} }

func (s *PGSink) Persist(ctx context.Context, r *assessment.AssessmentResult) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.SessionID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO assessment_result (session_id, user_id, catalog_version, tier,
			overall_score, fraud_score, pathway_id, document, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id=EXCLUDED.user_id, catalog_version=EXCLUDED.catalog_version,
			tier=EXCLUDED.tier, overall_score=EXCLUDED.overall_score,
			fraud_score=EXCLUDED.fraud_score, pathway_id=EXCLUDED.pathway_id,
			document=EXCLUDED.document, started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at, updated_at=NOW()`,
		r.SessionID, r.UserID, r.CatalogVersion, string(r.Tier),
		r.OverallScore, r.FraudScore, r.PathwayID, doc, r.StartedAt, r.CompletedAt)
	return err
}

func (s *PGSink) Get(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM assessment_result WHERE session_id = $1`, sessionID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

func (s *PGSink) List(ctx context.Context, f Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error) {
	where, args := pgWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessment_result`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT document FROM assessment_result%s
		ORDER BY completed_at DESC, session_id LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*assessment.AssessmentResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, 0, err
		}
		r, err := decode(doc)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func pgWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("user_id", f.UserID)
	add("tier", f.Tier)
	add("pathway_id", f.PathwayID)
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func decode(doc []byte) (*assessment.AssessmentResult, error) {
	var r assessment.AssessmentResult
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}
