package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onboard/onboard/internal/domain/assessment"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assessment_result (
	session_id      TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	catalog_version TEXT NOT NULL,
	tier            TEXT NOT NULL,
	overall_score   REAL NOT NULL,
	fraud_score     REAL NOT NULL,
	pathway_id      TEXT NOT NULL,
	document        TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	completed_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessment_result_user ON assessment_result(user_id);
CREATE INDEX IF NOT EXISTS idx_assessment_result_completed ON assessment_result(completed_at);
`

// SQLiteSink stores results in a local SQLite file for single-node
// deployments.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. Parent directories are
// created as needed.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the persister.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteSink) Persist(ctx context.Context, r *assessment.AssessmentResult) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessment_result (session_id, user_id, catalog_version, tier,
			overall_score, fraud_score, pathway_id, document, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id=excluded.user_id, catalog_version=excluded.catalog_version,
			tier=excluded.tier, overall_score=excluded.overall_score,
			fraud_score=excluded.fraud_score, pathway_id=excluded.pathway_id,
			document=excluded.document, started_at=excluded.started_at,
			completed_at=excluded.completed_at`,
		r.SessionID, r.UserID, r.CatalogVersion, string(r.Tier),
		r.OverallScore, r.FraudScore, r.PathwayID, string(doc),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.CompletedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteSink) Get(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM assessment_result WHERE session_id = ?`, sessionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(doc))
}

func (s *SQLiteSink) List(ctx context.Context, f Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error) {
	var clauses []string
	var args []any
	for col, v := range map[string]string{"user_id": f.UserID, "tier": f.Tier, "pathway_id": f.PathwayID} {
		if v != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, v)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assessment_result`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM assessment_result`+where+
		` ORDER BY completed_at DESC, session_id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*assessment.AssessmentResult{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, 0, err
		}
		r, err := decode([]byte(doc))
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}
