package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"survey-platform/internal/rbac"
	"survey-platform/pkg/utils"
)

// NOTE: the audit trail is stored in survey_audit, one row per record. Rows
// are only ever inserted; the (survey_id, seq) key rejects rewrites.

// PostgresSchema creates the survey tables.
var PostgresSchema = []string{`
CREATE TABLE IF NOT EXISTS surveys (
  id                TEXT PRIMARY KEY,
  title             TEXT NOT NULL,
  questions         JSONB NOT NULL,
  owner_customer_id TEXT NOT NULL,
  created_by        TEXT NOT NULL DEFAULT '',
  start_date        TIMESTAMPTZ NOT NULL,
  end_date          TIMESTAMPTZ NOT NULL,
  status            TEXT NOT NULL,
  responses         JSONB NOT NULL DEFAULT '{}'::jsonb,
  version           BIGINT NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL,
  updated_at        TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS surveys_owner_idx ON surveys (owner_customer_id)`,
	`CREATE INDEX IF NOT EXISTS surveys_status_idx ON surveys (status)`,
	`
CREATE TABLE IF NOT EXISTS survey_audit (
  survey_id   TEXT NOT NULL REFERENCES surveys (id),
  seq         INT NOT NULL,
  at          TIMESTAMPTZ NOT NULL,
  actor_role  TEXT NOT NULL,
  actor_id    TEXT NOT NULL DEFAULT '',
  action      TEXT NOT NULL,
  from_status TEXT NOT NULL DEFAULT '',
  to_status   TEXT NOT NULL DEFAULT '',
  message     TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (survey_id, seq)
)`,
}

// PostgresRepo persists surveys through database/sql with the pgx driver.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	return utils.ExecSchema(ctx, r.db, PostgresSchema...)
}

func (r *PostgresRepo) Create(ctx context.Context, s Survey) error {
	questions, responses, err := encodeJSONColumns(s)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO surveys (
  id, title, questions, owner_customer_id, created_by, start_date, end_date, status, responses, version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11
)
`
		_, err := tx.ExecContext(ctx, q,
			s.ID,
			s.Title,
			questions,
			s.OwnerCustomerID,
			s.CreatedBy,
			s.StartDate,
			s.EndDate,
			s.Status,
			responses,
			s.CreatedAt,
			s.UpdatedAt,
		)
		if err != nil {
			if utils.IsUniqueViolation(err) {
				return fmt.Errorf("%w: survey %s already exists", ErrConflict, s.ID)
			}
			return err
		}
		return insertAudit(ctx, tx, s.ID, 0, s.AuditTrail)
	})
}

func (r *PostgresRepo) Load(ctx context.Context, id string) (Survey, error) {
	const q = `
SELECT id, title, questions, owner_customer_id, created_by, start_date, end_date, status, responses, version, created_at, updated_at
FROM surveys
WHERE id = $1
`
	s, err := scanSurvey(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Survey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Survey{}, err
	}
	trail, err := loadAudit(ctx, r.db, id)
	if err != nil {
		return Survey{}, err
	}
	s.AuditTrail = trail
	return s, nil
}

func (r *PostgresRepo) Save(ctx context.Context, s Survey) error {
	questions, responses, err := encodeJSONColumns(s)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE surveys
SET title = $3, questions = $4, status = $5, responses = $6, version = $2 + 1, updated_at = $7
WHERE id = $1 AND version = $2
`
		res, err := tx.ExecContext(ctx, q, s.ID, s.Version-1, s.Title, questions, s.Status, responses, s.UpdatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM surveys WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
			}
			return fmt.Errorf("%w: %s expected version %d", ErrConflict, s.ID, s.Version-1)
		}

		var stored int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM survey_audit WHERE survey_id = $1`, s.ID).Scan(&stored); err != nil {
			return err
		}
		if stored > len(s.AuditTrail) {
			return fmt.Errorf("survey: audit trail of %s would shrink from %d to %d records", s.ID, stored, len(s.AuditTrail))
		}
		return insertAudit(ctx, tx, s.ID, stored, s.AuditTrail[stored:])
	})
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Survey, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.OwnerCustomerID != "" {
		args = append(args, f.OwnerCustomerID)
		where = append(where, fmt.Sprintf("owner_customer_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`
SELECT id, title, questions, owner_customer_id, created_by, start_date, end_date, status, responses, version, created_at, updated_at
FROM surveys`)
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString("\nORDER BY created_at, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Survey, 0)
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		trail, err := loadAudit(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].AuditTrail = trail
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row rowScanner) (Survey, error) {
	var (
		s         Survey
		questions []byte
		responses []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.Title,
		&questions,
		&s.OwnerCustomerID,
		&s.CreatedBy,
		&s.StartDate,
		&s.EndDate,
		&s.Status,
		&responses,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return Survey{}, err
	}
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return Survey{}, fmt.Errorf("survey: decode questions of %s: %w", s.ID, err)
	}
	s.Responses = map[string]string{}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &s.Responses); err != nil {
			return Survey{}, fmt.Errorf("survey: decode responses of %s: %w", s.ID, err)
		}
	}
	return s, nil
}

func encodeJSONColumns(s Survey) (questions, responses []byte, err error) {
	questions, err = json.Marshal(s.Questions)
	if err != nil {
		return nil, nil, fmt.Errorf("survey: encode questions: %w", err)
	}
	resp := s.Responses
	if resp == nil {
		resp = map[string]string{}
	}
	responses, err = json.Marshal(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("survey: encode responses: %w", err)
	}
	return questions, responses, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadAudit(ctx context.Context, db queryer, surveyID string) ([]AuditRecord, error) {
	const q = `
SELECT at, actor_role, actor_id, action, from_status, to_status, message
FROM survey_audit
WHERE survey_id = $1
ORDER BY seq
`
	rows, err := db.QueryContext(ctx, q, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec  AuditRecord
			role string
		)
		if err := rows.Scan(&rec.At, &role, &rec.ActorID, &rec.Action, &rec.From, &rec.To, &rec.Message); err != nil {
			return nil, err
		}
		rec.ActorRole = rbac.Role(role)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func insertAudit(ctx context.Context, tx *sql.Tx, surveyID string, firstSeq int, recs []AuditRecord) error {
	const q = `
INSERT INTO survey_audit (
  survey_id, seq, at, actor_role, actor_id, action, from_status, to_status, message
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	for i, rec := range recs {
		if _, err := tx.ExecContext(ctx, q,
			surveyID,
			firstSeq+i,
			rec.At,
			string(rec.ActorRole),
			rec.ActorID,
			rec.Action,
			rec.From,
			rec.To,
			rec.Message,
		); err != nil {
			return err
		}
	}
	return nil
}
