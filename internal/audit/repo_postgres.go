package audit

import (
	"context"
	"database/sql"

	"survey-platform/pkg/utils"
)

// Schema creates the append-only audit table.
// UPDATE/DELETE are revoked from the application role by the deployment, not here.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS audit_events (
  id            UUID PRIMARY KEY,
  survey_id     TEXT NOT NULL,
  type          TEXT NOT NULL,
  actor_user_id TEXT NOT NULL DEFAULT '',
  actor_role    TEXT NOT NULL DEFAULT '',
  action        TEXT NOT NULL,
  from_status   TEXT NOT NULL DEFAULT '',
  to_status     TEXT NOT NULL DEFAULT '',
  message       TEXT NOT NULL DEFAULT '',
  occurred_at   TIMESTAMPTZ NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_survey_idx ON audit_events (survey_id, occurred_at)`,
}

// PostgresRepo appends audit events to Postgres.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	return utils.ExecSchema(ctx, r.db, Schema...)
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, survey_id, type, actor_user_id, actor_role, action, from_status, to_status, message, occurred_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.SurveyID,
		e.Type,
		e.ActorUserID,
		e.ActorRole,
		e.Action,
		e.FromStatus,
		e.ToStatus,
		e.Message,
		e.OccurredAt,
		e.CreatedAt,
	)
	return err
}
