package survey

import (
	"context"

	"survey-platform/internal/audit"
)

// AuditAdapter mirrors survey audit records into the shared audit.Service.
// It keeps the lifecycle free of any dependency on audit persistence.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) RecordSurveyAction(ctx context.Context, surveyID string, rec AuditRecord) error {
	if a.Audit == nil {
		return nil
	}
	switch rec.Action {
	case ActionNotificationSent, ActionNotificationFailed:
		return a.Audit.LogNotification(ctx, surveyID, string(rec.Action), rec.Message, rec.At)
	default:
		return a.Audit.LogSurveyAction(ctx, surveyID,
			rec.ActorID,
			string(rec.ActorRole),
			string(rec.Action),
			string(rec.From),
			string(rec.To),
			rec.Message,
			rec.At,
		)
	}
}
