package survey

import "survey-platform/internal/rbac"

// Event is a lifecycle trigger.
type Event string

const (
	EventSubmitForReview Event = "submit_for_review"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventRequestChanges  Event = "request_changes"
	EventPublish         Event = "publish"
	EventRecordResponses Event = "record_responses"
	EventSubmitFinal     Event = "submit_final"
)

// eventRoles is the only role allowed to fire each event.
var eventRoles = map[Event]rbac.Role{
	EventSubmitForReview: rbac.RoleLeadManager,
	EventApprove:         rbac.RoleCoE,
	EventReject:          rbac.RoleCoE,
	EventRequestChanges:  rbac.RoleCoE,
	EventPublish:         rbac.RoleCoE,
	EventRecordResponses: rbac.RoleCustomer,
	EventSubmitFinal:     rbac.RoleCustomer,
}

type transitionKey struct {
	from  Status
	event Event
}

type edge struct {
	to     Status
	action Action
}

// transitions is the complete lifecycle; any pair missing here is rejected.
// Requested changes send the survey back to the Lead Manager as a draft.
var transitions = map[transitionKey]edge{
	{StatusDraft, EventSubmitForReview}:      {StatusUnderReview, ActionSubmittedForReview},
	{StatusUnderReview, EventApprove}:        {StatusApproved, ActionApproved},
	{StatusUnderReview, EventReject}:         {StatusRejected, ActionRejected},
	{StatusUnderReview, EventRequestChanges}: {StatusDraft, ActionChangesRequested},
	{StatusApproved, EventPublish}:           {StatusPublished, ActionPublished},
	{StatusPublished, EventRecordResponses}:  {StatusInProgress, ActionResponsesRecorded},
	{StatusInProgress, EventRecordResponses}: {StatusInProgress, ActionResponsesRecorded},
	{StatusPublished, EventSubmitFinal}:      {StatusCompleted, ActionSubmitted},
	{StatusInProgress, EventSubmitFinal}:     {StatusCompleted, ActionSubmitted},
}

// lookup checks the caller's role first, then whether ev may fire from the current status.
func lookup(op string, from Status, ev Event, actor Actor) (edge, error) {
	want, ok := eventRoles[ev]
	if !ok {
		return edge{}, newError(op, ErrValidation, "unknown event %q", ev)
	}
	if actor.Role != want {
		return edge{}, newError(op, ErrPermission, "role %q cannot %s", actor.Role, ev)
	}
	e, ok := transitions[transitionKey{from: from, event: ev}]
	if !ok {
		return edge{}, newError(op, ErrInvalidTransition, "cannot %s a survey in status %q", ev, from)
	}
	return e, nil
}

// canFire reports whether ev may fire from st, ignoring the caller.
func canFire(st Status, ev Event) bool {
	_, ok := transitions[transitionKey{from: st, event: ev}]
	return ok
}
