package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type eventDocument struct {
	ID          string    `bson:"_id"`
	SurveyID    string    `bson:"surveyId"`
	Type        EventType `bson:"type"`
	ActorUserID string    `bson:"actorUserId,omitempty"`
	ActorRole   string    `bson:"actorRole,omitempty"`
	Action      string    `bson:"action"`
	FromStatus  string    `bson:"fromStatus,omitempty"`
	ToStatus    string    `bson:"toStatus,omitempty"`
	Message     string    `bson:"message,omitempty"`
	OccurredAt  time.Time `bson:"occurredAt"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// MongoRepo appends audit events to a MongoDB collection. Only InsertOne is
// ever issued against it.
type MongoRepo struct {
	events *mongo.Collection
}

func NewMongoRepo(db *mongo.Database, collection string) *MongoRepo {
	return &MongoRepo{events: db.Collection(collection)}
}

func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "surveyId", Value: 1}, {Key: "occurredAt", Value: 1}},
	})
	return err
}

func (r *MongoRepo) Append(ctx context.Context, e Event) error {
	_, err := r.events.InsertOne(ctx, toEventDocument(e))
	return err
}

func toEventDocument(e Event) eventDocument {
	return eventDocument{
		ID:          e.ID,
		SurveyID:    e.SurveyID,
		Type:        e.Type,
		ActorUserID: e.ActorUserID,
		ActorRole:   e.ActorRole,
		Action:      e.Action,
		FromStatus:  e.FromStatus,
		ToStatus:    e.ToStatus,
		Message:     e.Message,
		OccurredAt:  e.OccurredAt,
		CreatedAt:   e.CreatedAt,
	}
}
