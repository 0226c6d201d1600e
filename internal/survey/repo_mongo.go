package survey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// surveyDocument is the MongoDB shape of a survey. The audit trail is embedded
// and only ever grows through $set of the full array under a version guard.
type surveyDocument struct {
	ID              string           `bson:"_id"`
	Title           string           `bson:"title"`
	Questions       []string         `bson:"questions"`
	OwnerCustomerID string           `bson:"ownerCustomerId"`
	CreatedBy       string           `bson:"createdBy,omitempty"`
	StartDate       time.Time        `bson:"startDate"`
	EndDate         time.Time        `bson:"endDate"`
	Status          Status           `bson:"status"`
	Responses       []answerDocument `bson:"responses"`
	AuditTrail      []AuditRecord    `bson:"auditTrail"`
	Version         int64            `bson:"version"`
	CreatedAt       time.Time        `bson:"createdAt"`
	UpdatedAt       time.Time        `bson:"updatedAt"`
}

// answerDocument keeps question text out of BSON field names; questions may
// contain dots or a leading '$'.
type answerDocument struct {
	Question string `bson:"question"`
	Answer   string `bson:"answer"`
}

// MongoRepo stores surveys in a single MongoDB collection.
type MongoRepo struct {
	surveys *mongo.Collection
}

// NewMongoRepo binds the repository to collection in db.
func NewMongoRepo(db *mongo.Database, collection string) *MongoRepo {
	return &MongoRepo{surveys: db.Collection(collection)}
}

// EnsureIndexes creates the list indexes.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.surveys.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerCustomerId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	return err
}

func (r *MongoRepo) Create(ctx context.Context, s Survey) error {
	s.Version = 1
	if _, err := r.surveys.InsertOne(ctx, toDocument(s)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: survey %s already exists", ErrConflict, s.ID)
		}
		return err
	}
	return nil
}

func (r *MongoRepo) Load(ctx context.Context, id string) (Survey, error) {
	var doc surveyDocument
	if err := r.surveys.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Survey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Survey{}, err
	}
	return fromDocument(doc), nil
}

func (r *MongoRepo) Save(ctx context.Context, s Survey) error {
	doc := toDocument(s)
	update := bson.M{"$set": bson.M{
		"title":      doc.Title,
		"questions":  doc.Questions,
		"status":     doc.Status,
		"responses":  doc.Responses,
		"auditTrail": doc.AuditTrail,
		"version":    doc.Version,
		"updatedAt":  doc.UpdatedAt,
	}}
	res, err := r.surveys.UpdateOne(ctx, bson.M{"_id": s.ID, "version": s.Version - 1}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.surveys.CountDocuments(ctx, bson.M{"_id": s.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}
	return fmt.Errorf("%w: %s expected version %d", ErrConflict, s.ID, s.Version-1)
}

func (r *MongoRepo) List(ctx context.Context, f ListFilter) ([]Survey, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.OwnerCustomerID != "" {
		filter["ownerCustomerId"] = f.OwnerCustomerID
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		findOpts.SetLimit(int64(f.Limit))
	}

	cursor, err := r.surveys.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]Survey, 0)
	for cursor.Next(ctx) {
		var doc surveyDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toDocument(s Survey) surveyDocument {
	c := s.Clone()
	return surveyDocument{
		ID:              c.ID,
		Title:           c.Title,
		Questions:       c.Questions,
		OwnerCustomerID: c.OwnerCustomerID,
		CreatedBy:       c.CreatedBy,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		Status:          c.Status,
		Responses:       answersToDocument(c),
		AuditTrail:      c.AuditTrail,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// answersToDocument orders answers by question position so documents are stable.
func answersToDocument(s Survey) []answerDocument {
	out := make([]answerDocument, 0, len(s.Responses))
	for _, q := range s.Questions {
		if a, ok := s.Responses[q]; ok {
			out = append(out, answerDocument{Question: q, Answer: a})
		}
	}
	return out
}

// fromDocument restores a survey. BSON datetimes carry millisecond precision
// and decode as UTC.
func fromDocument(doc surveyDocument) Survey {
	s := Survey{
		ID:              doc.ID,
		Title:           doc.Title,
		Questions:       doc.Questions,
		OwnerCustomerID: doc.OwnerCustomerID,
		CreatedBy:       doc.CreatedBy,
		StartDate:       doc.StartDate.UTC(),
		EndDate:         doc.EndDate.UTC(),
		Status:          doc.Status,
		Responses:       make(map[string]string, len(doc.Responses)),
		AuditTrail:      doc.AuditTrail,
		Version:         doc.Version,
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
	for _, a := range doc.Responses {
		s.Responses[a.Question] = a.Answer
	}
	return s
}
