package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/onboard/onboard/internal/domain/assessment"
)

const mongoCollection = "assessment_results"

// resultDoc keeps the filterable fields as top-level keys and the full
// result as JSON, so answers of any type survive the round trip.
type resultDoc struct {
	SessionID   string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Tier        string    `bson:"tier"`
	PathwayID   string    `bson:"pathway_id"`
	CompletedAt time.Time `bson:"completed_at"`
	Document    string    `bson:"document"`
}

// MongoSink stores results in a MongoDB collection keyed by session id.
type MongoSink struct {
	collection *mongo.Collection
}

func NewMongoSink(client *mongo.Client, database string) *MongoSink {
	return &MongoSink{collection: client.Database(database).Collection(mongoCollection)}
}

// EnsureIndexes creates the secondary indexes used by List.
func (s *MongoSink) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "completed_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create result indexes: %w", err)
	}
	return nil
}

func (s *MongoSink) Persist(ctx context.Context, r *assessment.AssessmentResult) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.SessionID, err)
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": r.SessionID}, resultDoc{
		SessionID:   r.SessionID,
		UserID:      r.UserID,
		Tier:        string(r.Tier),
		PathwayID:   r.PathwayID,
		CompletedAt: r.CompletedAt,
		Document:    string(doc),
	}, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoSink) Get(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error) {
	var d resultDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(d.Document))
}

func (s *MongoSink) List(ctx context.Context, f Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Tier != "" {
		filter["tier"] = f.Tier
	}
	if f.PathwayID != "" {
		filter["pathway_id"] = f.PathwayID
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []resultDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	items := make([]*assessment.AssessmentResult, 0, len(docs))
	for _, d := range docs {
		r, err := decode([]byte(d.Document))
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, int(total), nil
}
