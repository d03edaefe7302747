package recordstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"maestro/internal/applications"
	"maestro/internal/identity"
)

// jobDoc is the stored shape of an application
type jobDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"user_id"`
	Company     string             `bson:"company"`
	Position    string             `bson:"position"`
	Status      string             `bson:"status"`
	AppliedDate string             `bson:"applied_date"`
	Location    string             `bson:"location,omitempty"`
	Salary      string             `bson:"salary,omitempty"`
	JobURL      string             `bson:"job_url,omitempty"`
	Notes       string             `bson:"notes,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d jobDoc) record() applications.Record {
	return applications.Record{
		ID:          d.ID.Hex(),
		UserID:      d.UserID,
		Company:     d.Company,
		Position:    d.Position,
		Status:      d.Status,
		AppliedDate: d.AppliedDate,
		Location:    d.Location,
		Salary:      d.Salary,
		JobURL:      d.JobURL,
		Notes:       d.Notes,
	}
}

// MongoStore keeps applications in a MongoDB collection, for deployments
// that host their own data instead of calling the API.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("jobs")}
}

// EnsureIndexes creates the per-user listing index
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "applied_date", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func userFilter(ctx context.Context) bson.M {
	filter := bson.M{}
	if p, ok := identity.PrincipalFrom(ctx); ok && p.UserID != "" {
		filter["user_id"] = p.UserID
	}
	return filter
}

// List returns the current user's applications, newest first
func (s *MongoStore) List(ctx context.Context) ([]applications.Record, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "applied_date", Value: -1},
		{Key: "created_at", Value: -1},
	})

	cursor, err := s.coll.Find(ctx, userFilter(ctx), opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []jobDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	records := make([]applications.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records, nil
}

// Create inserts a new application for the current user
func (s *MongoStore) Create(ctx context.Context, in applications.CreateInput) (*applications.Record, error) {
	doc := jobDoc{
		ID:          primitive.NewObjectID(),
		Company:     in.Company,
		Position:    in.Position,
		Status:      in.Status,
		AppliedDate: in.AppliedDate,
		Location:    in.Location,
		Salary:      in.Salary,
		JobURL:      in.JobURL,
		Notes:       in.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	if p, ok := identity.PrincipalFrom(ctx); ok {
		doc.UserID = p.UserID
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	rec := doc.record()
	return &rec, nil
}

// SyncEmails is not available without the API's mail scanner
func (s *MongoStore) SyncEmails(ctx context.Context) (*applications.SyncResult, error) {
	return nil, applications.ErrSyncUnsupported
}

// Count returns the number of stored applications for the current user
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, userFilter(ctx))
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}
