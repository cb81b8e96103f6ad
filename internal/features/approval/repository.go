package approval

import (
	"context"
	"errors"
	"time"

	"go-approval/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("approval request not found")

var openStatuses = []RequestStatus{StatusPending, StatusInReview}

type RequestRepository interface {
	Create(ctx context.Context, req *ApprovalRequest) error
	Update(ctx context.Context, req *ApprovalRequest) error
	FindByID(ctx context.Context, id string) (*ApprovalRequest, error)
	// ListOpenByCandidates returns non-terminal requests whose current step
	// lists any of actorIDs, oldest first.
	ListOpenByCandidates(ctx context.Context, actorIDs []string) ([]ApprovalRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]ApprovalRequest, error)
	ListParked(ctx context.Context) ([]ApprovalRequest, error)
	// FindDue returns the ids of requests whose next deadline is at or
	// before before, earliest first.
	FindDue(ctx context.Context, before time.Time, limit int) ([]string, error)
	EnsureIndexes(ctx context.Context) error
}

type RequestRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRequestRepository(mongodb *database.MongodbDB) RequestRepository {
	return &RequestRepositoryImpl{
		Collection: mongodb.DB.Collection("approval_requests"),
	}
}

func (r *RequestRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "next_deadline", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "step.candidates", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "submitted_at", Value: -1}}},
		{Keys: bson.D{{Key: "resolution_error", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func (r *RequestRepositoryImpl) Create(ctx context.Context, req *ApprovalRequest) error {
	_, err := r.Collection.InsertOne(ctx, req)
	return err
}

func (r *RequestRepositoryImpl) Update(ctx context.Context, req *ApprovalRequest) error {
	res, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": req.ID}, req)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RequestRepositoryImpl) FindByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	var req ApprovalRequest
	if err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepositoryImpl) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]ApprovalRequest, error) {
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var requests []ApprovalRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *RequestRepositoryImpl) ListOpenByCandidates(ctx context.Context, actorIDs []string) ([]ApprovalRequest, error) {
	filter := bson.M{
		"step.candidates": bson.M{"$in": actorIDs},
		"status":          bson.M{"$in": openStatuses},
	}
	return r.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}}))
}

func (r *RequestRepositoryImpl) ListByRequester(ctx context.Context, requesterID string) ([]ApprovalRequest, error) {
	return r.list(ctx, bson.M{"requester_id": requesterID}, options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}}))
}

func (r *RequestRepositoryImpl) ListParked(ctx context.Context) ([]ApprovalRequest, error) {
	filter := bson.M{
		"resolution_error": bson.M{"$exists": true, "$ne": ""},
		"status":           bson.M{"$in": openStatuses},
	}
	return r.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}))
}

func (r *RequestRepositoryImpl) FindDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "next_deadline", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.Collection.Find(ctx, bson.M{"next_deadline": bson.M{"$lte": before}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}
