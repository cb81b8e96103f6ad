package delegation

import (
	"context"
	"errors"

	"go-approval/internal/database"
	"go-approval/internal/features/workflow"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDelegationNotFound = errors.New("delegation not found")

type DelegationRepository interface {
	Create(ctx context.Context, d *Delegation) error
	Update(ctx context.Context, d *Delegation) error
	FindByID(ctx context.Context, id string) (*Delegation, error)
	// FindOpen returns the delegator's PENDING, APPROVED and ACTIVE records
	// for requestType.
	FindOpen(ctx context.Context, delegatorID string, requestType workflow.RequestType) ([]Delegation, error)
	ListByDelegator(ctx context.Context, delegatorID string) ([]Delegation, error)
	ListByDelegate(ctx context.Context, delegateID string) ([]Delegation, error)
	ListPendingFor(ctx context.Context, approverID string) ([]Delegation, error)
	EnsureIndexes(ctx context.Context) error
}

type DelegationRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewDelegationRepository(mongodb *database.MongodbDB) DelegationRepository {
	return &DelegationRepositoryImpl{
		Collection: mongodb.DB.Collection("delegations"),
	}
}

func (r *DelegationRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "delegator_id", Value: 1}, {Key: "request_type", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "delegate_id", Value: 1}}},
		{Keys: bson.D{{Key: "approvers", Value: 1}, {Key: "status", Value: 1}}},
	})
	return err
}

func (r *DelegationRepositoryImpl) Create(ctx context.Context, d *Delegation) error {
	_, err := r.Collection.InsertOne(ctx, d)
	return err
}

func (r *DelegationRepositoryImpl) Update(ctx context.Context, d *Delegation) error {
	res, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrDelegationNotFound
	}
	return nil
}

func (r *DelegationRepositoryImpl) FindByID(ctx context.Context, id string) (*Delegation, error) {
	var d Delegation
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDelegationNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DelegationRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Delegation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: -1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Delegation
	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DelegationRepositoryImpl) FindOpen(ctx context.Context, delegatorID string, requestType workflow.RequestType) ([]Delegation, error) {
	return r.find(ctx, bson.M{
		"delegator_id": delegatorID,
		"request_type": requestType,
		"status":       bson.M{"$in": []Status{StatusPending, StatusApproved, StatusActive}},
	})
}

func (r *DelegationRepositoryImpl) ListByDelegator(ctx context.Context, delegatorID string) ([]Delegation, error) {
	return r.find(ctx, bson.M{"delegator_id": delegatorID})
}

func (r *DelegationRepositoryImpl) ListByDelegate(ctx context.Context, delegateID string) ([]Delegation, error) {
	return r.find(ctx, bson.M{"delegate_id": delegateID})
}

func (r *DelegationRepositoryImpl) ListPendingFor(ctx context.Context, approverID string) ([]Delegation, error) {
	return r.find(ctx, bson.M{"approvers": approverID, "status": StatusPending})
}
