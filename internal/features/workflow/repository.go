package workflow

import (
	"context"
	"errors"

	"go-approval/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowRepository stores every version of every workflow.
type WorkflowRepository interface {
	Insert(ctx context.Context, workflow *ApprovalWorkflow) error
	FindLatest(ctx context.Context, id string) (*ApprovalWorkflow, error)
	FindVersion(ctx context.Context, id string, version int) (*ApprovalWorkflow, error)
	ListLatest(ctx context.Context) ([]ApprovalWorkflow, error)
	ListActiveByType(ctx context.Context, requestType RequestType) ([]ApprovalWorkflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	EnsureIndexes(ctx context.Context) error
}

type WorkflowRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewWorkflowRepository(mongodb *database.MongodbDB) WorkflowRepository {
	return &WorkflowRepositoryImpl{
		Collection: mongodb.DB.Collection("approval_workflows"),
	}
}

func (r *WorkflowRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "workflow_id", Value: 1}, {Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "request_type", Value: 1}, {Key: "active", Value: 1}}},
	})
	return err
}

func (r *WorkflowRepositoryImpl) Insert(ctx context.Context, workflow *ApprovalWorkflow) error {
	_, err := r.Collection.InsertOne(ctx, workflow)
	return err
}

func (r *WorkflowRepositoryImpl) FindLatest(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var workflow ApprovalWorkflow
	err := r.Collection.FindOne(ctx, bson.M{"workflow_id": id}, opts).Decode(&workflow)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

func (r *WorkflowRepositoryImpl) FindVersion(ctx context.Context, id string, version int) (*ApprovalWorkflow, error) {
	var workflow ApprovalWorkflow
	err := r.Collection.FindOne(ctx, bson.M{"workflow_id": id, "version": version}).Decode(&workflow)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

// latestPipeline reduces the version history to the newest record per
// workflow, after applying match.
func latestPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "workflow_id", Value: 1}, {Key: "version", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$workflow_id"},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "priority", Value: 1}, {Key: "workflow_id", Value: 1}}}},
	}
}

func (r *WorkflowRepositoryImpl) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]ApprovalWorkflow, error) {
	cursor, err := r.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var workflows []ApprovalWorkflow
	if err = cursor.All(ctx, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (r *WorkflowRepositoryImpl) ListLatest(ctx context.Context) ([]ApprovalWorkflow, error) {
	return r.aggregate(ctx, latestPipeline(bson.M{}))
}

func (r *WorkflowRepositoryImpl) ListActiveByType(ctx context.Context, requestType RequestType) ([]ApprovalWorkflow, error) {
	pipeline := latestPipeline(bson.M{"request_type": requestType})
	pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"active": true}}})
	return r.aggregate(ctx, pipeline)
}

// SetActive flips the flag on the latest version only. Activation is not
// part of the step semantics, so it does not create a new version.
func (r *WorkflowRepositoryImpl) SetActive(ctx context.Context, id string, active bool) error {
	latest, err := r.FindLatest(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.Collection.UpdateOne(ctx,
		bson.M{"workflow_id": id, "version": latest.Version},
		bson.M{"$set": bson.M{"active": active}},
	)
	return err
}
