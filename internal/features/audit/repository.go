package audit

import (
	"context"
	"sort"
	"sync"

	common_models "go-approval/internal/common/models"
	"go-approval/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogFilter narrows audit queries. Empty fields match everything.
type LogFilter struct {
	Module   string
	RecordID string
	Action   common_models.AuditAction
	ActorID  string
}

func (f LogFilter) matches(log common_models.AuditLog) bool {
	return (f.Module == "" || log.Module == f.Module) &&
		(f.RecordID == "" || log.RecordID == f.RecordID) &&
		(f.Action == "" || log.Action == f.Action) &&
		(f.ActorID == "" || log.ActorID == f.ActorID)
}

func (f LogFilter) query() bson.M {
	query := bson.M{}
	if f.Module != "" {
		query["module"] = f.Module
	}
	if f.RecordID != "" {
		query["record_id"] = f.RecordID
	}
	if f.Action != "" {
		query["action"] = f.Action
	}
	if f.ActorID != "" {
		query["actor_id"] = f.ActorID
	}
	return query
}

type AuditRepository interface {
	Create(ctx context.Context, log common_models.AuditLog) error
	List(ctx context.Context, filter LogFilter, limit, offset int64) ([]common_models.AuditLog, error)
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log common_models.AuditLog) error {
	if tenantID, ok := ctx.Value(common_models.TenantIDKey).(string); ok && tenantID != "" {
		log.TenantID = tenantID
	}
	_, err := r.Collection.InsertOne(ctx, log)
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, filter LogFilter, limit, offset int64) ([]common_models.AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	query := filter.query()
	if tenantID, ok := ctx.Value(common_models.TenantIDKey).(string); ok && tenantID != "" {
		query["tenant_id"] = tenantID
	}

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []common_models.AuditLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// MemoryAuditRepository is an append-only in-process audit trail.
type MemoryAuditRepository struct {
	mu   sync.RWMutex
	logs []common_models.AuditLog
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Create(_ context.Context, log common_models.AuditLog) error {
	r.mu.Lock()
	r.logs = append(r.logs, log)
	r.mu.Unlock()
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, filter LogFilter, limit, offset int64) ([]common_models.AuditLog, error) {
	r.mu.RLock()
	var matched []common_models.AuditLog
	for _, log := range r.logs {
		if filter.matches(log) {
			matched = append(matched, log)
		}
	}
	r.mu.RUnlock()

	// newest first, insertion order breaks ties
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if offset >= int64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < int64(len(matched)) {
		matched = matched[:limit]
	}
	return matched, nil
}
