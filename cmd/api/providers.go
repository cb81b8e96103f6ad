package main

import (
	"go-approval/internal/database"
	"go-approval/internal/features/approval"
	"go-approval/internal/features/audit"
	"go-approval/internal/features/delegation"
	"go-approval/internal/features/notification"
	"go-approval/internal/features/org"
	"go-approval/internal/features/workflow"
)

// Each provider picks the Mongo repository when a connection is configured
// and the in-memory one otherwise.

func provideOrgRepository(db *database.MongodbDB) org.OrgRepository {
	if db.Enabled() {
		return org.NewOrgRepository(db)
	}
	return org.NewMemoryOrgRepository()
}

func provideAuditRepository(db *database.MongodbDB) audit.AuditRepository {
	if db.Enabled() {
		return audit.NewAuditRepository(db)
	}
	return audit.NewMemoryAuditRepository()
}

func provideWorkflowRepository(db *database.MongodbDB) workflow.WorkflowRepository {
	if db.Enabled() {
		return workflow.NewWorkflowRepository(db)
	}
	return workflow.NewMemoryWorkflowRepository()
}

func provideDelegationRepository(db *database.MongodbDB) delegation.DelegationRepository {
	if db.Enabled() {
		return delegation.NewDelegationRepository(db)
	}
	return delegation.NewMemoryDelegationRepository()
}

func provideRequestRepository(db *database.MongodbDB) approval.RequestRepository {
	if db.Enabled() {
		return approval.NewRequestRepository(db)
	}
	return approval.NewMemoryRequestRepository()
}

func provideNotificationRepository(db *database.MongodbDB) notification.NotificationRepository {
	if db.Enabled() {
		return notification.NewNotificationRepository(db)
	}
	return notification.NewMemoryNotificationRepository()
}
