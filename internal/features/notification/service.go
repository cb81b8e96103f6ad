package notification

import (
	"context"
	"fmt"

	"go-approval/internal/clock"
	"go-approval/internal/features/org"
	"go-approval/internal/idgen"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type NotificationService interface {
	GetUserNotifications(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int64, error)
	MarkAsRead(ctx context.Context, id string, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	// Deliver writes one inbox entry per recipient of event.
	Deliver(ctx context.Context, event Event) error
}

type NotificationServiceImpl struct {
	repo      NotificationRepository
	directory org.Directory
	clock     clock.Clock
	logger    *zap.Logger
}

func NewNotificationService(repo NotificationRepository, directory org.Directory, clk clock.Clock, logger *zap.Logger) NotificationService {
	return &NotificationServiceImpl{
		repo:      repo,
		directory: directory,
		clock:     clk,
		logger:    logger.Named("notification"),
	}
}

func (s *NotificationServiceImpl) GetUserNotifications(ctx context.Context, userID string, page, limit int64) ([]Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.GetByUserID(ctx, userID, page, limit)
}

func (s *NotificationServiceImpl) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

func (s *NotificationServiceImpl) MarkAsRead(ctx context.Context, id string, userID string) error {
	return s.repo.MarkAsRead(ctx, id, userID, s.clock.Now())
}

func (s *NotificationServiceImpl) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID, s.clock.Now())
}

func (s *NotificationServiceImpl) Deliver(ctx context.Context, event Event) error {
	recipients := make(map[string]bool, len(event.Recipients))
	for _, id := range event.Recipients {
		recipients[id] = true
	}
	if event.NotifyAdmins {
		admins, err := s.directory.UsersWithRoles(ctx, []string{org.RoleAdmin})
		if err != nil {
			return err
		}
		for _, a := range admins {
			if a.IsActive() {
				recipients[a.ID] = true
			}
		}
	}

	title, message := describe(event)
	link := ""
	if event.RequestID != "" {
		link = "/approvals/" + event.RequestID
	}
	for userID := range recipients {
		n := &Notification{
			ID:        idgen.New(),
			UserID:    userID,
			EventType: event.Type,
			Title:     title,
			Message:   message,
			Link:      link,
			CreatedAt: s.clock.Now(),
		}
		if err := s.repo.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func describe(e Event) (string, string) {
	switch e.Type {
	case EventRequestSubmitted:
		return "Approval needed", fmt.Sprintf("Request %s is waiting for your decision", e.RequestID)
	case EventRequestApproved:
		return "Request approved", fmt.Sprintf("Request %s was approved", e.RequestID)
	case EventRequestRejected:
		return "Request rejected", fmt.Sprintf("Request %s was rejected: %s", e.RequestID, e.Reason)
	case EventRequestEscalated:
		return "Request escalated", fmt.Sprintf("Request %s was escalated at step %d", e.RequestID, e.Step+1)
	case EventRequestCancelled:
		return "Request cancelled", fmt.Sprintf("Request %s was cancelled", e.RequestID)
	case EventRequestExpired:
		return "Request expired", fmt.Sprintf("Request %s expired: %s", e.RequestID, e.Reason)
	case EventRequestInfoRequested:
		return "More information requested", fmt.Sprintf("An approver asked for details on request %s", e.RequestID)
	case EventResolutionFailed:
		return "Approval routing failed", fmt.Sprintf("No approver could be resolved for request %s: %s", e.RequestID, e.Reason)
	case EventDelegationActivated:
		return "Delegation active", fmt.Sprintf("Delegation %s is now active", e.DelegationID)
	}
	return string(e.Type), e.RequestID
}

// RegisterInbox drains the bus into the inbox for the application lifetime.
func RegisterInbox(lc fx.Lifecycle, bus *Bus, service NotificationService, logger *zap.Logger) {
	var (
		sub  *Subscription
		done = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sub = bus.Subscribe(nil)
			go func() {
				defer close(done)
				for event := range sub.Events() {
					if err := service.Deliver(context.Background(), event); err != nil {
						logger.Error("Failed to record notification",
							zap.String("type", string(event.Type)),
							zap.String("request_id", event.RequestID),
							zap.Error(err))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sub.Close()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
