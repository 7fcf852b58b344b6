package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/huangang/tasksentry/pkg/outcome"
	"gorm.io/gorm"
)

// NotificationObserver counts queued notifications.
type NotificationObserver interface {
	ObserveNotification(async bool)
}

type NotificationService struct {
	db       *gorm.DB
	engine   *authz.Engine
	queue    TaskQueue
	observer NotificationObserver
	stream   *SSEHub
}

func NewNotificationService(db *gorm.DB, engine *authz.Engine) *NotificationService {
	return &NotificationService{db: db, engine: engine}
}

// SetQueue wires the queue used by Notify. The queue's processor is usually
// s.Deliver, so the two are constructed in that order.
func (s *NotificationService) SetQueue(queue TaskQueue, observer NotificationObserver) {
	s.queue = queue
	s.observer = observer
}

// SetStream makes Deliver push stored notifications to open client streams.
func (s *NotificationService) SetStream(hub *SSEHub) {
	s.stream = hub
}

// Notify queues an event. Without a queue it is delivered inline.
func (s *NotificationService) Notify(ctx context.Context, event *NotificationEvent) {
	if event == nil || event.UserID == 0 {
		return
	}
	if s.queue == nil {
		if err := s.Deliver(ctx, event); err != nil {
			logger.Error().Err(err).Uint("user_id", event.UserID).Msg("Notification delivery failed")
		}
		return
	}
	if err := s.queue.Enqueue(ctx, event); err != nil {
		logger.Error().Err(err).Uint("user_id", event.UserID).Msg("Failed to enqueue notification")
		return
	}
	if s.observer != nil {
		s.observer.ObserveNotification(s.queue.IsAsync())
	}
}

// Deliver stores the notification for its recipient. It is the queue
// processor for both sync and async modes.
func (s *NotificationService) Deliver(ctx context.Context, event *NotificationEvent) error {
	n := &models.Notification{
		UserID:  event.UserID,
		Kind:    event.Kind,
		Message: event.Message,
	}
	if event.TaskID != 0 {
		taskID := event.TaskID
		n.TaskID = &taskID
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.stream != nil {
		s.stream.Publish(n.UserID, StreamEvent{
			ID:        n.ID,
			Kind:      n.Kind,
			TaskID:    event.TaskID,
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		})
	}
	return nil
}

type NotificationListRequest struct {
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PageSize   int  `form:"page_size" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

type NotificationListResponse struct {
	Total    int64                 `json:"total"`
	Unread   int64                 `json:"unread"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Items    []models.Notification `json:"items"`
}

// ListForUser returns the caller's own notifications, newest first. The
// caller must still be an active account.
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, req *NotificationListRequest) (outcome.Outcome[*NotificationListResponse], error) {
	if g := s.engine.CanViewUser(ctx, userID, userID); !g.IsSuccess() {
		return outcome.Chain[*NotificationListResponse](g, "cannot list notifications"), nil
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	base := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)

	var unread int64
	if err := base.Session(&gorm.Session{}).Where("read_at IS NULL").Count(&unread).Error; err != nil {
		return outcome.Outcome[*NotificationListResponse]{}, fmt.Errorf("count notifications: %w", err)
	}

	query := base.Session(&gorm.Session{})
	if req.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return outcome.Outcome[*NotificationListResponse]{}, fmt.Errorf("count notifications: %w", err)
	}

	var items []models.Notification
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return outcome.Outcome[*NotificationListResponse]{}, fmt.Errorf("list notifications: %w", err)
	}

	return outcome.Success(&NotificationListResponse{
		Total:    total,
		Unread:   unread,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}), nil
}

// MarkRead marks one of the caller's notifications as read. Notifications of
// other users are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) (outcome.Outcome[*models.Notification], error) {
	if g := s.engine.CanViewUser(ctx, userID, userID); !g.IsSuccess() {
		return outcome.Chain[*models.Notification](g, "cannot mark notification read"), nil
	}

	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcome.Failure[*models.Notification](MsgNotFound), nil
	}
	if err != nil {
		return outcome.Outcome[*models.Notification]{}, fmt.Errorf("find notification: %w", err)
	}

	if n.ReadAt == nil {
		now := time.Now().UTC()
		if err := s.db.WithContext(ctx).Model(&n).Update("read_at", now).Error; err != nil {
			return outcome.Outcome[*models.Notification]{}, fmt.Errorf("mark notification read: %w", err)
		}
		n.ReadAt = &now
	}
	return outcome.Success(&n), nil
}
