package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/logger"
	"gorm.io/gorm"
)

// Audited entity types.
const (
	EntityUser          = "user"
	EntityProject       = "project"
	EntityProjectMember = "project_member"
	EntityTask          = "task"
	EntityComment       = "task_comment"
	EntityHTTP          = "http"
)

// AuditEntry describes one successful mutation.
type AuditEntry struct {
	ActorID    uint
	Action     string
	EntityType string
	EntityID   uint
	Details    interface{}
	IP         string
	UserAgent  string
}

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record writes an audit row. Failures are logged and never surface to the
// caller: the mutation being audited has already been committed.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil || s.db == nil {
		return
	}

	var details string
	if entry.Details != nil {
		if b, err := json.Marshal(entry.Details); err == nil {
			details = string(b)
		}
	}

	row := &models.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    details,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if entry.ActorID != 0 {
		actorID := entry.ActorID
		row.ActorID = &actorID
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.Error().Err(err).
			Str("action", entry.Action).
			Str("entity", entry.EntityType).
			Uint("entity_id", entry.EntityID).
			Msg("Failed to write audit log")
	}
}

type AuditLogListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	ActorID    uint   `form:"actor_id"`
	Action     string `form:"action"`
	EntityType string `form:"entity_type"`
	EntityID   uint   `form:"entity_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
}

type AuditLogListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.AuditLog `json:"items"`
}

// List returns audit rows newest first. Callers gate it on an admin check.
func (s *AuditService) List(ctx context.Context, req *AuditLogListRequest) (*AuditLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if req.ActorID != 0 {
		query = query.Where("actor_id = ?", req.ActorID)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.EntityType != "" {
		query = query.Where("entity_type = ?", req.EntityType)
	}
	if req.EntityID != 0 {
		query = query.Where("entity_id = ?", req.EntityID)
	}
	if start, err := time.Parse("2006-01-02", req.StartDate); err == nil {
		query = query.Where("created_at >= ?", start)
	}
	if end, err := time.Parse("2006-01-02", req.EndDate); err == nil {
		query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count audit logs: %w", err)
	}

	var logs []models.AuditLog
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	return &AuditLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOlderThan deletes audit rows older than retentionDays and returns
// the number removed. A non-positive retention disables cleanup.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// EntityTypes lists the distinct entity types present in the audit trail.
func (s *AuditService) EntityTypes(ctx context.Context) ([]string, error) {
	types := []string{}
	if err := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Distinct().Order("entity_type").
		Pluck("entity_type", &types).Error; err != nil {
		return nil, fmt.Errorf("list audit entity types: %w", err)
	}
	return types, nil
}
