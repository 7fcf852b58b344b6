package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/outcome"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type TaskService struct {
	db       *gorm.DB
	dir      *Directory
	engine   *authz.Engine
	audit    *AuditService
	notifier *NotificationService
}

func NewTaskService(db *gorm.DB, dir *Directory, engine *authz.Engine, audit *AuditService, notifier *NotificationService) *TaskService {
	return &TaskService{db: db, dir: dir, engine: engine, audit: audit, notifier: notifier}
}

type CreateTaskRequest struct {
	ProjectID   uint       `json:"-"`
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description"`
	Priority    string     `json:"priority" binding:"omitempty,task_priority"`
	Visibility  string     `json:"visibility" binding:"omitempty,task_visibility"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  *uint      `json:"assignee_id"`
}

type UpdateTaskRequest struct {
	Title       *string    `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string    `json:"description"`
	Visibility  *string    `json:"visibility" binding:"omitempty,task_visibility"`
	DueDate     *time.Time `json:"due_date"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required,task_status"`
}

type ChangePriorityRequest struct {
	Priority string `json:"priority" binding:"required,task_priority"`
}

// AssignTaskRequest assigns the task, or unassigns it when AssigneeID is nil.
type AssignTaskRequest struct {
	AssigneeID *uint `json:"assignee_id"`
}

type CollaboratorRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

type CommentRequest struct {
	Body string `json:"body" binding:"required,max=5000"`
}

type TaskListRequest struct {
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status          string `form:"status" binding:"omitempty,task_status"`
	Priority        string `form:"priority" binding:"omitempty,task_priority"`
	AssigneeID      uint   `form:"assignee_id"`
	IncludeInactive bool   `form:"include_inactive"`
}

type TaskListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.Task `json:"items"`
}

func taskRef(t *models.Task) authz.TaskRef {
	return authz.TaskRef{ID: t.ID, ProjectID: t.ProjectID, AssigneeID: t.AssigneeID}
}

func (s *TaskService) load(ctx context.Context, taskID uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).First(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

type taskCheck func(ctx context.Context, actorID uint, task authz.TaskRef) outcome.Outcome[authz.Grant]

// authorize loads a task and runs check on it. An actor that cannot even
// view the task is told it does not exist.
func (s *TaskService) authorize(ctx context.Context, actorID, taskID uint, check taskCheck, action string) (*models.Task, outcome.Outcome[authz.Grant], error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, outcome.Outcome[authz.Grant]{}, err
	}
	if task == nil {
		return nil, outcome.Failure[authz.Grant](MsgNotFound), nil
	}
	g := check(ctx, actorID, taskRef(task))
	if g.IsSuccess() {
		return task, g, nil
	}
	if !s.engine.Visible(ctx, actorID, taskRef(task)) {
		return nil, outcome.Failure[authz.Grant](MsgNotFound), nil
	}
	return nil, outcome.Chain[authz.Grant](g, "cannot "+action), nil
}

// activeUser reports whether userID is an existing active account.
func (s *TaskService) activeUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil || user == nil || !user.IsActive {
		return nil, err
	}
	return user, nil
}

// Create adds a task to a project. Naming an assignee also requires the
// assign permission.
func (s *TaskService) Create(ctx context.Context, actorID uint, req *CreateTaskRequest) (outcome.Outcome[*models.Task], error) {
	if g := s.engine.CanCreateTask(ctx, actorID, req.ProjectID); !g.IsSuccess() {
		return outcome.Chain[*models.Task](g, "cannot create task"), nil
	}
	project, err := findProject(s.db.WithContext(ctx), req.ProjectID)
	if err != nil || project == nil {
		return notFound[*models.Task](err)
	}
	if !project.IsActive {
		return outcome.Failure[*models.Task](MsgInactiveProject), nil
	}

	if req.AssigneeID != nil {
		if g := s.engine.CanAssign(ctx, actorID, authz.TaskRef{ProjectID: req.ProjectID}); !g.IsSuccess() {
			return outcome.Chain[*models.Task](g, "cannot assign task"), nil
		}
		assignee, err := s.activeUser(ctx, *req.AssigneeID)
		if err != nil {
			return outcome.Outcome[*models.Task]{}, err
		}
		if assignee == nil {
			return outcome.Failure[*models.Task](MsgInactiveTarget), nil
		}
	}

	task := &models.Task{
		ProjectID:   req.ProjectID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      models.TaskStatusPending,
		Priority:    defaultString(req.Priority, models.PriorityMedium),
		Visibility:  defaultString(req.Visibility, models.VisibilityProject),
		DueDate:     req.DueDate,
		AssigneeID:  req.AssigneeID,
		CreatedBy:   actorID,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return outcome.Outcome[*models.Task]{}, fmt.Errorf("create task: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "create", EntityType: EntityTask, EntityID: task.ID,
		Details: map[string]interface{}{"project_id": task.ProjectID, "title": task.Title}})
	if task.AssigneeID != nil {
		s.notifyAssignment(ctx, task, *task.AssigneeID, actorID, models.NotificationTaskAssigned)
	}
	return outcome.Success(task, "task created"), nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Get returns a task with its assignee, active collaborators and comments.
func (s *TaskService) Get(ctx context.Context, actorID, taskID uint) (outcome.Outcome[*models.Task], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, s.engine.CanViewTask, "view task")
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[*models.Task](g, ""), err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.db.WithContext(egCtx).
			Preload("User").
			Where("task_id = ? AND is_active = ?", task.ID, true).
			Order("id ASC").
			Find(&task.Collaborators).Error
	})
	eg.Go(func() error {
		return s.db.WithContext(egCtx).
			Preload("Author").
			Where("task_id = ?", task.ID).
			Order("created_at ASC, id ASC").
			Find(&task.Comments).Error
	})
	if task.AssigneeID != nil {
		eg.Go(func() error {
			assignee, err := s.dir.FindByID(egCtx, *task.AssigneeID)
			task.Assignee = assignee
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return outcome.Outcome[*models.Task]{}, fmt.Errorf("load task detail: %w", err)
	}
	return outcome.Success(task), nil
}

// List returns the tasks of a project the actor can view.
func (s *TaskService) List(ctx context.Context, actorID, projectID uint, req *TaskListRequest) (outcome.Outcome[*TaskListResponse], error) {
	if g := s.engine.CanViewProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Failure[*TaskListResponse](MsgNotFound), nil
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Task{}).Where("project_id = ?", projectID)
	if !req.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Priority != "" {
		query = query.Where("priority = ?", req.Priority)
	}
	if req.AssigneeID != 0 {
		query = query.Where("assignee_id = ?", req.AssigneeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return outcome.Outcome[*TaskListResponse]{}, fmt.Errorf("count tasks: %w", err)
	}

	var tasks []models.Task
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Assignee").Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&tasks).Error; err != nil {
		return outcome.Outcome[*TaskListResponse]{}, fmt.Errorf("list tasks: %w", err)
	}

	return outcome.Success(&TaskListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    tasks,
	}), nil
}

// update applies changes to a task the actor passed check for.
func (s *TaskService) update(ctx context.Context, actorID, taskID uint, check taskCheck, action string, build changeBuilder) (outcome.Outcome[*models.Task], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, check, action)
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[*models.Task](g, ""), err
	}
	if !task.IsActive {
		return outcome.Failure[*models.Task](MsgInactiveTask), nil
	}

	updates, rejected, err := build(task)
	if err != nil {
		return outcome.Outcome[*models.Task]{}, err
	}
	if rejected != "" {
		return outcome.Failure[*models.Task](rejected), nil
	}
	if len(updates) == 0 {
		return outcome.Failure[*models.Task](MsgNoChanges), nil
	}
	if err := s.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		return outcome.Outcome[*models.Task]{}, fmt.Errorf("update task: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: strings.ReplaceAll(action, " ", "_"), EntityType: EntityTask, EntityID: task.ID, Details: updates})
	return outcome.Success(task), nil
}

// changeBuilder computes the column updates for a task. A non-empty
// rejection aborts the change with that message.
type changeBuilder func(task *models.Task) (updates map[string]interface{}, rejection string, err error)

func (s *TaskService) Update(ctx context.Context, actorID, taskID uint, req *UpdateTaskRequest) (outcome.Outcome[*models.Task], error) {
	return s.update(ctx, actorID, taskID, s.engine.CanModifyTask, "update task", func(*models.Task) (map[string]interface{}, string, error) {
		updates := make(map[string]interface{})
		if req.Title != nil {
			updates["title"] = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.Visibility != nil {
			updates["visibility"] = *req.Visibility
		}
		if req.DueDate != nil {
			updates["due_date"] = *req.DueDate
		}
		return updates, "", nil
	})
}

func (s *TaskService) ChangeStatus(ctx context.Context, actorID, taskID uint, req *ChangeStatusRequest) (outcome.Outcome[*models.Task], error) {
	return s.update(ctx, actorID, taskID, s.engine.CanChangeStatus, "change status", func(t *models.Task) (map[string]interface{}, string, error) {
		if t.Status == req.Status {
			return nil, "", nil
		}
		return map[string]interface{}{"status": req.Status}, "", nil
	})
}

func (s *TaskService) ChangePriority(ctx context.Context, actorID, taskID uint, req *ChangePriorityRequest) (outcome.Outcome[*models.Task], error) {
	return s.update(ctx, actorID, taskID, s.engine.CanModifyTask, "change priority", func(t *models.Task) (map[string]interface{}, string, error) {
		if t.Priority == req.Priority {
			return nil, "", nil
		}
		return map[string]interface{}{"priority": req.Priority}, "", nil
	})
}

// Assign sets or clears the assignee and notifies both the new and the
// previous assignee.
func (s *TaskService) Assign(ctx context.Context, actorID, taskID uint, req *AssignTaskRequest) (outcome.Outcome[*models.Task], error) {
	var previous *uint
	out, err := s.update(ctx, actorID, taskID, s.engine.CanAssign, "assign task", func(t *models.Task) (map[string]interface{}, string, error) {
		previous = t.AssigneeID
		if req.AssigneeID == nil {
			if t.AssigneeID == nil {
				return nil, "", nil
			}
			return map[string]interface{}{"assignee_id": nil}, "", nil
		}
		if t.AssigneeID != nil && *t.AssigneeID == *req.AssigneeID {
			return nil, "", nil
		}
		assignee, err := s.activeUser(ctx, *req.AssigneeID)
		if err != nil || assignee == nil {
			return nil, MsgInactiveTarget, err
		}
		return map[string]interface{}{"assignee_id": assignee.ID}, "", nil
	})
	if err != nil || !out.IsSuccess() {
		return out, err
	}

	task := out.Data()
	task.AssigneeID = req.AssigneeID
	if previous != nil {
		s.notifyAssignment(ctx, task, *previous, actorID, models.NotificationTaskUnassigned)
	}
	if req.AssigneeID != nil {
		s.notifyAssignment(ctx, task, *req.AssigneeID, actorID, models.NotificationTaskAssigned)
	}
	return out, nil
}

func (s *TaskService) notifyAssignment(ctx context.Context, task *models.Task, userID, actorID uint, kind string) {
	if s.notifier == nil {
		return
	}
	message := fmt.Sprintf("You were assigned to task #%d %q", task.ID, task.Title)
	if kind == models.NotificationTaskUnassigned {
		message = fmt.Sprintf("You were unassigned from task #%d %q", task.ID, task.Title)
	}
	s.notifier.Notify(ctx, &NotificationEvent{
		UserID:  userID,
		Kind:    kind,
		TaskID:  task.ID,
		ActorID: actorID,
		Message: message,
	})
}

// Deactivate retires a task. Inactive tasks stay readable.
func (s *TaskService) Deactivate(ctx context.Context, actorID, taskID uint) (outcome.Outcome[*models.Task], error) {
	return s.update(ctx, actorID, taskID, s.engine.CanModifyTask, "deactivate task", func(*models.Task) (map[string]interface{}, string, error) {
		return map[string]interface{}{"is_active": false}, "", nil
	})
}

// AddCollaborator adds a user to the task, reactivating an earlier row.
func (s *TaskService) AddCollaborator(ctx context.Context, actorID, taskID uint, req *CollaboratorRequest) (outcome.Outcome[*models.TaskCollaborator], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, s.engine.CanModifyTask, "add collaborator")
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[*models.TaskCollaborator](g, ""), err
	}
	if !task.IsActive {
		return outcome.Failure[*models.TaskCollaborator](MsgInactiveTask), nil
	}
	user, err := s.activeUser(ctx, req.UserID)
	if err != nil {
		return outcome.Outcome[*models.TaskCollaborator]{}, err
	}
	if user == nil {
		return outcome.Failure[*models.TaskCollaborator](MsgInactiveTarget), nil
	}

	var collaborator models.TaskCollaborator
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(models.TaskCollaborator{TaskID: task.ID, UserID: user.ID}).
			Attrs(models.TaskCollaborator{AddedByID: actorID}).
			FirstOrCreate(&collaborator).Error; err != nil {
			return err
		}
		if collaborator.IsActive {
			return nil
		}
		return tx.Model(&collaborator).Updates(map[string]interface{}{"is_active": true, "added_by_id": actorID}).Error
	})
	if err != nil {
		return outcome.Outcome[*models.TaskCollaborator]{}, fmt.Errorf("add collaborator: %w", err)
	}
	collaborator.User = user

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "add_collaborator", EntityType: EntityTask, EntityID: task.ID,
		Details: map[string]uint{"user_id": user.ID}})
	return outcome.Success(&collaborator), nil
}

func (s *TaskService) RemoveCollaborator(ctx context.Context, actorID, taskID, userID uint) (outcome.Outcome[outcome.Empty], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, s.engine.CanModifyTask, "remove collaborator")
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[outcome.Empty](g, ""), err
	}

	result := s.db.WithContext(ctx).Model(&models.TaskCollaborator{}).
		Where("task_id = ? AND user_id = ? AND is_active = ?", task.ID, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return outcome.Outcome[outcome.Empty]{}, fmt.Errorf("remove collaborator: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return outcome.Failure[outcome.Empty](MsgNotFound), nil
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "remove_collaborator", EntityType: EntityTask, EntityID: task.ID,
		Details: map[string]uint{"user_id": userID}})
	return outcome.Success(outcome.Empty{}), nil
}

func (s *TaskService) ListComments(ctx context.Context, actorID, taskID uint) (outcome.Outcome[[]models.TaskComment], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, s.engine.CanViewTask, "view task")
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[[]models.TaskComment](g, ""), err
	}

	comments := []models.TaskComment{}
	if err := s.db.WithContext(ctx).Preload("Author").
		Where("task_id = ?", task.ID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return outcome.Outcome[[]models.TaskComment]{}, fmt.Errorf("list comments: %w", err)
	}
	return outcome.Success(comments), nil
}

// AddComment posts a comment. Comments are allowed on inactive tasks.
func (s *TaskService) AddComment(ctx context.Context, actorID, taskID uint, req *CommentRequest) (outcome.Outcome[*models.TaskComment], error) {
	task, g, err := s.authorize(ctx, actorID, taskID, s.engine.CanComment, "comment")
	if err != nil || !g.IsSuccess() {
		return outcome.Chain[*models.TaskComment](g, ""), err
	}

	comment := &models.TaskComment{
		TaskID:   task.ID,
		AuthorID: actorID,
		Body:     strings.TrimSpace(req.Body),
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return outcome.Outcome[*models.TaskComment]{}, fmt.Errorf("add comment: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "create", EntityType: EntityComment, EntityID: comment.ID,
		Details: map[string]uint{"task_id": task.ID}})
	return outcome.Success(comment), nil
}
