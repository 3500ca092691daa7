package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/repositories"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/telemetry"
)

// TasksTable はチェンジフィードでのタスクテーブル名です。
const TasksTable = "tasks"

var tracer = otel.Tracer("github.com/Buildeployship/Advanced-Task-Manager/internal/services")

// Actor は操作を行う認証済みユーザーです。
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin は管理者かどうかを返します。
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func (a Actor) canAccess(ownerID string) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

// Publisher は変更通知の発行先です。
type Publisher interface {
	Publish(ctx context.Context, c feed.Change)
}

// TaskService はタスク関連のビジネスロジックを扱います。
// 書き込みが成功するたびに tasks テーブルの変更を通知します。
type TaskService struct {
	taskRepo repositories.TaskRepository
	pub      Publisher
	metrics  *telemetry.Metrics
}

// NewTaskService は新しいTaskServiceを作成します。pub と metrics は nil でも構いません。
func NewTaskService(taskRepo repositories.TaskRepository, pub Publisher, metrics *telemetry.Metrics) *TaskService {
	return &TaskService{taskRepo: taskRepo, pub: pub, metrics: metrics}
}

func (s *TaskService) changed(ctx context.Context, op string) {
	s.metrics.RecordWrite(ctx, op)
	if s.pub != nil {
		s.pub.Publish(ctx, feed.Change{Table: TasksTable, Op: op})
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ListTasks は ownerID のタスクを作成日時の降順で返します。
func (s *TaskService) ListTasks(ctx context.Context, ownerID string, actor Actor) ([]*models.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.ListTasks",
		trace.WithAttributes(attribute.String("task.owner_id", ownerID)),
	)
	defer span.End()

	if !actor.canAccess(ownerID) {
		return nil, fail(span, models.ErrTaskForbidden)
	}
	tasks, err := s.taskRepo.FindByUserID(ctx, ownerID)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// ListAllTasks は全ユーザーのタスクを返します。管理者のみ。
func (s *TaskService) ListAllTasks(ctx context.Context, actor Actor) ([]*models.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.ListAllTasks")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, fail(span, models.ErrTaskForbidden)
	}
	tasks, err := s.taskRepo.FindAll(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return tasks, nil
}

// GetTask は指定IDのタスクを取得し、認可チェックを行います。
func (s *TaskService) GetTask(ctx context.Context, id string, actor Actor) (*models.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if !actor.canAccess(task.UserID) {
		return nil, fail(span, models.ErrTaskNotFound) // アクセス拒否
	}
	return task, nil
}

// CreateTask は新しいタスクを作成します。所有者が空なら actor を所有者にします。
func (s *TaskService) CreateTask(ctx context.Context, in models.TaskInput, actor Actor) (*models.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.CreateTask",
		trace.WithAttributes(attribute.String("task.title", in.Title)),
	)
	defer span.End()

	if err := in.Normalize(); err != nil {
		return nil, fail(span, err)
	}
	if in.UserID == "" {
		in.UserID = actor.UserID
	}
	if !actor.canAccess(in.UserID) {
		return nil, fail(span, models.ErrTaskForbidden)
	}

	created, err := s.taskRepo.Create(ctx, &models.Task{
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Status:      in.Status,
		UserID:      in.UserID,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("task.id", created.ID))
	s.changed(ctx, feed.OpInsert)
	return created, nil
}

// UpdateTask は指定されたフィールドだけを更新し、認可チェックを行います。
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch models.TaskPatch, actor Actor) (*models.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.UpdateTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := patch.Validate(); err != nil {
		return nil, fail(span, err)
	}
	existing, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	if !actor.canAccess(existing.UserID) {
		return nil, fail(span, models.ErrTaskNotFound)
	}
	if patch.UserID != nil && !actor.canAccess(*patch.UserID) {
		return nil, fail(span, models.ErrTaskForbidden)
	}
	if patch.Empty() {
		return existing, nil
	}

	updated, err := s.taskRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, fail(span, err)
	}
	s.changed(ctx, feed.OpUpdate)
	return updated, nil
}

// DeleteTask はタスクを削除し、認可チェックを行います。
func (s *TaskService) DeleteTask(ctx context.Context, id string, actor Actor) error {
	ctx, span := tracer.Start(ctx, "TaskService.DeleteTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	existing, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if !actor.canAccess(existing.UserID) {
		return fail(span, models.ErrTaskNotFound)
	}
	if err := s.taskRepo.Delete(ctx, id); err != nil {
		return fail(span, err)
	}
	s.changed(ctx, feed.OpDelete)
	return nil
}
