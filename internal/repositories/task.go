// Package repositories はデータベース操作を行うリポジトリを提供します。
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// TaskRepository はタスクの永続化を抽象化します。
// Create は ID とタイムスタンプを割り当てた結果を返します。
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindByUserID(ctx context.Context, userID string) ([]*models.Task, error)
	FindAll(ctx context.Context) ([]*models.Task, error)
	Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

const taskColumns = "id, user_id, title, description, completed, priority, due_date, status, created_at, updated_at"

// MySQLTaskRepo は TaskRepository のMySQL実装です。
type MySQLTaskRepo struct {
	DB *sql.DB
}

// NewMySQLTaskRepo は新しいMySQLTaskRepoインスタンスを作成します。
func NewMySQLTaskRepo(db *sql.DB) *MySQLTaskRepo {
	return &MySQLTaskRepo{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t           models.Task
		description sql.NullString
		dueDate     sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &t.Completed,
		&t.Priority, &dueDate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	return &t, nil
}

// Create は新しいタスクをデータベースに挿入します。
func (r *MySQLTaskRepo) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	id := uuid.New().String()
	query := "INSERT INTO tasks (id, user_id, title, description, completed, priority, due_date, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	_, err := r.DB.ExecContext(ctx, query, id, t.UserID, t.Title, t.Description, t.Completed, t.Priority, t.DueDate, t.Status)
	if err != nil {
		log.Printf("Failed to insert task: %v", err)
		return nil, fmt.Errorf("could not insert task: %w", err)
	}

	// created_at/updated_at はDBが設定するので読み直す
	return r.FindByID(ctx, id)
}

// FindByID は指定されたIDのタスクを取得します。
func (r *MySQLTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"

	t, err := scanTask(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTaskNotFound
		}
		log.Printf("Failed to query task by ID: %v", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	return t, nil
}

// FindByUserID はユーザーのタスクを作成日時の降順で取得します。
func (r *MySQLTaskRepo) FindByUserID(ctx context.Context, userID string) ([]*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ? ORDER BY created_at DESC"
	return r.query(ctx, query, userID)
}

// FindAll はすべてのタスクを作成日時の降順で取得します。
func (r *MySQLTaskRepo) FindAll(ctx context.Context) ([]*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks ORDER BY created_at DESC"
	return r.query(ctx, query)
}

func (r *MySQLTaskRepo) query(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("Failed to query tasks: %v", err)
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Printf("Failed to scan task: %v", err)
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update は指定されたフィールドだけを更新します。
func (r *MySQLTaskRepo) Update(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	var (
		sets []string
		args []any
	)
	if patch.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *patch.Title)
	}
	if patch.Description.Set {
		sets, args = append(sets, "description = ?"), append(args, patch.Description.Value)
	}
	if patch.Completed != nil {
		sets, args = append(sets, "completed = ?"), append(args, *patch.Completed)
	}
	if patch.Priority != nil {
		sets, args = append(sets, "priority = ?"), append(args, *patch.Priority)
	}
	if patch.DueDate.Set {
		sets, args = append(sets, "due_date = ?"), append(args, patch.DueDate.Value)
	}
	if patch.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, *patch.Status)
	}
	if patch.UserID != nil {
		sets, args = append(sets, "user_id = ?"), append(args, *patch.UserID)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		log.Printf("Failed to update task: %v", err)
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	// MySQLは値が変わらない行をRowsAffectedに数えないので存在確認は読み直しで行う
	return r.FindByID(ctx, id)
}

// Delete は指定されたIDのタスクを削除します。
func (r *MySQLTaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrTaskNotFound
	}
	return nil
}
