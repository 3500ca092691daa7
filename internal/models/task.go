// Package modelsはTaskとUserを定義します。
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Priority はタスクの優先度です。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid は定義済みの優先度かどうかを返します。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status はボード表示用の進捗状態です。
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
)

// Valid は定義済みの状態かどうかを返します。
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task はユーザーが所有するタスクを表します。
// ID・UserID・タイムスタンプはバックエンドが設定し、クライアントは生成しません。
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Status      Status     `json:"status"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskInput は作成時の書き込みペイロードです。
// 空の任意項目は空文字ではなく nil (null) で送ります。
type TaskInput struct {
	Title       string     `json:"title" binding:"notblank"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Status      Status     `json:"status"`
	UserID      string     `json:"-"`
}

// Normalize はデフォルト値を補い、入力を検証します。
func (in *TaskInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrTitleRequired
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return ErrInvalidPriority
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TaskPatch は部分更新のペイロードです。未指定のフィールドは変更しません。
type TaskPatch struct {
	Title       *string             `json:"title"`
	Description Nullable[string]    `json:"description"`
	Completed   *bool               `json:"completed"`
	Priority    *Priority           `json:"priority"`
	DueDate     Nullable[time.Time] `json:"due_date"`
	Status      *Status             `json:"status"`
	UserID      *string             `json:"-"`
}

// Empty は変更対象のフィールドが一つもない場合に true を返します。
func (p TaskPatch) Empty() bool {
	return p.Title == nil && !p.Description.Set && p.Completed == nil &&
		p.Priority == nil && !p.DueDate.Set && p.Status == nil && p.UserID == nil
}

// Validate は指定されたフィールドを検証します。
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return ErrTitleRequired
		}
		p.Title = &t
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Apply はパッチをタスクに適用します。
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Value
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.UserID != nil {
		t.UserID = *p.UserID
	}
}

// Nullable は「未指定」「null」「値あり」を区別するフィールドです。
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Null は明示的な null を表す Nullable を返します。
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Some は値ありの Nullable を返します。
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// From はポインタが nil なら null、それ以外は値として Nullable を作ります。
func From[T any](v *T) Nullable[T] {
	return Nullable[T]{Set: true, Value: v}
}

// UnmarshalJSON はキーが存在する場合のみ呼ばれるため Set を立てます。
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// MarshalJSON は値または null を出力します。
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskForbidden   = errors.New("access to task denied")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidPriority = errors.New("priority must be one of low, medium, high")
	ErrInvalidStatus   = errors.New("status must be one of todo, inprogress, done")
)
