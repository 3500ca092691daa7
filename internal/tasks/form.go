package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// DateLayout はフォームの期限日の書式です。日付はUTCの0時として扱います。
const DateLayout = "2006-01-02"

var (
	// ErrSubmitDisabled はタイトルが空、または送信中のときに返されます。書き込みは行いません。
	ErrSubmitDisabled = errors.New("submit is disabled")
	ErrInvalidDueDate = errors.New("due date must be YYYY-MM-DD")
)

// Mode はフォームの動作モードです。
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Fields はフォームの入力値です。空の説明と期限は null として送ります。
type Fields struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    models.Priority `json:"priority"`
	DueDate     string          `json:"due_date"`
	Status      models.Status   `json:"status"`
}

// Form は1件のタスクの作成・編集フォームです。
type Form struct {
	client    backend.Client
	task      *models.Task
	onSuccess func()

	mu         sync.Mutex
	fields     Fields
	submitting bool
	err        string
}

// NewForm は task が nil なら作成モード、それ以外は編集モードのフォームを作ります。
func NewForm(client backend.Client, task *models.Task, onSuccess func()) *Form {
	f := &Form{
		client:    client,
		task:      task,
		onSuccess: onSuccess,
		fields:    Fields{Priority: models.PriorityMedium, Status: models.StatusTodo},
	}
	if task != nil {
		f.fields.Title = task.Title
		if task.Description != nil {
			f.fields.Description = *task.Description
		}
		if task.Priority != "" {
			f.fields.Priority = task.Priority
		}
		if task.DueDate != nil {
			f.fields.DueDate = task.DueDate.UTC().Format(DateLayout)
		}
		if task.Status != "" {
			f.fields.Status = task.Status
		}
	}
	return f
}

// Mode はフォームのモードを返します。
func (f *Form) Mode() Mode {
	if f.task == nil {
		return ModeCreate
	}
	return ModeEdit
}

// Task は編集対象のタスクを返します。作成モードでは nil です。
func (f *Form) Task() *models.Task {
	return f.task
}

// Fields は現在の入力値を返します。
func (f *Form) Fields() Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields
}

// SetFields は入力値を置き換えます。
func (f *Form) SetFields(fields Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = fields
}

// SetTitle はタイトルだけを変更します。
func (f *Form) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields.Title = title
}

// CanSubmit はタイトルが空白以外を含み、送信中でない場合に true を返します。
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canSubmitLocked()
}

func (f *Form) canSubmitLocked() bool {
	return !f.submitting && strings.TrimSpace(f.fields.Title) != ""
}

// Submitting は送信中かどうかを返します。
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Error はインラインに表示するエラーメッセージを返します。
func (f *Form) Error() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Submit は作成モードなら挿入、編集モードなら全項目の更新を送ります。
// 失敗時はメッセージを Error に残し、フォームはそのまま再送信できます。
// 成功時は onSuccess を呼びます。
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if !f.canSubmitLocked() {
		f.mu.Unlock()
		return ErrSubmitDisabled
	}
	f.submitting = true
	f.err = ""
	fields := f.fields
	f.mu.Unlock()

	err := f.write(ctx, fields)

	f.mu.Lock()
	f.submitting = false
	if err != nil && !errors.Is(err, backend.ErrAuthRequired) {
		f.err = message(err)
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if f.onSuccess != nil {
		f.onSuccess()
	}
	return nil
}

func (f *Form) write(ctx context.Context, fields Fields) error {
	var due *time.Time
	if d := strings.TrimSpace(fields.DueDate); d != "" {
		parsed, err := time.ParseInLocation(DateLayout, d, time.UTC)
		if err != nil {
			return ErrInvalidDueDate
		}
		due = &parsed
	}

	// 所有者は編集モードでも常に現在のセッションから取る
	user, err := f.client.CurrentUser(ctx)
	if err != nil {
		return err
	}

	var desc *string
	if fields.Description != "" {
		d := fields.Description
		desc = &d
	}
	title := strings.TrimSpace(fields.Title)
	priority := fields.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	if f.task == nil {
		_, err = f.client.InsertTask(ctx, models.TaskInput{
			Title:       title,
			Description: desc,
			Priority:    priority,
			DueDate:     due,
			Status:      fields.Status,
			UserID:      user.ID,
		})
		return err
	}

	patch := models.TaskPatch{
		Title:       &title,
		Description: models.From(desc),
		Priority:    &priority,
		DueDate:     models.From(due),
		UserID:      &user.ID,
	}
	if fields.Status != "" {
		status := fields.Status
		patch.Status = &status
	}
	_, err = f.client.UpdateTask(ctx, f.task.ID, patch)
	return err
}

func message(err error) string {
	var reqErr *backend.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return err.Error()
}
