package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// DueSoonWindow は「期限間近」とみなす期間です。
const DueSoonWindow = 24 * time.Hour

// IsOverdue は期限が now より前で未完了なら true を返します。
func IsOverdue(t *models.Task, now time.Time) bool {
	return t.DueDate != nil && !t.Completed && t.DueDate.Before(now)
}

// IsDueSoon は期限が now より後かつ24時間以内で未完了なら true を返します。
// IsOverdue と同時に true になることはありません。
func IsDueSoon(t *models.Task, now time.Time) bool {
	if t.DueDate == nil || t.Completed {
		return false
	}
	return t.DueDate.After(now) && !t.DueDate.After(now.Add(DueSoonWindow))
}

// PriorityVariant は優先度バッジの表示種別を返します。
func PriorityVariant(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "destructive"
	case models.PriorityMedium:
		return "default"
	case models.PriorityLow:
		return "secondary"
	}
	return "outline"
}

// Row は1件のタスクの表示用データです。表示フラグは生成時の now から毎回計算されます。
type Row struct {
	Task            *models.Task `json:"task"`
	Overdue         bool         `json:"overdue"`
	DueSoon         bool         `json:"due_soon"`
	PriorityVariant string       `json:"priority_variant"`
}

// NewRow は now 時点の表示フラグを持つ Row を作成します。
func NewRow(t *models.Task, now time.Time) Row {
	return Row{
		Task:            t,
		Overdue:         IsOverdue(t, now),
		DueSoon:         IsDueSoon(t, now),
		PriorityVariant: PriorityVariant(t.Priority),
	}
}

// RowActions は行の3つの操作です。タスクの状態は持たず、
// 画面への反映は次回の再読込に任せます。
type RowActions struct {
	data     backend.Data
	task     *models.Task
	onEdit   func(*models.Task)
	onDelete func(id string)
}

// NewRowActions は task に対する操作を作成します。onEdit と onDelete は呼び出し側が用意します。
func NewRowActions(data backend.Data, task *models.Task, onEdit func(*models.Task), onDelete func(id string)) *RowActions {
	return &RowActions{data: data, task: task, onEdit: onEdit, onDelete: onDelete}
}

// Toggle は completed だけを反転して送ります。
// 失敗はログに残し、ローカルの状態は変えません。
func (a *RowActions) Toggle(ctx context.Context) error {
	completed := !a.task.Completed
	_, err := a.data.UpdateTask(ctx, a.task.ID, models.TaskPatch{Completed: &completed})
	if err != nil {
		log.WithError(err).WithField("task_id", a.task.ID).Error("Error toggling task")
		return err
	}
	return nil
}

// Edit は編集ハンドラーにタスクを渡します。
func (a *RowActions) Edit() {
	if a.onEdit != nil {
		a.onEdit(a.task)
	}
}

// Delete は削除ハンドラーにタスクIDを渡します。確認は呼び出し側が行います。
func (a *RowActions) Delete() {
	if a.onDelete != nil {
		a.onDelete(a.task.ID)
	}
}
