package tasks

import (
	"time"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// Stats はフィルター前の一覧全体に対する集計です。
type Stats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	Overdue        int `json:"overdue"`
	DueSoon        int `json:"due_soon"`
	CompletionRate int `json:"completion_rate"` // 0-100
}

// ComputeStats は now 時点の集計を返します。
func ComputeStats(list []*models.Task, now time.Time) Stats {
	var s Stats
	for _, t := range list {
		s.Total++
		if t.Completed {
			s.Completed++
		} else {
			s.Pending++
		}
		if IsOverdue(t, now) {
			s.Overdue++
		}
		if IsDueSoon(t, now) {
			s.DueSoon++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = s.Completed * 100 / s.Total
	}
	return s
}

// Column はボード表示の1列です。
type Column struct {
	Key   models.Status  `json:"key"`
	Title string         `json:"title"`
	Tasks []*models.Task `json:"tasks"`
}

// Columns は status ごとにタスクを振り分けます。未知の status は To Do に入ります。
func Columns(list []*models.Task) []Column {
	cols := []Column{
		{Key: models.StatusTodo, Title: "To Do", Tasks: []*models.Task{}},
		{Key: models.StatusInProgress, Title: "In Progress", Tasks: []*models.Task{}},
		{Key: models.StatusDone, Title: "Done", Tasks: []*models.Task{}},
	}
	for _, t := range list {
		idx := 0
		switch t.Status {
		case models.StatusInProgress:
			idx = 1
		case models.StatusDone:
			idx = 2
		}
		cols[idx].Tasks = append(cols[idx].Tasks, t)
	}
	return cols
}
