// Package tasks はタスク一覧画面の状態を扱います。
// Store が一覧の取得と購読を、Form が作成・編集を、Row が1行分の表示と操作を担当します。
// バックエンドには backend.Client を通してのみアクセスします。
package tasks

import (
	"strings"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// All はフィルターを無効にする値です。空文字も同じ扱いです。
const All = "all"

// 完了状態フィルターの値
const (
	CompletionCompleted = "completed"
	CompletionPending   = "pending"
)

// Filter は一覧に適用する3つの独立した条件です。すべて AND で結合されます。
type Filter struct {
	Search     string `json:"search"`
	Priority   string `json:"priority"`
	Completion string `json:"completion"`
}

func isAll(v string) bool {
	return v == "" || v == All
}

// Matches はタスクが3条件をすべて満たすかを返します。
func (f Filter) Matches(t *models.Task) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		inTitle := strings.Contains(strings.ToLower(t.Title), q)
		inDesc := t.Description != nil && strings.Contains(strings.ToLower(*t.Description), q)
		if !inTitle && !inDesc {
			return false
		}
	}
	if !isAll(f.Priority) && string(t.Priority) != f.Priority {
		return false
	}
	switch f.Completion {
	case CompletionCompleted:
		if !t.Completed {
			return false
		}
	case CompletionPending:
		if t.Completed {
			return false
		}
	}
	return true
}

// Apply は条件に一致するタスクを元の順序のまま返します。入力は変更しません。
func Apply(list []*models.Task, f Filter) []*models.Task {
	out := make([]*models.Task, 0, len(list))
	for _, t := range list {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
