// Package backend はタスクUIが依存するバックエンドの機能 (認証・データ・チェンジフィード) を定義します。
// UI側はこのインターフェースだけを通してバックエンドに触れます。
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// ErrAuthRequired は認証済みセッションが無い場合に返されます。
// 画面ではインラインエラーにせずサインインへ誘導します。
var ErrAuthRequired = errors.New("authentication required")

// RequestError はバックエンドへの要求が失敗したことを表します。
// Message は利用者に見せられる文言です。
type RequestError struct {
	Op      string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Auth は現在のユーザーとサインアウトを提供します。
type Auth interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	SignOut(ctx context.Context) error
}

// Data は tasks コレクションへの所有者スコープのCRUDです。
type Data interface {
	ListTasks(ctx context.Context, ownerID string) ([]*models.Task, error)
	InsertTask(ctx context.Context, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Subscription はチェンジフィードの購読ハンドルです。
type Subscription interface {
	Unsubscribe()
}

// Feed はテーブル単位の変更通知を購読します。通知は操作の種類を区別しません。
type Feed interface {
	Subscribe(table string, onAnyChange func()) (Subscription, error)
}

// Client はUIコンポーネントに注入するバックエンドハンドルです。
type Client interface {
	Auth
	Data
	Feed
}
