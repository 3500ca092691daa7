package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
)

// Session はサーバー内のサービスとハブを直接呼ぶ Client 実装です。
// 1つのサインイン済みユーザーに紐づき、SignOut 後は ErrAuthRequired を返します。
type Session struct {
	users *services.UserService
	tasks *services.TaskService
	hub   *feed.Hub

	mu        sync.RWMutex
	actor     *services.Actor
	onSignOut func(ctx context.Context) error
}

// NewSession は actor として振る舞うセッションを作成します。
func NewSession(users *services.UserService, tasks *services.TaskService, hub *feed.Hub, actor services.Actor) *Session {
	return &Session{users: users, tasks: tasks, hub: hub, actor: &actor}
}

// OnSignOut は SignOut のときに呼ぶ処理を設定します。トークンの失効などに使います。
func (s *Session) OnSignOut(fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSignOut = fn
}

func (s *Session) current() (services.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actor == nil {
		return services.Actor{}, ErrAuthRequired
	}
	return *s.actor, nil
}

func (s *Session) CurrentUser(ctx context.Context) (*models.User, error) {
	actor, err := s.current()
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, wrap("get user", err)
	}
	return u, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.actor == nil {
		s.mu.Unlock()
		return ErrAuthRequired
	}
	s.actor = nil
	fn := s.onSignOut
	s.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return wrap("sign out", err)
		}
	}
	return nil
}

func (s *Session) ListTasks(ctx context.Context, ownerID string) ([]*models.Task, error) {
	actor, err := s.current()
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListTasks(ctx, ownerID, actor)
	if err != nil {
		return nil, wrap("list tasks", err)
	}
	return tasks, nil
}

func (s *Session) InsertTask(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	actor, err := s.current()
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.CreateTask(ctx, in, actor)
	if err != nil {
		return nil, wrap("insert task", err)
	}
	return t, nil
}

func (s *Session) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	actor, err := s.current()
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.UpdateTask(ctx, id, patch, actor)
	if err != nil {
		return nil, wrap("update task", err)
	}
	return t, nil
}

func (s *Session) DeleteTask(ctx context.Context, id string) error {
	actor, err := s.current()
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, id, actor); err != nil {
		return wrap("delete task", err)
	}
	return nil
}

func (s *Session) Subscribe(table string, onAnyChange func()) (Subscription, error) {
	if _, err := s.current(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(table, func(feed.Change) { onAnyChange() }), nil
}

// wrap はサービスのエラーを RequestError に変換します。
func wrap(op string, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}
	return &RequestError{Op: op, Message: err.Error(), Err: err}
}
