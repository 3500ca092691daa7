package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// MemoryTaskRepo は DB_HOST 未設定時とテストで使うインメモリ実装です。
type MemoryTaskRepo struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	last  time.Time
}

// NewMemoryTaskRepo は空のMemoryTaskRepoを作成します。
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{tasks: make(map[string]*models.Task)}
}

// 作成日時が同一にならないよう単調増加させる
func (r *MemoryTaskRepo) now() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(r.last) {
		now = r.last.Add(time.Microsecond)
	}
	r.last = now
	return now
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}

func (r *MemoryTaskRepo) Create(_ context.Context, t *models.Task) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneTask(t)
	stored.ID = uuid.New().String()
	stored.CreatedAt = r.now()
	stored.UpdatedAt = stored.CreatedAt
	r.tasks[stored.ID] = stored
	return cloneTask(stored), nil
}

func (r *MemoryTaskRepo) FindByID(_ context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r *MemoryTaskRepo) FindByUserID(_ context.Context, userID string) ([]*models.Task, error) {
	return r.list(func(t *models.Task) bool { return t.UserID == userID }), nil
}

func (r *MemoryTaskRepo) FindAll(_ context.Context) ([]*models.Task, error) {
	return r.list(func(*models.Task) bool { return true }), nil
}

func (r *MemoryTaskRepo) list(keep func(*models.Task) bool) []*models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []*models.Task{}
	for _, t := range r.tasks {
		if keep(t) {
			tasks = append(tasks, cloneTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks
}

func (r *MemoryTaskRepo) Update(_ context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	patch.Apply(t)
	t.UpdatedAt = r.now()
	return cloneTask(t), nil
}

func (r *MemoryTaskRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return models.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

// MemoryUserRepo は UserRepository のインメモリ実装です。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewMemoryUserRepo は空のMemoryUserRepoを作成します。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return nil, models.ErrDuplicateEmail
		}
	}
	stored := *u
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Role == "" {
		stored.Role = models.RoleUser
	}
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.users[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	out := *u
	return &out, nil
}
