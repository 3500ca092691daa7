package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

type updateCall struct {
	ID    string
	Patch models.TaskPatch
}

// fakeClient は backend.Client のテスト用実装です。通知は emit で明示的に送ります。
type fakeClient struct {
	mu sync.Mutex

	user  *models.User
	tasks []*models.Task
	seq   int

	listErr   error
	insertErr error
	updateErr error
	deleteErr error
	subErr    error

	// listGate が設定されていれば ListTasks はそこから値を受け取るまで待つ
	listGate   chan struct{}
	insertGate chan struct{}

	listCalls int
	inserts   []models.TaskInput
	updates   []updateCall
	deletes   []string
	subs      map[int]func()
	nextSub   int
}

func newFakeClient(userID string) *fakeClient {
	return &fakeClient{
		user: &models.User{ID: userID, Username: userID},
		subs: make(map[int]func()),
	}
}

func (c *fakeClient) seed(title string, mutate func(*models.Task)) *models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &models.Task{
		ID:        fmt.Sprintf("t%d", c.seq),
		Title:     title,
		Priority:  models.PriorityMedium,
		Status:    models.StatusTodo,
		UserID:    c.user.ID,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, c.seq, 0, time.UTC),
	}
	if mutate != nil {
		mutate(t)
	}
	c.tasks = append(c.tasks, t)
	return t
}

func (c *fakeClient) setListErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

func (c *fakeClient) subCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeClient) lists() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func (c *fakeClient) emit() {
	c.mu.Lock()
	var fns []func()
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeClient) CurrentUser(context.Context) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil, backend.ErrAuthRequired
	}
	u := *c.user
	return &u, nil
}

func (c *fakeClient) SignOut(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	return nil
}

func (c *fakeClient) ListTasks(_ context.Context, ownerID string) ([]*models.Task, error) {
	c.mu.Lock()
	c.listCalls++
	gate := c.listGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, &backend.RequestError{Op: "list tasks", Message: c.listErr.Error(), Err: c.listErr}
	}
	var out []*models.Task
	for _, t := range c.tasks {
		if t.UserID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *fakeClient) InsertTask(_ context.Context, in models.TaskInput) (*models.Task, error) {
	c.mu.Lock()
	c.inserts = append(c.inserts, in)
	err := c.insertErr
	gate := c.insertGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, &backend.RequestError{Op: "insert task", Message: err.Error(), Err: err}
	}
	return c.seed(in.Title, func(t *models.Task) {
		t.Description = in.Description
		t.Priority = in.Priority
		t.DueDate = in.DueDate
		t.UserID = in.UserID
	}), nil
}

func (c *fakeClient) UpdateTask(_ context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, updateCall{ID: id, Patch: patch})
	if c.updateErr != nil {
		return nil, &backend.RequestError{Op: "update task", Message: c.updateErr.Error(), Err: c.updateErr}
	}
	for _, t := range c.tasks {
		if t.ID == id {
			patch.Apply(t)
			cp := *t
			return &cp, nil
		}
	}
	return nil, &backend.RequestError{Op: "update task", Message: "task not found", Err: models.ErrTaskNotFound}
}

func (c *fakeClient) DeleteTask(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, id)
	if c.deleteErr != nil {
		return &backend.RequestError{Op: "delete task", Message: c.deleteErr.Error(), Err: c.deleteErr}
	}
	for i, t := range c.tasks {
		if t.ID == id {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeSub struct {
	c  *fakeClient
	id int
}

func (s fakeSub) Unsubscribe() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.subs, s.id)
}

func (c *fakeClient) Subscribe(table string, onAnyChange func()) (backend.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	if table != TasksTable {
		return nil, fmt.Errorf("unexpected table %q", table)
	}
	c.nextSub++
	c.subs[c.nextSub] = onAnyChange
	return fakeSub{c: c, id: c.nextSub}, nil
}
