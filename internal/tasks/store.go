package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// TasksTable は購読するテーブル名です。
const TasksTable = "tasks"

// DeletePrompt は削除確認の文言です。
const DeletePrompt = "Are you sure you want to delete this task?"

// State は Store の状態です。
type State int

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// MarshalText はJSONで状態名を出すために使います。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ready":
		*s = StateReady
	case "loading":
		*s = StateLoading
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// Confirmer は削除前に利用者へ確認を求めます。
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc は関数を Confirmer として使うためのアダプターです。
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// View は画面に出す一覧の状態です。Rows と Board はフィルター後、Stats はフィルター前の全件に対する値です。
type View struct {
	State  State    `json:"state"`
	Filter Filter   `json:"filter"`
	Rows   []Row    `json:"rows"`
	Board  []Column `json:"board"`
	Stats  Stats    `json:"stats"`
}

// Option は Store の設定を変更します。
type Option func(*Store)

// WithClock は表示フラグの計算に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store は現在のユーザーのタスク一覧をキャッシュし、変更通知のたびに全件を読み直します。
// キャッシュは正本ではなく、応答は到着順に反映されます。
type Store struct {
	client backend.Client
	now    func() time.Time

	// deliverMu は表示の計算からリスナー呼び出しまでを直列にし、古い表示が後から届かないようにする
	deliverMu sync.Mutex

	mu        sync.Mutex
	state     State
	tasks     []*models.Task
	filter    Filter
	sub       backend.Subscription
	mounted   bool
	unmounted bool
	feedCtx   context.Context
	listeners []func(View)
}

// NewStore は client を使う Store を作成します。
func NewStore(client backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		now:    time.Now,
		state:  StateLoading,
		tasks:  []*models.Task{},
		filter: Filter{Priority: All, Completion: All},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange は読み込みやフィルター変更の反映後に呼ばれるリスナーを登録します。
// リスナーは1つずつ、表示を計算した順に呼ばれます。リスナーから Store の更新を呼んではいけません。
func (s *Store) OnChange(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Mount は変更通知を購読してから最初の読み込みを行います。2回目以降は何もしません。
// 通知ごとの読み込みには ctx が使われます。
func (s *Store) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted || s.unmounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.state = StateLoading
	s.feedCtx = ctx
	s.mu.Unlock()

	sub, err := s.client.Subscribe(TasksTable, s.onFeed)
	if err != nil {
		if !errors.Is(err, backend.ErrAuthRequired) {
			log.WithError(err).Error("Error subscribing to task changes")
		}
	} else {
		s.mu.Lock()
		if s.unmounted {
			s.mu.Unlock()
			sub.Unsubscribe()
			return nil
		}
		s.sub = sub
		s.mu.Unlock()
	}

	return s.Load(ctx)
}

func (s *Store) onFeed() {
	s.mu.Lock()
	ctx := s.feedCtx
	s.mu.Unlock()
	_ = s.Load(ctx)
}

// Load は現在のユーザーのタスクを作成日時の降順で取得して一覧を置き換えます。
// 未認証なら一覧を変えずに ErrAuthRequired を返します。
// 取得に失敗した場合はログに残し、前回の一覧を保持します。
func (s *Store) Load(ctx context.Context) error {
	if s.isUnmounted() {
		return nil
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, backend.ErrAuthRequired) {
			log.WithError(err).Error("Error fetching tasks")
		}
		s.apply(nil, false)
		return err
	}

	list, err := s.client.ListTasks(ctx, user.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("Error fetching tasks")
		s.apply(nil, false)
		return err
	}
	s.apply(list, true)
	return nil
}

// apply は取得結果を反映します。アンマウント後に届いた応答は捨てます。
func (s *Store) apply(list []*models.Task, replace bool) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	if replace {
		if list == nil {
			list = []*models.Task{}
		}
		s.tasks = list
	}
	s.state = StateReady
	view := s.viewLocked()
	listeners := append([]func(View){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}

func (s *Store) isUnmounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unmounted
}

// SetFilter はフィルターを置き換えて表示を再計算します。
func (s *Store) SetFilter(f Filter) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if f.Priority == "" {
		f.Priority = All
	}
	if f.Completion == "" {
		f.Completion = All
	}
	s.filter = f
	view := s.viewLocked()
	listeners := append([]func(View){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}

// Filter は現在のフィルターを返します。
func (s *Store) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// State は現在の状態を返します。
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Find はキャッシュ中のタスクをIDで探します。
func (s *Store) Find(id string) (*models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// View は現在の表示状態を返します。
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Store) viewLocked() View {
	now := s.now()
	filtered := Apply(s.tasks, s.filter)
	rows := make([]Row, 0, len(filtered))
	for _, t := range filtered {
		rows = append(rows, NewRow(t, now))
	}
	return View{
		State:  s.state,
		Filter: s.filter,
		Rows:   rows,
		Board:  Columns(filtered),
		Stats:  ComputeStats(s.tasks, now),
	}
}

// Delete は確認が得られた場合だけ削除を要求します。
// ローカルの一覧は変更せず、反映は変更通知による再読込に任せます。
func (s *Store) Delete(ctx context.Context, id string, confirm Confirmer) error {
	if confirm == nil || !confirm.Confirm(ctx, DeletePrompt) {
		return nil
	}
	if err := s.client.DeleteTask(ctx, id); err != nil {
		log.WithError(err).WithField("task_id", id).Error("Error deleting task")
		return err
	}
	return nil
}

// Unmount は購読を解除します。以降の応答は無視されます。何度呼んでも安全です。
func (s *Store) Unmount() {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return
	}
	s.unmounted = true
	sub := s.sub
	s.sub = nil
	s.listeners = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
