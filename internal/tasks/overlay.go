package tasks

import (
	"sync"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// Opener はトリガーがオーバーレイを開くための唯一の操作です。
type Opener interface {
	RequestOpen()
}

// OpenerFunc は関数を Opener として使うためのアダプターです。
type OpenerFunc func()

func (f OpenerFunc) RequestOpen() { f() }

// Overlay は閉じている/開いているの2状態だけを持ちます。
type Overlay struct {
	mu   sync.Mutex
	open bool
}

func (o *Overlay) RequestOpen() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = true
}

func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = false
}

func (o *Overlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// Dialog は作成・編集モーダルです。開くたびに新しい Form を用意し、
// 保存成功かキャンセルで閉じて編集中のタスクを破棄します。
type Dialog struct {
	client  backend.Client
	onSaved func()
	overlay Overlay

	mu   sync.Mutex
	form *Form
}

// NewDialog は保存成功時に onSaved を呼ぶ Dialog を作成します。
func NewDialog(client backend.Client, onSaved func()) *Dialog {
	return &Dialog{client: client, onSaved: onSaved}
}

// NewTaskTrigger は「New Task」ボタン用の Opener を返します。編集中のタスクはリセットされます。
func (d *Dialog) NewTaskTrigger() Opener {
	return OpenerFunc(func() { d.Open(nil) })
}

// Open は task を編集するフォームでモーダルを開きます。task が nil なら作成です。
func (d *Dialog) Open(task *models.Task) *Form {
	var form *Form
	form = NewForm(d.client, task, func() { d.saved(form) })
	d.mu.Lock()
	d.form = form
	d.mu.Unlock()
	d.overlay.RequestOpen()
	return form
}

// Form は表示中のフォームを返します。閉じていれば nil です。
func (d *Dialog) Form() *Form {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.form
}

// IsOpen はモーダルが開いているかを返します。
func (d *Dialog) IsOpen() bool {
	return d.overlay.IsOpen()
}

// Cancel はモーダルを閉じます。
func (d *Dialog) Cancel() {
	d.mu.Lock()
	d.form = nil
	d.mu.Unlock()
	d.overlay.Close()
}

// 後から開いた別のフォームは閉じない
func (d *Dialog) saved(form *Form) {
	d.mu.Lock()
	current := d.form == form
	if current {
		d.form = nil
	}
	d.mu.Unlock()
	if current {
		d.overlay.Close()
	}
	if d.onSaved != nil {
		d.onSaved()
	}
}
