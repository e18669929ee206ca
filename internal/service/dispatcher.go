package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// Dispatcher はイベントをロスターのキーごとに受信順で処理する
//
// 同じキーのイベントは一つずつ実行され、別のキーのイベントは並行して実行される。
// あるロスターのプラットフォーム呼び出しが止まっても、止まるのはそのロスターだけになる。
type Dispatcher struct {
	handler domain.EventHandler

	mu     sync.Mutex
	queues map[domain.RosterKey][]func()
	group  errgroup.Group
}

// NewDispatcher は新しいDispatcherを作成する
func NewDispatcher(handler domain.EventHandler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		queues:  make(map[domain.RosterKey][]func()),
	}
}

// HandleReactionAdded はリアクションの追加をキューに入れる
func (d *Dispatcher) HandleReactionAdded(ctx context.Context, ev domain.ReactionEvent) {
	d.enqueue(ev.Key(), func() { d.handler.HandleReactionAdded(ctx, ev) })
}

// HandleReactionRemoved はリアクションの削除をキューに入れる
func (d *Dispatcher) HandleReactionRemoved(ctx context.Context, ev domain.ReactionEvent) {
	d.enqueue(ev.Key(), func() { d.handler.HandleReactionRemoved(ctx, ev) })
}

// HandleMessage はスレッドのメッセージをキューに入れる
func (d *Dispatcher) HandleMessage(ctx context.Context, ev domain.MessageEvent) {
	d.enqueue(ev.Key(), func() { d.handler.HandleMessage(ctx, ev) })
}

// Wait はキューに入っているすべてのイベントの処理が終わるまで待つ
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}

// enqueue は fn をキーのキューに追加し、処理中のワーカーがなければ起動する
// キーがマップにある間はそのキーのワーカーが動いている
func (d *Dispatcher) enqueue(key domain.RosterKey, fn func()) {
	d.mu.Lock()
	queue, running := d.queues[key]
	d.queues[key] = append(queue, fn)
	d.mu.Unlock()
	if running {
		return
	}

	d.group.Go(func() error {
		d.drain(key)
		return nil
	})
}

func (d *Dispatcher) drain(key domain.RosterKey) {
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		fn := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		fn()
	}
}
