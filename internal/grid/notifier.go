package grid

import (
	"sync"

	"github.com/annel0/mmo-grid/internal/logging"
)

// Subscriber получает полную запись региона после каждого успешного
// обновления или снятия с регистрации. Должен завершаться за ограниченное время.
type Subscriber func(rec RegionRecord)

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

type subscriberEntry struct {
	id int
	fn Subscriber
}

// Notifier рассылает изменения регионов подписчикам.
// Publish вызывается только после того, как директория отпустила свой мьютекс,
// поэтому подписчик может безопасно обращаться к директории.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscriberEntry
	nextID int

	onFailure func(rec RegionRecord, recovered interface{})
}

// NewNotifier создаёт пустой Notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe добавляет подписчика в конец списка рассылки
func (n *Notifier) Subscribe(fn Subscriber) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs = append(n.subs, subscriberEntry{id: id, fn: fn})
	return &notifierSub{n: n, id: id}
}

// Len возвращает количество активных подписчиков
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish синхронно вызывает всех подписчиков по очереди.
// Паника подписчика перехватывается и не мешает остальным.
// Возвращает число подписчиков, завершившихся без паники.
func (n *Notifier) Publish(rec RegionRecord) int {
	n.mu.RLock()
	subs := make([]subscriberEntry, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if n.deliver(sub, rec) {
			delivered++
		}
	}
	return delivered
}

func (n *Notifier) deliver(sub subscriberEntry, rec RegionRecord) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logging.Warn("📣 Notifier: подписчик %d упал на регионе %s: %v", sub.id, rec.RegionID, r)
			if n.onFailure != nil {
				n.onFailure(rec, r)
			}
		}
	}()
	sub.fn(rec)
	return true
}

func (n *Notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, sub := range n.subs {
		if sub.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

type notifierSub struct {
	n    *Notifier
	id   int
	once sync.Once
}

func (s *notifierSub) Unsubscribe() {
	s.once.Do(func() { s.n.unsubscribe(s.id) })
}
