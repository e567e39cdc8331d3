package service

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type callEntry struct {
	tx    domain.CallTransaction
	timer *time.Timer
}

// CallLedger tracks call attempts between pairs of users. It is bookkeeping
// only: relays are forwarded whether or not an entry exists.
type CallLedger struct {
	mu          sync.Mutex
	calls       map[domain.CallKey]*callEntry
	ringTimeout time.Duration
	onExpire    func(domain.CallTransaction)
	now         func() time.Time
}

// NewCallLedger creates a ledger. A positive ringTimeout expires attempts that
// are still unanswered after that long and hands them to onExpire.
func NewCallLedger(ringTimeout time.Duration, onExpire func(domain.CallTransaction)) *CallLedger {
	return &CallLedger{
		calls:       make(map[domain.CallKey]*callEntry),
		ringTimeout: ringTimeout,
		onExpire:    onExpire,
		now:         time.Now,
	}
}

func (l *CallLedger) SetOnExpire(fn func(domain.CallTransaction)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onExpire = fn
}

// Begin records a new attempt from initiator to target, replacing any earlier
// attempt between the same pair in the same direction.
func (l *CallLedger) Begin(initiator, target domain.UserID) domain.CallTransaction {
	key := domain.CallKey{Initiator: initiator, Target: target}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.calls[key]; ok {
		l.stopLocked(old)
	}
	e := &callEntry{tx: domain.CallTransaction{
		Key:       key,
		State:     domain.CallInitiated,
		StartedAt: now,
		UpdatedAt: now,
	}}
	if l.ringTimeout > 0 {
		e.timer = time.AfterFunc(l.ringTimeout, func() { l.expire(key, e) })
	}
	l.calls[key] = e
	return e.tx
}

// Ringing marks the attempt as delivered to the target.
func (l *CallLedger) Ringing(initiator, target domain.UserID) (domain.CallTransaction, bool) {
	key := domain.CallKey{Initiator: initiator, Target: target}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.calls[key]
	if !ok || e.tx.State != domain.CallInitiated {
		return domain.CallTransaction{}, false
	}
	e.tx.State = domain.CallRinging
	e.tx.UpdatedAt = l.now()
	return e.tx, true
}

// Finish moves the attempt between a and b, in either direction, to a
// terminal state and forgets it.
func (l *CallLedger) Finish(a, b domain.UserID, state domain.CallState) (domain.CallTransaction, bool) {
	if !state.Terminal() {
		return domain.CallTransaction{}, false
	}
	key := domain.CallKey{Initiator: a, Target: b}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.calls[key]
	if !ok {
		key = key.Reverse()
		if e, ok = l.calls[key]; !ok {
			return domain.CallTransaction{}, false
		}
	}
	l.stopLocked(e)
	delete(l.calls, key)
	e.tx.State = state
	e.tx.UpdatedAt = l.now()
	return e.tx, true
}

func (l *CallLedger) Get(initiator, target domain.UserID) (domain.CallTransaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.calls[domain.CallKey{Initiator: initiator, Target: target}]
	if !ok {
		return domain.CallTransaction{}, false
	}
	return e.tx, true
}

// DropUser forgets every attempt involving user and returns them.
func (l *CallLedger) DropUser(user domain.UserID) []domain.CallTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := lo.Filter(lo.Keys(l.calls), func(k domain.CallKey, _ int) bool {
		return k.Initiator == user || k.Target == user
	})
	dropped := make([]domain.CallTransaction, 0, len(keys))
	for _, k := range keys {
		e := l.calls[k]
		l.stopLocked(e)
		delete(l.calls, k)
		dropped = append(dropped, e.tx)
	}
	return dropped
}

func (l *CallLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func (l *CallLedger) expire(key domain.CallKey, e *callEntry) {
	l.mu.Lock()
	cur, ok := l.calls[key]
	if !ok || cur != e || e.tx.State.Terminal() {
		l.mu.Unlock()
		return
	}
	delete(l.calls, key)
	e.tx.State = domain.CallEnded
	e.tx.UpdatedAt = l.now()
	tx, fn := e.tx, l.onExpire
	l.mu.Unlock()

	if fn != nil {
		fn(tx)
	}
}

func (l *CallLedger) stopLocked(e *callEntry) {
	if e.timer != nil {
		e.timer.Stop()
	}
}
