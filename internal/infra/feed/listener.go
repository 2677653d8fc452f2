// Package feed turns Postgres LISTEN/NOTIFY into an in-process change feed
// for redemption records. Writers emit pg_notify inside their transaction,
// so subscribers only ever observe committed state.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"loyalty-core/internal/infra/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	UserID       uuid.UUID `json:"user_id"`
	RedemptionID uuid.UUID `json:"redemption_id"`
	Event        string    `json:"event"`
}

type Listener struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	userSub map[uuid.UUID]map[chan Event]struct{}
	allSub  map[chan Event]struct{}
}

func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool:    pool,
		userSub: make(map[uuid.UUID]map[chan Event]struct{}),
		allSub:  make(map[chan Event]struct{}),
	}
}

// Run blocks on the notification connection until ctx is cancelled.
// Connection loss is retried with a flat backoff; missed notifications are
// covered by the reconciliation sweep, not by the feed itself.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("change feed connection lost, reconnecting", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+repository.RedemptionChangeChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			slog.Warn("discarding malformed change event", "payload", notification.Payload)
			continue
		}

		l.dispatch(ev)
	}
}

// dispatch never blocks: a slow subscriber drops events rather than stalling
// delivery to the others. Subscribers treat an event as "something changed"
// and re-query, so a drop costs freshness, not correctness.
func (l *Listener) dispatch(ev Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for ch := range l.allSub {
		select {
		case ch <- ev:
		default:
		}
	}
	for ch := range l.userSub[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe delivers events for a single user. The returned cancel func must
// be called to release the channel.
func (l *Listener) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	l.mu.Lock()
	if l.userSub[userID] == nil {
		l.userSub[userID] = make(map[chan Event]struct{})
	}
	l.userSub[userID][ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.userSub[userID], ch)
		if len(l.userSub[userID]) == 0 {
			delete(l.userSub, userID)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeAll delivers every event regardless of user.
func (l *Listener) SubscribeAll() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	l.mu.Lock()
	l.allSub[ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.allSub, ch)
		l.mu.Unlock()
	}
	return ch, cancel
}
