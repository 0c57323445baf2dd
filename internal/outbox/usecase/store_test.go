package usecase

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// memStore is an in-memory MessageRepository that applies the same eligibility and ordering rules
// as the SQL claim query.
type memStore struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*domain.Message
	markSentErr error
	markedSent  atomic.Int32
	// onSelect runs after a row was selected and before the claim update.
	onSelect func()
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uuid.UUID]*domain.Message)}
}

func (s *memStore) insert(topic, payload string) uuid.UUID {
	msg := domain.NewMessage(topic, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[msg.ID] = msg
	return msg.ID
}

func (s *memStore) snapshot(id uuid.UUID) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memStore) Create(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *msg
	s.rows[msg.ID] = &c
	return nil
}

func (s *memStore) SelectNext(ctx context.Context, now time.Time) (*domain.Message, error) {
	s.mu.Lock()
	var best *domain.Message
	for _, row := range s.rows {
		if !row.IsEligible(now) {
			continue
		}
		if best == nil || sortsBefore(row, best) {
			best = row
		}
	}
	var out *domain.Message
	if best != nil {
		c := *best
		out = &c
	}
	hook := s.onSelect
	s.mu.Unlock()

	if out != nil && hook != nil {
		hook()
	}
	return out, nil
}

func sortsBefore(a, b *domain.Message) bool {
	switch {
	case a.NextSendTime == nil && b.NextSendTime == nil:
		return a.CreatedAt.Before(b.CreatedAt)
	case a.NextSendTime == nil:
		return true
	case b.NextSendTime == nil:
		return false
	default:
		return a.NextSendTime.Before(*b.NextSendTime)
	}
}

func (s *memStore) IncrementSendCount(ctx context.Context, id uuid.UUID, nextSendTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	row.SendCount++
	row.NextSendTime = &nextSendTime
	return nil
}

func (s *memStore) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markSentErr != nil {
		return s.markSentErr
	}
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	if row.SentAt != nil {
		return domain.ErrAlreadySent
	}
	row.SentAt = &sentAt
	s.markedSent.Add(1)
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	c := *row
	return &c, nil
}

func (s *memStore) CountPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.SentAt == nil {
			n++
		}
	}
	return n, nil
}

// passthroughTx runs the unit of work without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedSender replays results in order and then keeps returning the last one.
type scriptedSender struct {
	mu      sync.Mutex
	results []sendResult
	calls   int
	onSend  func(msg *domain.Message)
}

type sendResult struct {
	delivered bool
	err       error
}

func alwaysDeliver() *scriptedSender {
	return &scriptedSender{results: []sendResult{{delivered: true}}}
}

func (s *scriptedSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	s.calls++
	hook := s.onSend
	s.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return res.delivered, res.err
}

func (s *scriptedSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeListener records the request channel it was registered with.
type fakeListener struct {
	mu          sync.Mutex
	registerErr error
	requests    chan<- struct{}
	info        domain.ConnectionInfo
	closed      int
}

func (l *fakeListener) Register(ctx context.Context, info domain.ConnectionInfo, requests chan<- struct{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registerErr != nil {
		return l.registerErr
	}
	l.requests = requests
	l.info = info
	return nil
}

func (l *fakeListener) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *fakeListener) signal() {
	l.mu.Lock()
	requests := l.requests
	l.mu.Unlock()
	select {
	case requests <- struct{}{}:
	default:
	}
}

func (l *fakeListener) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func newTestEngine(store MessageRepository, sender *scriptedSender, clock *fakeClock, listeners ...Listener) *Engine {
	var s domain.Sender
	if sender != nil {
		s = sender
	}
	e := NewEngine(
		Config{PollInterval: time.Hour},
		passthroughTx{},
		store,
		s,
		listeners,
		domain.ConnectionInfo{Driver: domain.DriverPostgres, ConnectionString: "postgres://localhost/outbox"},
		nil,
		nil,
	)
	if clock != nil {
		e.now = clock.Now
	}
	return e
}

func (s *memStore) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*domain.Message, 0)
	for _, row := range s.rows {
		if row.SentAt == nil {
			c := *row
			pending = append(pending, &c)
		}
	}
	slices.SortFunc(pending, func(a, b *domain.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	if offset >= len(pending) {
		return []*domain.Message{}, nil
	}
	return pending[offset:min(offset+limit, len(pending))], nil
}
