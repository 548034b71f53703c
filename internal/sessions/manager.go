package sessions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/drafts"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// HeaderName carries the cart session id between the storefront and the service.
const HeaderName = "X-Cart-Session"

// Metrics is satisfied by *metrics.CartMetrics.
type Metrics interface {
	cart.StorageObserver
	drafts.Metrics
}

type keyBuilder interface {
	CartSnapshotKey(sessionID string) string
	CartDraftKey(sessionID string) string
}

// Session is one cart and the synchronizer that mirrors it remotely.
type Session struct {
	ID     string
	Store  *cart.Store
	Drafts *drafts.Synchronizer

	lastSeen time.Time
}

type ManagerParams struct {
	Storage     cart.Storage
	Catalog     cart.Catalog
	Orders      drafts.OrderAPI
	Keys        keyBuilder
	Logger      *logger.Logger
	Metrics     Metrics
	Clock       drafts.Clock
	Debounce    time.Duration
	SyncTimeout time.Duration
}

// Manager owns every live cart session in the process.
type Manager struct {
	storage     cart.Storage
	catalog     cart.Catalog
	orders      drafts.OrderAPI
	keys        keyBuilder
	logg        *logger.Logger
	metrics     Metrics
	clock       drafts.Clock
	debounce    time.Duration
	syncTimeout time.Duration
	now         func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order api required")
	}
	if params.Keys == nil {
		return nil, fmt.Errorf("key builder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = drafts.RealClock
	}
	debounce := params.Debounce
	if debounce <= 0 {
		debounce = drafts.DefaultDebounce
	}
	return &Manager{
		storage:     params.Storage,
		catalog:     params.Catalog,
		orders:      params.Orders,
		keys:        params.Keys,
		logg:        logg,
		metrics:     params.Metrics,
		clock:       clock,
		debounce:    debounce,
		syncTimeout: params.SyncTimeout,
		now:         time.Now,
		sessions:    map[string]*Session{},
	}, nil
}

// NewSessionID mints an id for a browser that has none yet.
func NewSessionID() string {
	return uuid.NewString()
}

// ParseSessionID normalizes a client-supplied id.
func ParseSessionID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session id").
			WithDetails(map[string]string{"field": HeaderName})
	}
	return id.String(), nil
}

// Get returns the session, restoring it from storage on first use.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if m.lookup(sessionID) == nil {
		_, err, _ := m.group.Do(sessionID, func() (any, error) {
			if m.lookup(sessionID) != nil {
				return nil, nil
			}
			session, err := m.open(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.closed {
				session.Drafts.Close()
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart sessions are shutting down")
			}
			m.sessions[sessionID] = session
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart session unavailable")
	}
	session.lastSeen = m.now()
	return session, nil
}

func (m *Manager) lookup(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

func (m *Manager) open(ctx context.Context, sessionID string) (*Session, error) {
	ctx = m.logg.WithSessionID(ctx, sessionID)

	persister, err := cart.NewPersister(m.storage, m.keys.CartSnapshotKey(sessionID), m.logg, m.metrics)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build cart persister")
	}
	pending, err := drafts.NewStoragePending(m.storage, m.keys.CartDraftKey(sessionID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pending draft store")
	}
	synchronizer, err := drafts.NewSynchronizer(drafts.SynchronizerParams{
		API:       m.orders,
		Pending:   pending,
		Scheduler: drafts.NewScheduler(m.clock, m.debounce),
		Logger:    m.logg,
		Metrics:   m.metrics,
		Timeout:   m.syncTimeout,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build draft synchronizer")
	}

	initial, found, err := persister.Load(ctx)
	if err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "cart snapshot unreadable; starting empty")
		initial = cart.CartState{}
	} else if found {
		m.logg.Info(m.logg.WithField(ctx, "item_count", len(initial.Items)), "cart restored from snapshot")
	}

	store, err := cart.NewStore(cart.StoreParams{
		Catalog:   m.catalog,
		Persister: persister,
		Syncer:    synchronizer,
		Logger:    m.logg,
		Initial:   initial,
	})
	if err != nil {
		synchronizer.Close()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build cart store")
	}
	return &Session{ID: sessionID, Store: store, Drafts: synchronizer}, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle flushes and drops sessions unused since before cutoff. Their carts
// stay in storage and are restored on the next request.
func (m *Manager) EvictIdle(cutoff time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for id, session := range m.sessions {
		if session.lastSeen.Before(cutoff) {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range idle {
		session.Drafts.Flush()
		session.Drafts.Close()
	}
	return len(idle)
}

// Close stops every session's synchronizer. Pending debounced syncs are
// flushed first so the last cart change reaches the backend.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Drafts.Flush()
		session.Drafts.Close()
	}
}
