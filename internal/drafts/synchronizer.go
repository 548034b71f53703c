package drafts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/pkg/backend"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 10 * time.Second

	OpCreate   = "create"
	OpReplace  = "replace_items"
	OpMetadata = "update_metadata"
	OpDelete   = "delete"
	OpFetch    = "fetch"
	OpPending  = "pending_store"

	SkipAnonymous = "anonymous"
)

// OrderAPI is the backend surface used to manage draft orders.
type OrderAPI interface {
	CreateDraftOrder(ctx context.Context, req backend.DraftOrderRequest) (*backend.Order, error)
	ReplaceDraftOrderItems(ctx context.Context, draftID string, items []backend.OrderItem) error
	UpdateDraftOrderMetadata(ctx context.Context, draftID string, meta backend.DraftMetadata) error
	DeleteOrder(ctx context.Context, orderID string) error
	FetchOrder(ctx context.Context, orderID string) (*backend.Order, error)
}

// Metrics records the outcome of remote draft calls.
type Metrics interface {
	ObserveSync(operation string, duration time.Duration, err error)
	IncSyncSkipped(reason string)
}

// SynchronizerParams wires a Synchronizer.
type SynchronizerParams struct {
	API       OrderAPI
	Pending   PendingStore
	Scheduler *Scheduler
	Logger    *logger.Logger
	Metrics   Metrics
	Timeout   time.Duration
	SessionID string
}

type syncRequest struct {
	userID string
	state  cart.CartState
}

// Synchronizer keeps one session's server-side draft order eventually
// consistent with its cart. Every remote call is best effort: failures are
// logged and counted, and the next cart change retries.
type Synchronizer struct {
	api       OrderAPI
	pending   PendingStore
	scheduler *Scheduler
	logg      *logger.Logger
	metrics   Metrics
	timeout   time.Duration
	sessionID string

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	latest     *syncRequest
	pendingID  string
	loaded     bool
	inFlight   bool
	rerun      bool
	idle       *sync.Cond
	generation uint64
}

func NewSynchronizer(params SynchronizerParams) (*Synchronizer, error) {
	if params.API == nil {
		return nil, fmt.Errorf("order api required")
	}
	if params.Pending == nil {
		return nil, fmt.Errorf("pending store required")
	}
	scheduler := params.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(RealClock, DefaultDebounce)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		api:       params.API,
		pending:   params.Pending,
		scheduler: scheduler,
		logg:      logg,
		metrics:   params.Metrics,
		timeout:   timeout,
		sessionID: params.SessionID,
		baseCtx:   logg.WithSessionID(baseCtx, params.SessionID),
		cancel:    cancel,
	}
	s.idle = sync.NewCond(&s.mu)
	return s, nil
}

// Notify records the latest cart and schedules a debounced reconciliation.
// Anonymous carts are never synced.
func (s *Synchronizer) Notify(userID string, state cart.CartState) {
	if userID == "" {
		s.skipped(SkipAnonymous)
		return
	}
	s.mu.Lock()
	s.latest = &syncRequest{userID: userID, state: state}
	s.mu.Unlock()
	s.scheduler.Schedule(s.run)
}

// Flush runs a debounced reconciliation immediately, if one is waiting.
func (s *Synchronizer) Flush() {
	if s.scheduler.Cancel() {
		s.run()
	}
}

// Wait blocks until no reconciliation is in flight.
func (s *Synchronizer) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inFlight {
		s.idle.Wait()
	}
}

// PendingID returns the current draft id, loading it from storage on first use.
func (s *Synchronizer) PendingID(ctx context.Context) string {
	id, _ := s.ensurePending(ctx)
	return id
}

// ClearPending forgets the draft id, e.g. after the order was submitted.
func (s *Synchronizer) ClearPending(ctx context.Context) error {
	s.mu.Lock()
	s.pendingID = ""
	s.loaded = true
	s.generation++
	s.mu.Unlock()
	if err := s.pending.ClearPending(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear pending draft id")
	}
	return nil
}

// RemoteDraft loads the pending draft as a cart. It returns nil when there is
// no draft or the draft no longer exists.
func (s *Synchronizer) RemoteDraft(ctx context.Context) (*cart.CartState, error) {
	id, err := s.ensurePending(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	order, err := s.api.FetchOrder(callCtx, id)
	s.observe(OpFetch, start, err)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.forgetPending(ctx, id)
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeSync, err, "fetch remote draft")
	}
	state := cart.StateFromOrder(order)
	return &state, nil
}

// Close stops scheduling and cancels in-flight calls.
func (s *Synchronizer) Close() {
	s.scheduler.Stop()
	s.cancel()
}

func (s *Synchronizer) run() {
	s.mu.Lock()
	if s.inFlight {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	req := s.latest
	s.mu.Unlock()

	for {
		if req != nil {
			s.reconcile(req)
		}
		s.mu.Lock()
		if !s.rerun {
			s.inFlight = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		s.rerun = false
		req = s.latest
		s.mu.Unlock()
	}
}

func (s *Synchronizer) reconcile(req *syncRequest) {
	if s.baseCtx.Err() != nil {
		return
	}
	ctx := s.logg.WithUserID(s.baseCtx, req.userID)

	pendingID, err := s.ensurePending(ctx)
	if err != nil {
		s.logg.Error(ctx, "draft sync: load pending draft id failed", err)
		return
	}

	switch {
	case req.state.IsEmpty() && pendingID == "":
		return
	case req.state.IsEmpty():
		s.deleteDraft(ctx, pendingID)
	case pendingID == "":
		s.createDraft(ctx, req)
	default:
		s.updateDraft(ctx, pendingID, req)
	}
}

func (s *Synchronizer) deleteDraft(ctx context.Context, id string) {
	ctx = s.logg.WithDraftID(ctx, id)
	err := s.call(ctx, OpDelete, func(callCtx context.Context) error {
		return s.api.DeleteOrder(callCtx, id)
	})
	if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		s.failed(ctx, OpDelete, err)
		return
	}
	s.forgetPending(ctx, id)
}

func (s *Synchronizer) createDraft(ctx context.Context, req *syncRequest) {
	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	var order *backend.Order
	err := s.call(ctx, OpCreate, func(callCtx context.Context) error {
		created, err := s.api.CreateDraftOrder(callCtx, backend.DraftOrderRequest{
			UserID:      req.userID,
			Items:       cart.OrderItems(req.state.Items),
			IsAnonymous: req.state.Anonymous,
			Complement:  req.state.Complement,
		})
		order = created
		return err
	})
	if err != nil {
		s.failed(ctx, OpCreate, err)
		return
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		s.logg.Warn(s.logg.WithDraftID(ctx, order.ID), "draft created after pending id was reset; not tracking it")
		return
	}
	s.pendingID = order.ID
	s.loaded = true
	s.mu.Unlock()

	ctx = s.logg.WithDraftID(ctx, order.ID)
	if err := s.pending.SavePending(ctx, order.ID); err != nil {
		s.failed(ctx, OpPending, err)
	}
	s.logg.Info(ctx, "draft order created")
}

func (s *Synchronizer) updateDraft(ctx context.Context, id string, req *syncRequest) {
	ctx = s.logg.WithDraftID(ctx, id)
	err := s.call(ctx, OpReplace, func(callCtx context.Context) error {
		return s.api.ReplaceDraftOrderItems(callCtx, id, cart.OrderItems(req.state.Items))
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "draft order vanished remotely; creating a new one")
			s.forgetPending(ctx, id)
			s.createDraft(ctx, req)
			return
		}
		s.failed(ctx, OpReplace, err)
		return
	}

	anonymous := req.state.Anonymous
	complement := req.state.Complement
	err = s.call(ctx, OpMetadata, func(callCtx context.Context) error {
		return s.api.UpdateDraftOrderMetadata(callCtx, id, backend.DraftMetadata{
			IsAnonymous: &anonymous,
			Complement:  &complement,
		})
	})
	if err != nil {
		s.failed(ctx, OpMetadata, err)
	}
}

func (s *Synchronizer) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := fn(callCtx)
	s.observe(op, start, err)
	return err
}

func (s *Synchronizer) ensurePending(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.loaded {
		id := s.pendingID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	id, err := s.pending.LoadPending(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load pending draft id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.pendingID = id
		s.loaded = true
	}
	return s.pendingID, nil
}

// forgetPending clears the draft id if it still matches id.
func (s *Synchronizer) forgetPending(ctx context.Context, id string) {
	s.mu.Lock()
	if s.pendingID != id {
		s.mu.Unlock()
		return
	}
	s.pendingID = ""
	s.mu.Unlock()
	if err := s.pending.ClearPending(ctx); err != nil {
		s.failed(ctx, OpPending, err)
	}
}

func (s *Synchronizer) failed(ctx context.Context, op string, err error) {
	wrapped := pkgerrors.Wrap(pkgerrors.CodeSync, err, "draft sync "+op+" failed")
	s.logg.Error(s.logg.WithField(ctx, "operation", op), "draft sync failed", wrapped)
}

func (s *Synchronizer) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveSync(op, time.Since(start), err)
	}
}

func (s *Synchronizer) skipped(reason string) {
	if s.metrics != nil {
		s.metrics.IncSyncSkipped(reason)
	}
}
