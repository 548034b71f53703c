package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/pkg/backend"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/shopspring/decimal"
)

type fakeOrderAPI struct {
	mu        sync.Mutex
	calls     []string
	orders    map[string]*backend.Order
	nextID    int
	createErr error
	deleteErr error
	fetchErr  error
	replaceFn func(id string) error
	block     chan struct{}
}

func newFakeOrderAPI() *fakeOrderAPI {
	return &fakeOrderAPI{orders: map[string]*backend.Order{}}
}

func (f *fakeOrderAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeOrderAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeOrderAPI) CreateDraftOrder(ctx context.Context, req backend.DraftOrderRequest) (*backend.Order, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		f.calls = append(f.calls, "create:error")
		return nil, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("D%d", f.nextID)
	f.calls = append(f.calls, fmt.Sprintf("create:%s:%d", id, len(req.Items)))
	order := &backend.Order{ID: id, IsDraft: true, Items: req.Items, IsAnonymous: req.IsAnonymous, Complement: req.Complement}
	f.orders[id] = order
	return order, nil
}

func (f *fakeOrderAPI) ReplaceDraftOrderItems(ctx context.Context, id string, items []backend.OrderItem) error {
	if f.replaceFn != nil {
		if err := f.replaceFn(id); err != nil {
			f.record("replace:" + id + ":error")
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("replace:%s:%d", id, len(items)))
	if order, ok := f.orders[id]; ok {
		order.Items = items
	}
	return nil
}

func (f *fakeOrderAPI) UpdateDraftOrderMetadata(ctx context.Context, id string, meta backend.DraftMetadata) error {
	f.record(fmt.Sprintf("metadata:%s:%v", id, *meta.IsAnonymous))
	return nil
}

func (f *fakeOrderAPI) DeleteOrder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		f.calls = append(f.calls, "delete:"+id+":error")
		return f.deleteErr
	}
	f.calls = append(f.calls, "delete:"+id)
	delete(f.orders, id)
	return nil
}

func (f *fakeOrderAPI) FetchOrder(ctx context.Context, id string) (*backend.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		f.calls = append(f.calls, "fetch:"+id+":error")
		return nil, f.fetchErr
	}
	f.calls = append(f.calls, "fetch:"+id)
	order, ok := f.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

type memPending struct {
	mu      sync.Mutex
	id      string
	loadErr error
}

func (m *memPending) LoadPending(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.loadErr
}

func (m *memPending) SavePending(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *memPending) ClearPending(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}

func (m *memPending) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

type countingMetrics struct {
	mu       sync.Mutex
	failures map[string]int
	skipped  map[string]int
}

func (c *countingMetrics) ObserveSync(op string, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures[op]++
	}
}

func (c *countingMetrics) IncSyncSkipped(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped[reason]++
}

type harness struct {
	clock   *fakeClock
	api     *fakeOrderAPI
	pending *memPending
	metrics *countingMetrics
	sync    *Synchronizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   newFakeClock(),
		api:     newFakeOrderAPI(),
		pending: &memPending{},
		metrics: &countingMetrics{failures: map[string]int{}, skipped: map[string]int{}},
	}
	s, err := NewSynchronizer(SynchronizerParams{
		API:       h.api,
		Pending:   h.pending,
		Scheduler: NewScheduler(h.clock, DefaultDebounce),
		Metrics:   h.metrics,
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	t.Cleanup(s.Close)
	h.sync = s
	return h
}

func cartWith(n int) cart.CartState {
	state := cart.CartState{}
	for i := 0; i < n; i++ {
		state.Items = append(state.Items, cart.LineItem{
			ProductID:          fmt.Sprintf("p%d", i),
			Quantity:           1,
			BasePrice:          decimal.NewFromInt(10),
			EffectiveUnitPrice: decimal.NewFromInt(10),
		})
	}
	return state
}

func (h *harness) settle() {
	h.clock.Advance(DefaultDebounce)
	h.sync.Wait()
}

func TestDraftLifecycle(t *testing.T) {
	h := newHarness(t)

	h.sync.Notify("user-1", cartWith(1))
	h.settle()
	if h.pending.get() != "D1" {
		t.Fatalf("expected pending D1, got %q", h.pending.get())
	}

	h.sync.Notify("user-1", cartWith(0))
	h.settle()
	if h.pending.get() != "" || h.sync.PendingID(context.Background()) != "" {
		t.Fatalf("expected pending cleared after delete")
	}

	h.sync.Notify("user-1", cartWith(2))
	h.settle()
	if h.pending.get() != "D2" {
		t.Fatalf("expected new draft D2, got %q", h.pending.get())
	}

	want := []string{"create:D1:1", "delete:D1", "create:D2:2"}
	assertCalls(t, h.api.Calls(), want)
}

func TestBurstsCoalesceIntoOneCall(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 5; i++ {
		h.sync.Notify("user-1", cartWith(i))
		h.clock.Advance(50 * time.Millisecond)
	}
	h.settle()
	assertCalls(t, h.api.Calls(), []string{"create:D1:5"})
}

func TestExistingDraftIsReplacedWithMetadata(t *testing.T) {
	h := newHarness(t)
	h.pending.id = "D9"
	h.api.orders["D9"] = &backend.Order{ID: "D9"}

	state := cartWith(3)
	state.Anonymous = true
	h.sync.Notify("user-1", state)
	h.settle()
	assertCalls(t, h.api.Calls(), []string{"replace:D9:3", "metadata:D9:true"})
}

func TestMissingRemoteDraftIsRecreated(t *testing.T) {
	h := newHarness(t)
	h.pending.id = "GONE"
	h.api.replaceFn = func(id string) error {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gone")
	}
	h.sync.Notify("user-1", cartWith(1))
	h.settle()
	assertCalls(t, h.api.Calls(), []string{"replace:GONE:error", "create:D1:1"})
	if h.pending.get() != "D1" {
		t.Fatalf("expected new pending id, got %q", h.pending.get())
	}
}

func TestAnonymousCartsNeverSync(t *testing.T) {
	h := newHarness(t)
	h.sync.Notify("", cartWith(2))
	h.settle()
	if calls := h.api.Calls(); len(calls) != 0 {
		t.Fatalf("anonymous cart synced: %v", calls)
	}
	if h.metrics.skipped[SkipAnonymous] != 1 {
		t.Fatalf("expected skip metric")
	}
}

func TestFailuresAreSwallowedAndRetriedOnNextChange(t *testing.T) {
	h := newHarness(t)
	h.api.createErr = errors.New("503")
	h.sync.Notify("user-1", cartWith(1))
	h.settle()
	if h.pending.get() != "" || h.metrics.failures[OpCreate] != 1 {
		t.Fatalf("expected failed create to be counted, pending=%q", h.pending.get())
	}

	h.api.createErr = nil
	h.sync.Notify("user-1", cartWith(1))
	h.settle()
	if h.pending.get() != "D1" {
		t.Fatalf("expected retry on next change to create draft")
	}
}

func TestFailedDeleteKeepsPendingID(t *testing.T) {
	h := newHarness(t)
	h.pending.id = "D5"
	h.api.deleteErr = errors.New("timeout")
	h.sync.Notify("user-1", cartWith(0))
	h.settle()
	if h.pending.get() != "D5" {
		t.Fatalf("pending id must survive a failed delete")
	}

	h.api.deleteErr = pkgerrors.New(pkgerrors.CodeNotFound, "already gone")
	h.sync.Notify("user-1", cartWith(0))
	h.settle()
	if h.pending.get() != "" {
		t.Fatalf("not found on delete should clear pending id")
	}
}

func TestOverlappingRunsAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.api.block = make(chan struct{})

	h.sync.Notify("user-1", cartWith(1))
	done := make(chan struct{})
	go func() {
		h.clock.Advance(DefaultDebounce)
		close(done)
	}()
	// wait for the first run to be in flight
	for {
		h.sync.mu.Lock()
		inFlight := h.sync.inFlight
		h.sync.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	h.sync.Notify("user-1", cartWith(2))
	h.sync.Flush()
	h.sync.Notify("user-1", cartWith(3))
	h.sync.Flush()

	close(h.api.block)
	<-done
	h.sync.Wait()

	assertCalls(t, h.api.Calls(), []string{"create:D1:1", "replace:D1:3", "metadata:D1:false"})
}

func TestRemoteDraftHydration(t *testing.T) {
	h := newHarness(t)
	if draft, err := h.sync.RemoteDraft(context.Background()); err != nil || draft != nil {
		t.Fatalf("expected no draft without pending id, got %+v %v", draft, err)
	}

	h2 := newHarness(t)
	h2.pending.id = "D1"
	h2.api.orders["D1"] = &backend.Order{ID: "D1", Complement: "Casa", Items: []backend.OrderItem{
		{ProductID: "a", Quantity: 1, BasePrice: decimal.NewFromInt(10)},
		{ProductID: "b", Quantity: 2, BasePrice: decimal.NewFromInt(20)},
		{ProductID: "c", Quantity: 1, BasePrice: decimal.NewFromInt(5), Discount: decimal.NewFromInt(20)},
	}}
	draft, err := h2.sync.RemoteDraft(context.Background())
	if err != nil || draft == nil {
		t.Fatalf("expected draft, got %v", err)
	}
	if len(draft.Items) != 3 || draft.ItemCount != 4 || !draft.Total.Equal(decimal.NewFromInt(54)) || draft.Complement != "Casa" {
		t.Fatalf("unexpected hydrated draft %+v", draft)
	}

	h3 := newHarness(t)
	h3.pending.id = "GONE"
	if draft, err := h3.sync.RemoteDraft(context.Background()); err != nil || draft != nil {
		t.Fatalf("missing draft should hydrate nothing, got %+v %v", draft, err)
	}
	if h3.pending.get() != "" {
		t.Fatalf("missing draft should clear pending id")
	}
}

func TestClearPendingAndLoadErrors(t *testing.T) {
	h := newHarness(t)
	h.pending.id = "D3"
	if got := h.sync.PendingID(context.Background()); got != "D3" {
		t.Fatalf("expected pending id from storage, got %q", got)
	}
	if err := h.sync.ClearPending(context.Background()); err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	if h.sync.PendingID(context.Background()) != "" || h.pending.get() != "" {
		t.Fatalf("pending id should be cleared")
	}

	broken := newHarness(t)
	broken.pending.loadErr = errors.New("redis down")
	broken.sync.Notify("user-1", cartWith(1))
	broken.settle()
	if calls := broken.api.Calls(); len(calls) != 0 {
		t.Fatalf("no remote call expected when pending id cannot be loaded, got %v", calls)
	}
	if _, err := broken.sync.RemoteDraft(context.Background()); !pkgerrors.HasCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestCloseStopsFurtherSyncs(t *testing.T) {
	h := newHarness(t)
	h.sync.Notify("user-1", cartWith(1))
	h.sync.Close()
	h.settle()
	if calls := h.api.Calls(); len(calls) != 0 {
		t.Fatalf("closed synchronizer made calls: %v", calls)
	}
}

func TestStoragePendingRoundTrip(t *testing.T) {
	storage := &memStorage{values: map[string][]byte{}}
	p, err := NewStoragePending(storage, "gc:cart:s1:draft")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if id, err := p.LoadPending(ctx); err != nil || id != "" {
		t.Fatalf("expected empty id, got %q %v", id, err)
	}
	_ = p.SavePending(ctx, "D1")
	if id, _ := p.LoadPending(ctx); id != "D1" {
		t.Fatalf("expected D1, got %q", id)
	}
	_ = p.ClearPending(ctx)
	if id, _ := p.LoadPending(ctx); id != "" {
		t.Fatalf("expected cleared id, got %q", id)
	}
	if _, err := NewStoragePending(storage, " "); err == nil {
		t.Fatalf("expected key error")
	}
}

type memStorage struct {
	values map[string][]byte
}

func (m *memStorage) Load(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, cart.ErrSnapshotNotFound
	}
	return v, nil
}

func (m *memStorage) Save(ctx context.Context, key string, payload []byte) error {
	m.values[key] = payload
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}
