package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/giftbasket/giftcart/pkg/backend"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/shopspring/decimal"
)

type stubCatalog struct {
	products    map[string]*backend.Product
	additionals map[string]*backend.Additional
	err         error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[string]*backend.Product{
			"basket": {ID: "basket", Name: "Cesta Café da Manhã", Price: decimal.NewFromInt(100), Discount: decimal.NewFromInt(10)},
			"mug":    {ID: "mug", Name: "Caneca Personalizada", Price: decimal.RequireFromString("49.90")},
			"frame":  {ID: "frame", Name: "Porta-retrato", Price: decimal.NewFromInt(60), FulfillmentClass: "CUSTOM_PHOTO"},
		},
		additionals: map[string]*backend.Additional{
			"balloon": {ID: "balloon", Name: "Balão", Price: decimal.NewFromInt(15)},
			"teddy":   {ID: "teddy", Name: "Urso de pelúcia", Price: decimal.NewFromInt(35)},
		},
	}
}

func (c *stubCatalog) GetProduct(ctx context.Context, id string) (*backend.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	copy := *p
	return &copy, nil
}

func (c *stubCatalog) GetAdditional(ctx context.Context, id string) (*backend.Additional, error) {
	a, ok := c.additionals[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "additional not found")
	}
	copy := *a
	return &copy, nil
}

type memStorage struct {
	mu       sync.Mutex
	values   map[string][]byte
	saveErrs []error
	saves    int
	deletes  int
}

func newMemStorage() *memStorage {
	return &memStorage{values: map[string][]byte{}}
}

func (m *memStorage) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStorage) Save(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if len(m.saveErrs) > 0 {
		err := m.saveErrs[0]
		m.saveErrs = m.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	m.values[key] = append([]byte(nil), payload...)
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.values, key)
	return nil
}

type recordingSyncer struct {
	mu       sync.Mutex
	notified []notification
	remote   *CartState
	err      error
	fetches  int
}

type notification struct {
	userID string
	state  CartState
}

func (r *recordingSyncer) Notify(userID string, state CartState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, notification{userID: userID, state: state})
}

func (r *recordingSyncer) RemoteDraft(ctx context.Context) (*CartState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	return r.remote, r.err
}

func (r *recordingSyncer) last() notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notified[len(r.notified)-1]
}

type stageRecorder struct {
	stages []string
}

func (s *stageRecorder) ObserveStorage(stage string, err error) {
	result := "ok"
	if err != nil {
		result = "err"
	}
	s.stages = append(s.stages, stage+":"+result)
}

var errQuota = errors.New("quota exceeded")
