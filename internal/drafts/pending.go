package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/giftbasket/giftcart/internal/cart"
)

// PendingStore persists the id of the session's server-side draft order.
type PendingStore interface {
	LoadPending(ctx context.Context) (string, error)
	SavePending(ctx context.Context, id string) error
	ClearPending(ctx context.Context) error
}

// StoragePending keeps the pending draft id under its own key in cart storage.
type StoragePending struct {
	storage cart.Storage
	key     string
}

func NewStoragePending(storage cart.Storage, key string) (*StoragePending, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("draft key required")
	}
	return &StoragePending{storage: storage, key: key}, nil
}

func (s *StoragePending) LoadPending(ctx context.Context) (string, error) {
	raw, err := s.storage.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, cart.ErrSnapshotNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *StoragePending) SavePending(ctx context.Context, id string) error {
	return s.storage.Save(ctx, s.key, []byte(id))
}

func (s *StoragePending) ClearPending(ctx context.Context) error {
	return s.storage.Delete(ctx, s.key)
}
