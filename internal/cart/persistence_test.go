package cart

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

const testKey = "gc:cart:s1"

func sampleState() CartState {
	item := LineItem{
		ProductID:       "basket",
		Name:            "Cesta",
		Quantity:        2,
		BasePrice:       dec("100"),
		DiscountPercent: dec("10"),
		AddOnIDs:        []string{"balloon"},
		AddOns:          []AddOnSnapshot{{ID: "balloon", Name: "Balão", Price: dec("15")}},
		Customizations: []Customization{{
			ID:              "card",
			Text:            "Parabéns",
			PriceAdjustment: dec("5"),
			Photos:          []PhotoRef{{TempID: "t1", PreviewURL: "data:image/png;base64," + strings.Repeat("A", 4096)}},
		}},
	}
	item.reprice()
	state := CartState{Items: []LineItem{item}, Metadata: Metadata{Complement: "Apto 12"}}
	state.recompute()
	return state
}

func TestPersisterStripsInlinePreviews(t *testing.T) {
	storage := newMemStorage()
	p, err := NewPersister(storage, testKey, nil, nil)
	if err != nil {
		t.Fatalf("new persister: %v", err)
	}
	if err := p.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw := string(storage.values[testKey])
	if strings.Contains(raw, "data:image") {
		t.Fatalf("inline preview should be stripped: %s", raw)
	}
	if !strings.Contains(raw, `"version":1`) || !strings.Contains(raw, `"temp_id":"t1"`) {
		t.Fatalf("unexpected snapshot %s", raw)
	}
}

func TestPersisterRoundTripKeepsTotals(t *testing.T) {
	storage := newMemStorage()
	p, _ := NewPersister(storage, testKey, nil, nil)
	state := sampleState()
	if err := p.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := p.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	// (90 + 5) * 2 + 15 * 2
	if !loaded.Total.Equal(dec("220")) || loaded.ItemCount != 2 {
		t.Fatalf("unexpected totals %s/%d", loaded.Total, loaded.ItemCount)
	}
	if loaded.Complement != "Apto 12" {
		t.Fatalf("metadata lost: %+v", loaded.Metadata)
	}
	if !loaded.Items[0].EffectiveUnitPrice.Equal(dec("95")) {
		t.Fatalf("unexpected effective price %s", loaded.Items[0].EffectiveUnitPrice)
	}
}

func TestPersisterDegradesWithoutCustomizations(t *testing.T) {
	storage := newMemStorage()
	storage.saveErrs = []error{errQuota}
	rec := &stageRecorder{}
	p, _ := NewPersister(storage, testKey, nil, rec)

	if err := p.Save(context.Background(), sampleState()); err == nil {
		t.Fatalf("expected degraded error for logging")
	}
	raw := string(storage.values[testKey])
	if strings.Contains(raw, "customizations") {
		t.Fatalf("customizations should be dropped: %s", raw)
	}
	if got := strings.Join(rec.stages, ","); got != "full:err,without_customizations:ok" {
		t.Fatalf("unexpected stages %s", got)
	}

	loaded, ok, err := p.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: %v", err)
	}
	// derived fields were absent and are recomputed: 90*2 + 15*2
	if !loaded.Items[0].EffectiveUnitPrice.Equal(dec("90")) || !loaded.Total.Equal(dec("210")) {
		t.Fatalf("expected recomputed prices, got %s / %s", loaded.Items[0].EffectiveUnitPrice, loaded.Total)
	}
}

func TestPersisterClearsOnRepeatedFailure(t *testing.T) {
	storage := newMemStorage()
	storage.values[testKey] = []byte(`{"version":1,"items":[]}`)
	storage.saveErrs = []error{errQuota, errQuota}
	rec := &stageRecorder{}
	p, _ := NewPersister(storage, testKey, nil, rec)

	err := p.Save(context.Background(), sampleState())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected combined error, got %v", err)
	}
	if _, ok := storage.values[testKey]; ok {
		t.Fatalf("storage should be cleared after repeated failure")
	}
	if got := strings.Join(rec.stages, ","); got != "full:err,without_customizations:err,clear:ok" {
		t.Fatalf("unexpected stages %s", got)
	}
}

func TestLoadRecomputesMissingDerivedFields(t *testing.T) {
	storage := newMemStorage()
	payload := map[string]any{
		"items": []map[string]any{{
			"product_id":       "basket",
			"quantity":         3,
			"base_price":       "99.99",
			"discount_percent": "0",
			"customizations":   []map[string]any{{"customization_id": "c", "price_adjustment": "0.01"}},
		}},
	}
	raw, _ := json.Marshal(payload)
	storage.values[testKey] = raw
	p, _ := NewPersister(storage, testKey, nil, nil)

	state, ok, err := p.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: %v", err)
	}
	if !state.Items[0].EffectiveUnitPrice.Equal(dec("100")) || !state.Total.Equal(dec("300")) || state.ItemCount != 3 {
		t.Fatalf("unexpected recomputed state %+v", state)
	}
}

func TestLoadMissingAndCorruptSnapshots(t *testing.T) {
	storage := newMemStorage()
	p, _ := NewPersister(storage, testKey, nil, nil)
	if _, ok, err := p.Load(context.Background()); ok || err != nil {
		t.Fatalf("expected missing snapshot, ok=%v err=%v", ok, err)
	}
	storage.values[testKey] = []byte("{not json")
	if _, _, err := p.Load(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
	storage.values[testKey] = []byte(`{"version":9,"items":[]}`)
	if _, _, err := p.Load(context.Background()); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestSaveEmptyCartClearsStorage(t *testing.T) {
	storage := newMemStorage()
	storage.values[testKey] = []byte(`{}`)
	p, _ := NewPersister(storage, testKey, nil, nil)
	if err := p.Save(context.Background(), CartState{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := storage.values[testKey]; ok {
		t.Fatalf("empty cart should remove snapshot")
	}
}

func TestQuotaStorageRejectsLargePayloads(t *testing.T) {
	inner := newMemStorage()
	q := NewQuotaStorage(inner, 10)
	if err := q.Save(context.Background(), "k", []byte("0123456789ABC")); err == nil {
		t.Fatalf("expected quota error")
	}
	if err := q.Save(context.Background(), "k", []byte("small")); err != nil {
		t.Fatalf("small payload should fit: %v", err)
	}
	unlimited := NewQuotaStorage(inner, 0)
	if err := unlimited.Save(context.Background(), "k", []byte(strings.Repeat("x", 100))); err != nil {
		t.Fatalf("disabled quota should accept: %v", err)
	}
}

func TestPersisterWithQuotaFallsBackToLeanSnapshot(t *testing.T) {
	inner := newMemStorage()
	state := sampleState()
	full, _ := json.Marshal(toSnapshot(state, true))
	lean, _ := json.Marshal(toSnapshot(state, false))
	if len(lean) >= len(full) {
		t.Fatalf("lean snapshot should be smaller")
	}
	p, _ := NewPersister(NewQuotaStorage(inner, len(lean)), testKey, nil, nil)
	_ = p.Save(context.Background(), state)
	if string(inner.values[testKey]) != string(lean) {
		t.Fatalf("expected lean snapshot stored")
	}
}
