package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
)

type addPayload struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"","quantity":0}`))
	var payload addPayload
	err := DecodeJSONBody(req, &payload)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
	if details["product_id"] != "is required" {
		t.Fatalf("unexpected product_id message %q", details["product_id"])
	}
	if details["quantity"] != "must be at least 1" {
		t.Fatalf("unexpected quantity message %q", details["quantity"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p1","quantity":1,"price":"0.01"}`))
	var payload addPayload
	if err := DecodeJSONBody(req, &payload); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestParseQueryDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?date=2026-03-02", nil)
	got, err := ParseQueryDate(req, "date", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}

	for _, raw := range []string{"/", "/?date=02/03/2026"} {
		req := httptest.NewRequest(http.MethodGet, raw, nil)
		if _, err := ParseQueryDate(req, "date", time.UTC); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", raw, err)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  portão azul\x00 ", 0); got != "portão azul" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("ãããã", 2); got != "ãã" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
}
