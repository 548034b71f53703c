package enums

import "testing"

func TestFulfillmentClassLeadHours(t *testing.T) {
	t.Parallel()

	cases := map[FulfillmentClass]int{
		FulfillmentClassStandard:           1,
		FulfillmentClassCustomPhoto:        4,
		FulfillmentClassComplexManufacture: 24,
		FulfillmentClass("UNKNOWN"):        1,
	}
	for class, want := range cases {
		if got := class.LeadHours(); got != want {
			t.Fatalf("%s: expected %d hours, got %d", class, want, got)
		}
	}
}

func TestClassifyByNamePrefersSlowestClass(t *testing.T) {
	t.Parallel()

	if got := ClassifyByName("Cesta Café da Manhã"); got != FulfillmentClassStandard {
		t.Fatalf("expected standard, got %s", got)
	}
	if got := ClassifyByName("Polaroid do casal"); got != FulfillmentClassCustomPhoto {
		t.Fatalf("expected custom photo, got %s", got)
	}
	if got := ClassifyByName("Caneca com Foto"); got != FulfillmentClassComplexManufacture {
		t.Fatalf("expected complex manufacture when both patterns match, got %s", got)
	}
}

func TestResolveFulfillmentClass(t *testing.T) {
	t.Parallel()

	if got := ResolveFulfillmentClass("custom_photo", "Caneca"); got != FulfillmentClassCustomPhoto {
		t.Fatalf("explicit class should win, got %s", got)
	}
	if got := ResolveFulfillmentClass("", "Caneca"); got != FulfillmentClassComplexManufacture {
		t.Fatalf("expected name fallback, got %s", got)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	t.Parallel()

	if pm, err := ParsePaymentMethod(" PIX "); err != nil || pm != PaymentMethodPix {
		t.Fatalf("expected pix, got %q err=%v", pm, err)
	}
	if _, err := ParsePaymentMethod("boleto"); err == nil {
		t.Fatal("expected boleto to be rejected")
	}
	if !PaymentMethodCard.IsValid() {
		t.Fatal("card should be valid")
	}
}
