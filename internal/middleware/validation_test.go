package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type createItemRequest struct {
	Name       string  `json:"name" validate:"required,max=255"`
	CategoryID string  `json:"category_id" validate:"required,uuid"`
	Price      float64 `json:"price" validate:"gte=0"`
}

func decodeItemRequest(t *testing.T, body map[string]interface{}) error {
	t.Helper()

	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/api/products", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	var decoded createItemRequest
	return DecodeAndValidate(req, &decoded)
}

func TestProperty_RequiredFieldsAreEnforced(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests missing required fields are rejected", prop.ForAll(
		func(includeName bool, includeCategory bool) bool {
			body := map[string]interface{}{"price": 9.99}
			if includeName {
				body["name"] = "Wireless Mouse"
			}
			if includeCategory {
				body["category_id"] = "7d7a1f6e-3f6c-4f6b-9a1d-2b3c4d5e6f70"
			}

			err := decodeItemRequest(t, body)
			if includeName && includeCategory {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_NegativePricesAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("price below zero fails validation", prop.ForAll(
		func(price float64) bool {
			err := decodeItemRequest(t, map[string]interface{}{
				"name":        "Wireless Mouse",
				"category_id": "7d7a1f6e-3f6c-4f6b-9a1d-2b3c4d5e6f70",
				"price":       price,
			})
			if price >= 0 {
				return err == nil
			}
			return err != nil
		},
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidationErrorFormatting(t *testing.T) {
	err := decodeItemRequest(t, map[string]interface{}{
		"name":        "Wireless Mouse",
		"category_id": "not-a-uuid",
		"price":       9.99,
	})
	if err == nil {
		t.Fatal("expected validation error for malformed uuid")
	}

	formatted := FormatValidationErrors(err)
	if len(formatted) == 0 {
		t.Fatal("expected at least one formatted error")
	}
	for _, fe := range formatted {
		if fe.Field == "" || fe.Message == "" {
			t.Errorf("formatted error missing field or message: %+v", fe)
		}
	}
}

func TestDecodeAndValidateRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/products", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	var decoded createItemRequest
	if err := DecodeAndValidate(req, &decoded); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}
