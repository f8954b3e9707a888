package openapi

import "github.com/getkin/kin-openapi/openapi3"

// Schema builders for the gateway's JSON payloads.

func sats(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"integer"},
		Format:      "int64",
		Description: description,
	}}
}

func positiveSats(description string) *openapi3.SchemaRef {
	s := sats(description)
	s.Value.Min = openapi3.Float64Ptr(1)
	return s
}

func nullable(ref *openapi3.SchemaRef) *openapi3.SchemaRef {
	ref.Value.Nullable = true
	return ref
}

func str(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string"},
		Description: description,
	}}
}

func strMax(description string, max uint64) *openapi3.SchemaRef {
	s := str(description)
	s.Value.MaxLength = openapi3.Uint64Ptr(max)
	return s
}

func dateTime() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:   &openapi3.Types{"string"},
		Format: "date-time",
	}}
}

func boolean(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"boolean"},
		Description: description,
	}}
}

func enum(description string, values ...string) *openapi3.SchemaRef {
	s := str(description)
	for _, v := range values {
		s.Value.Enum = append(s.Value.Enum, v)
	}
	return s
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: items,
	}}
}

func object(props openapi3.Schemas, required ...string) *openapi3.Schema {
	return &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}
}

func permissions() *openapi3.SchemaRef {
	return arrayOf(enum("", "balance", "receive", "send", "admin"))
}

func budgetPeriod() *openapi3.SchemaRef {
	return nullable(enum("Window the budget resets on (UTC).", "daily", "weekly", "monthly"))
}

// componentSchemas returns every named schema the document references.
func componentSchemas() openapi3.Schemas {
	return openapi3.Schemas{
		"ErrorResponse": {Value: object(openapi3.Schemas{
			"error": {Value: object(openapi3.Schemas{
				"code":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": str(""),
				"context": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			}, "code", "message")},
		}, "error")},

		"Health": {Value: object(openapi3.Schemas{
			"status":           str(""),
			"wallet_connected": boolean("Whether the wallet session has been initialized."),
			"timestamp":        dateTime(),
		}, "status", "wallet_connected", "timestamp")},

		"Balance": {Value: object(openapi3.Schemas{
			"balance_sats":          sats(""),
			"pending_incoming_sats": sats(""),
			"pending_outgoing_sats": sats(""),
			"max_payable_sats":      sats(""),
			"max_receivable_sats":   sats(""),
		}, "balance_sats", "pending_incoming_sats", "pending_outgoing_sats", "max_payable_sats", "max_receivable_sats")},

		"Payment": {Value: object(openapi3.Schemas{
			"id":          str(""),
			"direction":   enum("", "send", "receive"),
			"status":      str(""),
			"amount_sats": sats(""),
			"fee_sats":    sats(""),
			"description": str(""),
			"created_at":  dateTime(),
		}, "id", "direction", "status", "amount_sats", "fee_sats", "created_at")},

		"PaymentList": {Value: object(openapi3.Schemas{
			"payments": arrayOf(ref("Payment")),
		}, "payments")},

		"ReceiveRequest": {Value: object(openapi3.Schemas{
			"amount_sats": positiveSats("Invoice amount. Omit for an amountless invoice."),
			"description": strMax("", 639),
		})},

		"Invoice": {Value: object(openapi3.Schemas{
			"payment_request": str("BOLT11 payment request."),
			"fee_sats":        sats(""),
		}, "payment_request", "fee_sats")},

		"SendRequest": {Value: object(openapi3.Schemas{
			"destination": {Value: &openapi3.Schema{
				Type:        &openapi3.Types{"string"},
				Description: "Invoice, Lightning address or other payable destination.",
				MinLength:   1,
				MaxLength:   openapi3.Uint64Ptr(2000),
			}},
			"amount_sats": positiveSats("Required when the destination does not encode an amount."),
		}, "destination")},

		"SendResult": {Value: object(openapi3.Schemas{
			"payment_id":  str(""),
			"amount_sats": sats(""),
			"status":      str(""),
		}, "payment_id", "amount_sats", "status")},

		"BudgetStatus": {Value: object(openapi3.Schemas{
			"api_key_id":      str(""),
			"max_amount_sats": nullable(sats("Per-transaction limit.")),
			"budget_sats":     nullable(sats("")),
			"budget_period":   budgetPeriod(),
			"period_start":    dateTime(),
			"spent_sats":      sats("Reserved or spent in the current period."),
			"remaining_sats":  nullable(sats("")),
		}, "api_key_id", "spent_sats")},

		"CreateKeyRequest": {Value: object(openapi3.Schemas{
			"name":            strMax("", 100),
			"permissions":     permissions(),
			"budget_sats":     nullable(positiveSats("")),
			"budget_period":   budgetPeriod(),
			"max_amount_sats": nullable(positiveSats("")),
		}, "name")},

		"CreatedKey": {Value: object(openapi3.Schemas{
			"key":             str("Raw API key. Shown only once."),
			"id":              str(""),
			"name":            str(""),
			"permissions":     permissions(),
			"budget_sats":     nullable(sats("")),
			"budget_period":   budgetPeriod(),
			"max_amount_sats": nullable(sats("")),
			"created_at":      dateTime(),
		}, "key", "id", "name", "permissions", "created_at")},

		"Key": {Value: object(openapi3.Schemas{
			"id":              str(""),
			"name":            str(""),
			"permissions":     permissions(),
			"budget_sats":     nullable(sats("")),
			"budget_period":   budgetPeriod(),
			"max_amount_sats": nullable(sats("")),
			"spent_sats":      sats(""),
			"remaining_sats":  sats(""),
			"created_at":      dateTime(),
		}, "id", "name", "permissions", "created_at")},

		"Detail": {Value: object(openapi3.Schemas{
			"detail": str(""),
		}, "detail")},
	}
}
