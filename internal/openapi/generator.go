// Package openapi builds the OpenAPI 3 document describing the gateway's
// HTTP surface.
package openapi

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// Options configures the generated document.
type Options struct {
	BaseURL   string
	Version   string
	KeyHeader string
}

type route struct {
	method      string
	path        string
	operationID string
	summary     string
	tag         string
	// permission is "" for routes any valid key may call and "-" for
	// unauthenticated routes.
	permission string
	request    string
	success    int
	response   string
	params     openapi3.Parameters
	errors     []int
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func routes() []route {
	pagination := openapi3.Parameters{
		queryParam("offset", "Number of payments to skip.", 0, 0, 0),
		queryParam("limit", "Maximum payments to return.", 20, 1, 100),
	}
	keyID := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").
		WithDescription("Key id.").
		WithSchema(openapi3.NewStringSchema())}

	return []route{
		{method: http.MethodGet, path: "/health", operationID: "health", summary: "Liveness and wallet state",
			tag: "system", permission: "-", success: 200, response: "Health"},
		{method: http.MethodGet, path: "/balance", operationID: "getBalance", summary: "Wallet balance",
			tag: "wallet", permission: "balance", success: 200, response: "Balance", errors: []int{503}},
		{method: http.MethodGet, path: "/payments", operationID: "listPayments", summary: "Payment history",
			tag: "wallet", permission: "balance", success: 200, response: "PaymentList", params: pagination, errors: []int{503}},
		{method: http.MethodPost, path: "/receive", operationID: "receive", summary: "Create an invoice",
			tag: "wallet", permission: "receive", request: "ReceiveRequest", success: 200, response: "Invoice", errors: []int{400, 503}},
		{method: http.MethodPost, path: "/send", operationID: "send", summary: "Send a payment within the key's limits",
			tag: "wallet", permission: "send", request: "SendRequest", success: 200, response: "SendResult", errors: []int{400, 502, 503}},
		{method: http.MethodGet, path: "/budget", operationID: "getBudget", summary: "Calling key's limits and spend",
			tag: "keys", success: 200, response: "BudgetStatus", errors: []int{503}},
		{method: http.MethodGet, path: "/keys", operationID: "listKeys", summary: "List active keys",
			tag: "keys", permission: "admin", success: 200, response: "KeyList", errors: []int{503}},
		{method: http.MethodPost, path: "/keys", operationID: "createKey", summary: "Create a key",
			tag: "keys", permission: "admin", request: "CreateKeyRequest", success: 201, response: "CreatedKey", errors: []int{400, 503}},
		{method: http.MethodDelete, path: "/keys/{id}", operationID: "revokeKey", summary: "Revoke a key",
			tag: "keys", permission: "admin", success: 200, response: "Detail", params: openapi3.Parameters{keyID}, errors: []int{400, 404, 503}},
		{method: http.MethodPost, path: "/sync", operationID: "sync", summary: "Reconnect the wallet",
			tag: "wallet", permission: "admin", success: 200, response: "Balance", errors: []int{503}},
		{method: http.MethodGet, path: "/openapi.json", operationID: "openapi", summary: "This document",
			tag: "system", success: 200},
	}
}

// Generate returns the API description.
func Generate(opts Options) *openapi3.T {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.KeyHeader == "" {
		opts.KeyHeader = "X-API-Key"
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Glow API",
			Description: "Authenticated gateway to a custodial Lightning wallet. Each API key carries permissions, an optional per-transaction limit and an optional rolling budget.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.Schemas["KeyList"] = arrayOf(ref("Key"))
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"apiKey": &openapi3.SecuritySchemeRef{
			Value: openapi3.NewSecurityScheme().WithType("apiKey").WithIn("header").WithName(opts.KeyHeader),
		},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{{"apiKey": {}}}

	doc.Paths = openapi3.NewPaths()
	for _, rt := range routes() {
		item := doc.Paths.Value(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, operation(rt))
	}
	return doc
}

func operation(rt route) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{rt.tag},
		Summary:     rt.summary,
		OperationID: rt.operationID,
		Parameters:  rt.params,
	}
	switch rt.permission {
	case "-":
		op.Security = openapi3.NewSecurityRequirements()
	case "":
		op.Description = "Any valid key."
	default:
		op.Description = fmt.Sprintf("Requires the %q permission.", rt.permission)
	}

	if rt.request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(rt.request != "ReceiveRequest").
			WithJSONSchemaRef(ref(rt.request))}
	}

	successSchema := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	if rt.response != "" {
		successSchema = ref(rt.response)
	}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(rt.success, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(http.StatusText(rt.success)).
			WithJSONSchemaRef(successSchema)}),
	)

	codes := rt.errors
	switch rt.permission {
	case "-":
	case "":
		codes = append([]int{401}, codes...)
	default:
		codes = append([]int{401, 403}, codes...)
	}
	for _, code := range codes {
		op.Responses.Set(fmt.Sprint(code), &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(http.StatusText(code)).
			WithJSONSchemaRef(ref("ErrorResponse"))})
	}
	return op
}

func queryParam(name, description string, def, min, max float64) *openapi3.ParameterRef {
	schema := openapi3.NewIntegerSchema().WithDefault(def).WithMin(min)
	if max > 0 {
		schema = schema.WithMax(max)
	}
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).
		WithDescription(description).
		WithSchema(schema)}
}
