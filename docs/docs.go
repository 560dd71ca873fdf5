// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/accounts/register": {"post": {"tags": ["accounts"], "summary": "Open a ledger account, optionally with a referral code", "responses": {"201": {"description": "Created"}, "409": {"description": "Account exists"}}}},
        "/accounts/me": {"get": {"tags": ["accounts"], "summary": "Dashboard balances for the caller", "responses": {"200": {"description": "OK"}}}},
        "/investments": {
            "post": {"tags": ["investments"], "summary": "Submit a pending investment", "parameters": [{"name": "Idempotency-Key", "in": "header", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid input"}}},
            "get": {"tags": ["investments"], "summary": "List the caller's investments", "responses": {"200": {"description": "OK"}}}
        },
        "/investments/{id}": {"get": {"tags": ["investments"], "summary": "Get one investment", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/investments/{id}/verify": {"post": {"tags": ["investments"], "summary": "Verify the on-chain transfer and settle", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "503": {"description": "Verifier unavailable"}}}},
        "/investments/{id}/confirm": {"post": {"tags": ["investments"], "summary": "Manual confirmation, non-production only", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/payments": {"post": {"tags": ["payments"], "summary": "Create a gateway payment intent", "parameters": [{"name": "Idempotency-Key", "in": "header", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}}}},
        "/payments/{orderRef}/status": {"get": {"tags": ["payments"], "summary": "Poll a payment and settle when paid", "parameters": [{"name": "orderRef", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/withdrawals": {
            "post": {"tags": ["withdrawals"], "summary": "Request a withdrawal", "parameters": [{"name": "Idempotency-Key", "in": "header", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}, "400": {"description": "Not eligible"}}},
            "get": {"tags": ["withdrawals"], "summary": "List the caller's withdrawals", "responses": {"200": {"description": "OK"}}}
        },
        "/withdrawals/eligibility": {"get": {"tags": ["withdrawals"], "summary": "What can be withdrawn right now", "responses": {"200": {"description": "OK"}}}},
        "/withdrawals/{id}/cancel": {"post": {"tags": ["withdrawals"], "summary": "Cancel a pending withdrawal", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/webhooks/gateway": {"post": {"tags": ["webhooks"], "summary": "Gateway payment notification", "security": [], "parameters": [{"name": "X-Webhook-Signature", "in": "header", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "401": {"description": "Bad signature"}}}},
        "/admin/investments/grant": {"post": {"tags": ["admin"], "summary": "Grant a confirmed investment", "responses": {"201": {"description": "Created"}}}},
        "/admin/investments/{id}": {
            "patch": {"tags": ["admin"], "summary": "Correct an investment", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["admin"], "summary": "Delete an investment", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}}}
        },
        "/admin/investments/{id}/confirm": {"post": {"tags": ["admin"], "summary": "Confirm a pending investment", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "409": {"description": "Rejected"}}}},
        "/admin/investments/{id}/reject": {"post": {"tags": ["admin"], "summary": "Reject a pending investment", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/admin/withdrawals/{id}/decision": {"post": {"tags": ["admin"], "summary": "Approve, reject, process or cancel a withdrawal", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/admin/accounts/{id}/freeze": {"post": {"tags": ["admin"], "summary": "Freeze an account", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/admin/accounts/{id}/unfreeze": {"post": {"tags": ["admin"], "summary": "Unfreeze an account", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/admin/accrual/run": {"post": {"tags": ["admin"], "summary": "Run the daily accrual now", "responses": {"200": {"description": "OK"}, "409": {"description": "Run in progress"}}}},
        "/admin/payments/reconcile": {"post": {"tags": ["admin"], "summary": "Run one reconciliation pass", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Yield Service API",
	Description:      "USDT ledger and accrual engine",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
