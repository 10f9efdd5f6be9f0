package model

import "encoding/json"

// Provider wire types. The provider wraps every response in the same
// {status, message, data} envelope.

type ProviderEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ProviderMetadata struct {
	OrderID uint `json:"order_id"`
	UserID  uint `json:"user_id"`
}

type ProviderInitializeRequest struct {
	Email       string           `json:"email"`
	Amount      int64            `json:"amount"` // minor units
	Reference   string           `json:"reference"`
	CallbackURL string           `json:"callback_url,omitempty"`
	Metadata    ProviderMetadata `json:"metadata"`
}

type ProviderAuthorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// ProviderTransaction is the transaction object returned by verify and
// embedded in charge.* webhook events. id and amount arrive as numbers or
// numeric strings.
type ProviderTransaction struct {
	ID        json.Number `json:"id"`
	Status    string      `json:"status"`
	Reference string      `json:"reference"`
	Amount    json.Number `json:"amount"`
	Channel   string      `json:"channel"`
	Currency  string      `json:"currency"`
}

// ProviderWebhookEvent is the outer webhook shape. Data is decoded per event.
type ProviderWebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
