package dto

import (
	"encoding/json"
	"storefront-checkout/internal/model"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type AddCartItemRequest struct {
	ProductID uint            `json:"product"`
	Quantity  json.RawMessage `json:"quantity"`
}

type UpdateCartItemRequest struct {
	ItemID   uint            `json:"item_id"`
	Quantity json.RawMessage `json:"quantity"`
}

type RemoveCartItemRequest struct {
	ItemID uint `json:"item_id"`
}

type CartResponse struct {
	ID         uint              `json:"id"`
	UserID     uint              `json:"user_id"`
	Items      []*model.CartItem `json:"items"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	TotalItems int               `json:"total_items"`
}

func NewCartResponse(cart *model.Cart) *CartResponse {
	items := cart.Items
	if items == nil {
		items = []*model.CartItem{}
	}

	total := 0
	for _, item := range items {
		total += item.Quantity
	}

	return &CartResponse{
		ID:         cart.ID,
		UserID:     cart.UserID,
		Items:      items,
		TotalPrice: cart.TotalPrice(),
		TotalItems: total,
	}
}

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
}

type CheckoutResponse struct {
	Message string       `json:"message"`
	Order   *model.Order `json:"order"`
}

type OrderItemInput struct {
	ProductID uint `json:"product"`
	Quantity  int  `json:"quantity"`
}

type CreateOrderRequest struct {
	ShippingAddress string            `json:"shipping_address"`
	Phone           string            `json:"phone"`
	Items           []*OrderItemInput `json:"items"`
}

// UpdateOrderRequest uses pointers so absent fields are left untouched.
type UpdateOrderRequest struct {
	Status          *string `json:"status"`
	ShippingAddress *string `json:"shipping_address"`
	Phone           *string `json:"phone"`
}

type InitializePaymentRequest struct {
	OrderID     uint   `json:"order_id"`
	Email       string `json:"email"`
	CallbackURL string `json:"callback_url"`
}

type InitializePaymentResponse struct {
	Status           string         `json:"status"`
	Message          string         `json:"message"`
	Payment          *model.Payment `json:"payment"`
	AuthorizationURL string         `json:"authorization_url"`
	AccessCode       string         `json:"access_code"`
	Reference        string         `json:"reference"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
}

type VerifyPaymentResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Payment *model.Payment `json:"payment"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ParseQuantity accepts a JSON number or a numeric string. ok is false when
// the value is present but not an integer; missing values yield def.
func ParseQuantity(raw json.RawMessage, def int) (qty int, ok bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return def, true
	}

	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
