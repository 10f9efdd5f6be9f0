package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindAuthentication
	KindGateway
)

// Error carries a stable code for clients plus the HTTP status it maps to.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinel values below work with errors.Is even
// after WithMessage/Wrap produced a copy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func newError(kind Kind, status int, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

var (
	ErrInvalidRequest      = newError(KindValidation, http.StatusBadRequest, "InvalidRequest", "invalid request body")
	ErrInvalidQuantity     = newError(KindValidation, http.StatusBadRequest, "InvalidQuantity", "quantity must be a positive integer")
	ErrEmptyCart           = newError(KindValidation, http.StatusBadRequest, "EmptyCart", "your cart is empty")
	ErrMissingShippingInfo = newError(KindValidation, http.StatusBadRequest, "MissingShippingInfo", "shipping address and phone are required")
	ErrPayloadTooLarge     = newError(KindValidation, http.StatusRequestEntityTooLarge, "PayloadTooLarge", "request body too large")

	ErrProductNotFound   = newError(KindNotFound, http.StatusNotFound, "ProductNotFound", "product not found")
	ErrCartItemNotFound  = newError(KindNotFound, http.StatusNotFound, "CartItemNotFound", "item not found in cart")
	ErrOrderNotFound     = newError(KindNotFound, http.StatusNotFound, "OrderNotFound", "order not found")
	ErrOrderItemNotFound = newError(KindNotFound, http.StatusNotFound, "OrderItemNotFound", "order item not found")
	ErrPaymentNotFound   = newError(KindNotFound, http.StatusNotFound, "PaymentNotFound", "payment not found")

	ErrInsufficientStock    = newError(KindConflict, http.StatusBadRequest, "InsufficientStock", "not enough stock available")
	ErrPaymentAlreadyExists = newError(KindConflict, http.StatusBadRequest, "PaymentAlreadyExists", "payment already exists for this order")

	ErrMissingSignature = newError(KindValidation, http.StatusBadRequest, "MissingSignature", "missing provider signature")
	ErrInvalidSignature = newError(KindAuthentication, http.StatusUnauthorized, "InvalidSignature", "invalid provider signature")
	ErrUnauthenticated  = newError(KindAuthentication, http.StatusUnauthorized, "Unauthenticated", "authentication required")

	ErrPaymentInitFailed   = newError(KindGateway, http.StatusBadRequest, "PaymentInitFailed", "failed to initialize payment")
	ErrPaymentVerifyFailed = newError(KindGateway, http.StatusBadRequest, "PaymentVerifyFailed", "failed to verify payment")
	ErrPaymentGateway      = newError(KindGateway, http.StatusInternalServerError, "PaymentGatewayError", "payment provider unavailable")
)

// From returns the *Error in err's chain, if any.
func From(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
