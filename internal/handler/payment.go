package handler

import (
	"io"
	"net/http"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

const SignatureHeader = "X-Provider-Signature"

// webhook bodies are small JSON documents
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) Initialize(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.InitializePaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.paymentService.Initialize(c.Request().Context(), actor, &service.InitializeInput{
		OrderID:     req.OrderID,
		Email:       req.Email,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.InitializePaymentResponse{
		Status:           "success",
		Message:          "Payment initialized",
		Payment:          res.Payment,
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		Reference:        res.Reference,
	})
}

// Verify answers 400 with the payment when the provider reports anything
// other than success.
func (h *PaymentHandler) Verify(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.VerifyPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.paymentService.Verify(c.Request().Context(), actor, req.Reference)
	if err != nil {
		return err
	}

	if res.Payment.Status != model.PaymentStatusSuccess {
		return c.JSON(http.StatusBadRequest, dto.VerifyPaymentResponse{
			Status:  "failed",
			Message: "Payment verification failed",
			Payment: res.Payment,
		})
	}

	return c.JSON(http.StatusOK, dto.VerifyPaymentResponse{
		Status:  "success",
		Message: "Payment verified successfully",
		Payment: res.Payment,
	})
}

// Webhook is unauthenticated; the body signature is the credential.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return apperror.ErrInvalidRequest.Wrap(err)
	}
	if len(body) > maxWebhookBody {
		return apperror.ErrPayloadTooLarge.WithMessage("webhook body exceeds %d bytes", maxWebhookBody)
	}

	signature := c.Request().Header.Get(SignatureHeader)
	if err := h.paymentService.HandleWebhook(c.Request().Context(), signature, body); err != nil {
		return err
	}

	return c.NoContent(http.StatusOK)
}

func (h *PaymentHandler) ListPayments(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	payments, err := h.paymentService.ListPayments(c.Request().Context(), actor)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payments)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}
	paymentID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.paymentService.GetPayment(c.Request().Context(), actor, paymentID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}
