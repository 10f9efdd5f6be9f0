package handler

import (
	"net/http"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/service"
	"strings"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	cart, err := h.cartService.GetCart(c.Request().Context(), actor.UserID)
	if err != nil {
		return err
	}

	return h.respond(c, cart)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.AddCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ProductID == 0 {
		return apperror.ErrInvalidRequest.WithMessage("product ID is required")
	}

	quantity, ok := dto.ParseQuantity(req.Quantity, 1)
	if !ok {
		return apperror.ErrInvalidQuantity.WithMessage("quantity must be a number")
	}

	cart, err := h.cartService.AddItem(c.Request().Context(), actor.UserID, req.ProductID, quantity)
	if err != nil {
		return err
	}

	return h.respond(c, cart)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.UpdateCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	raw := strings.TrimSpace(string(req.Quantity))
	if req.ItemID == 0 || raw == "" || raw == "null" {
		return apperror.ErrInvalidRequest.WithMessage("item ID and quantity are required")
	}
	quantity, ok := dto.ParseQuantity(req.Quantity, 0)
	if !ok {
		return apperror.ErrInvalidQuantity.WithMessage("quantity must be a number")
	}

	cart, err := h.cartService.UpdateItem(c.Request().Context(), actor.UserID, req.ItemID, quantity)
	if err != nil {
		return err
	}

	return h.respond(c, cart)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.RemoveCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ItemID == 0 {
		return apperror.ErrInvalidRequest.WithMessage("item ID is required")
	}

	cart, err := h.cartService.RemoveItem(c.Request().Context(), actor.UserID, req.ItemID)
	if err != nil {
		return err
	}

	return h.respond(c, cart)
}

func (h *CartHandler) Clear(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	cart, err := h.cartService.Clear(c.Request().Context(), actor.UserID)
	if err != nil {
		return err
	}

	return h.respond(c, cart)
}

func (h *CartHandler) respond(c echo.Context, cart *model.Cart) error {
	return c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}
