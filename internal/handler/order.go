package handler

import (
	"net/http"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) CheckoutFromCart(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.CheckoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := h.orderService.CheckoutFromCart(c.Request().Context(), actor.UserID, req.ShippingAddress, req.Phone)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.CheckoutResponse{
		Message: "Order created successfully",
		Order:   order,
	})
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	in := &service.CreateOrderInput{
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Items:           make([]service.OrderLine, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		if item == nil || item.ProductID == 0 {
			return apperror.ErrInvalidRequest.WithMessage("every item needs a product")
		}
		in.Items = append(in.Items, service.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orderService.CreateOrder(c.Request().Context(), actor.UserID, in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.ListOrders(c.Request().Context(), actor, c.QueryParam("status"), c.QueryParam("ordering"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}
	orderID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), actor, orderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrder(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}
	orderID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := h.orderService.UpdateOrder(c.Request().Context(), actor, orderID, &service.OrderPatch{
		Status:          req.Status,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}
	orderID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.orderService.DeleteOrder(c.Request().Context(), actor, orderID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) ListOrderItems(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}

	items, err := h.orderService.ListOrderItems(c.Request().Context(), actor)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

func (h *OrderHandler) GetOrderItem(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return err
	}
	itemID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	item, err := h.orderService.GetOrderItem(c.Request().Context(), actor, itemID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}
