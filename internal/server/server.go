package server

import (
	"context"
	"net/http"
	"storefront-checkout/internal/handler"
	appmiddleware "storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	echo           *echo.Echo
	jwtSecret      string
	cartHandler    *handler.CartHandler
	orderHandler   *handler.OrderHandler
	paymentHandler *handler.PaymentHandler
}

func NewServer(
	logger *zap.Logger,
	jwtSecret string,
	cartService service.CartService,
	orderService service.OrderService,
	paymentService service.PaymentService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(appmiddleware.Metrics())
	e.Use(appmiddleware.Logger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		jwtSecret:      jwtSecret,
		cartHandler:    handler.NewCartHandler(cartService),
		orderHandler:   handler.NewOrderHandler(orderService),
		paymentHandler: handler.NewPaymentHandler(paymentService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	api.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// -------- provider callbacks --------
	api.POST("/payments/webhook/", s.paymentHandler.Webhook)

	authed := api.Group("", appmiddleware.Auth(s.jwtSecret))

	// -------- cart --------
	cart := authed.Group("/cart")
	cart.GET("/", s.cartHandler.GetCart)
	cart.POST("/add/", s.cartHandler.AddItem)
	cart.POST("/update/", s.cartHandler.UpdateItem)
	cart.POST("/remove/", s.cartHandler.RemoveItem)
	cart.POST("/clear/", s.cartHandler.Clear)

	// -------- orders --------
	orders := authed.Group("/orders")
	orders.POST("/checkout-from-cart/", s.orderHandler.CheckoutFromCart)
	orders.GET("/", s.orderHandler.ListOrders)
	orders.POST("/", s.orderHandler.CreateOrder)
	orders.GET("/:id/", s.orderHandler.GetOrder)
	orders.PATCH("/:id/", s.orderHandler.UpdateOrder)
	orders.DELETE("/:id/", s.orderHandler.DeleteOrder)

	orderItems := authed.Group("/order-items")
	orderItems.GET("/", s.orderHandler.ListOrderItems)
	orderItems.GET("/:id/", s.orderHandler.GetOrderItem)

	// -------- payments --------
	payments := authed.Group("/payments")
	payments.GET("/", s.paymentHandler.ListPayments)
	payments.GET("/:id/", s.paymentHandler.GetPayment)
	payments.POST("/initialize/", s.paymentHandler.Initialize)
	payments.POST("/verify/", s.paymentHandler.Verify)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
