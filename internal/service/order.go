package service

import (
	"context"
	"errors"
	"fmt"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrderLine struct {
	ProductID uint
	Quantity  int
}

type CreateOrderInput struct {
	ShippingAddress string
	Phone           string
	Items           []OrderLine
}

// OrderPatch lists the fields an order update may change. Nil means keep.
type OrderPatch struct {
	Status          *string
	ShippingAddress *string
	Phone           *string
}

type OrderService interface {
	CheckoutFromCart(ctx context.Context, userID uint, shippingAddress, phone string) (*model.Order, error)
	CreateOrder(ctx context.Context, userID uint, in *CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, actor model.Actor, orderID uint) (*model.Order, error)
	ListOrders(ctx context.Context, actor model.Actor, status, ordering string) ([]*model.Order, error)
	UpdateOrder(ctx context.Context, actor model.Actor, orderID uint, patch *OrderPatch) (*model.Order, error)
	DeleteOrder(ctx context.Context, actor model.Actor, orderID uint) error
	GetOrderItem(ctx context.Context, actor model.Actor, itemID uint) (*model.OrderItem, error)
	ListOrderItems(ctx context.Context, actor model.Actor) ([]*model.OrderItem, error)
}

type orderServiceImpl struct {
	db          *gorm.DB
	logger      *zap.Logger
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
}

func NewOrderService(
	db *gorm.DB,
	logger *zap.Logger,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		logger:      logger,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
	}
}

// pricedLine is an order line with its product loaded inside the
// transaction that will place the order.
type pricedLine struct {
	product  *model.Product
	quantity int
}

// CheckoutFromCart turns the caller's cart into a pending order. The cart is
// left intact; it is only emptied once the payment succeeds.
func (s *orderServiceImpl) CheckoutFromCart(ctx context.Context, userID uint, shippingAddress, phone string) (*model.Order, error) {
	var orderID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByUserID(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrEmptyCart
			}
			return fmt.Errorf("load cart: %w", err)
		}
		if len(cart.Items) == 0 {
			return apperror.ErrEmptyCart
		}

		if strings.TrimSpace(shippingAddress) == "" || strings.TrimSpace(phone) == "" {
			return apperror.ErrMissingShippingInfo
		}

		lines := make([]pricedLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			if item.Product == nil {
				return apperror.ErrProductNotFound
			}
			lines = append(lines, pricedLine{product: item.Product, quantity: item.Quantity})
		}

		order, err := s.placeOrder(ctx, tx, userID, lines, cart.TotalPrice(), shippingAddress, phone)
		if err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		metrics.RecordCheckout(resultLabel(err))
		return nil, err
	}

	metrics.RecordCheckout("created")
	s.logger.Info("order created from cart",
		zap.Uint("order_id", orderID),
		zap.Uint("user_id", userID),
	)

	return s.orderRepo.FindByID(ctx, nil, orderID, repository.OrderFilter{})
}

// CreateOrder places an order from explicit lines. Prices are taken from the
// catalog, never from the caller.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, userID uint, in *CreateOrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperror.ErrInvalidRequest.WithMessage("at least one item is required")
	}
	if strings.TrimSpace(in.ShippingAddress) == "" || strings.TrimSpace(in.Phone) == "" {
		return nil, apperror.ErrMissingShippingInfo
	}
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, apperror.ErrInvalidQuantity
		}
	}

	var orderID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		productIDs := make([]uint, len(in.Items))
		for i, line := range in.Items {
			productIDs[i] = line.ProductID
		}
		products, err := s.productRepo.FindMany(ctx, tx, productIDs)
		if err != nil {
			return fmt.Errorf("find products: %w", err)
		}
		byID := make(map[uint]*model.Product, len(products))
		for _, product := range products {
			byID[product.ID] = product
		}

		lines := make([]pricedLine, 0, len(in.Items))
		total := decimal.Zero
		for _, line := range in.Items {
			product, ok := byID[line.ProductID]
			if !ok {
				return apperror.ErrProductNotFound.WithMessage("product %d not found", line.ProductID)
			}
			lines = append(lines, pricedLine{product: product, quantity: line.Quantity})
			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		order, err := s.placeOrder(ctx, tx, userID, lines, total, in.ShippingAddress, in.Phone)
		if err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created", zap.Uint("order_id", orderID), zap.Uint("user_id", userID))

	return s.orderRepo.FindByID(ctx, nil, orderID, repository.OrderFilter{})
}

// placeOrder checks every line against stock before writing anything, then
// creates the order and its items and takes the stock. The conditional
// decrement still guards against a concurrent checkout that slipped in
// between the check and the write.
func (s *orderServiceImpl) placeOrder(
	ctx context.Context,
	tx *gorm.DB,
	userID uint,
	lines []pricedLine,
	total decimal.Decimal,
	shippingAddress, phone string,
) (*model.Order, error) {
	for _, line := range lines {
		if line.product.Stock < line.quantity {
			return nil, insufficientStock(line.product)
		}
	}

	order := &model.Order{
		UserID:          userID,
		Status:          model.OrderStatusPending,
		TotalPrice:      total,
		ShippingAddress: shippingAddress,
		Phone:           phone,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("store order in db: %w", err)
	}

	items := make([]*model.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = &model.OrderItem{
			OrderID:   order.ID,
			ProductID: line.product.ID,
			Quantity:  line.quantity,
			Price:     line.product.Price,
		}
	}
	if err := s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		return nil, fmt.Errorf("store order items in db: %w", err)
	}

	for _, line := range lines {
		ok, err := s.productRepo.DecrementStock(ctx, tx, line.product.ID, line.quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			current, err := s.productRepo.FindByID(ctx, tx, line.product.ID)
			if err != nil {
				return nil, fmt.Errorf("reload product: %w", err)
			}
			return nil, insufficientStock(current)
		}
	}

	return order, nil
}

func insufficientStock(product *model.Product) error {
	return apperror.ErrInsufficientStock.WithMessage("not enough stock for %s. Available: %d", product.Name, product.Stock)
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, actor model.Actor, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, orderID, repository.OrderFilter{UserID: actor.Scope()})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, actor model.Actor, status, ordering string) ([]*model.Order, error) {
	if status != "" && !model.OrderStatus(status).Valid() {
		return nil, apperror.ErrInvalidRequest.WithMessage("unknown status %q", status)
	}
	if !repository.ValidOrdering(ordering) {
		return nil, apperror.ErrInvalidRequest.WithMessage("unknown ordering %q", ordering)
	}

	orders, err := s.orderRepo.List(ctx, repository.OrderFilter{
		UserID:   actor.Scope(),
		Status:   status,
		Ordering: ordering,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrder merges the patch field by field. Lines and total are never
// editable.
func (s *orderServiceImpl) UpdateOrder(ctx context.Context, actor model.Actor, orderID uint, patch *OrderPatch) (*model.Order, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if patch.Status != nil {
		status := model.OrderStatus(*patch.Status)
		if !status.Valid() {
			return nil, apperror.ErrInvalidRequest.WithMessage("unknown status %q", *patch.Status)
		}
		fields["status"] = status
	}
	if patch.ShippingAddress != nil {
		if strings.TrimSpace(*patch.ShippingAddress) == "" {
			return nil, apperror.ErrMissingShippingInfo
		}
		fields["shipping_address"] = *patch.ShippingAddress
	}
	if patch.Phone != nil {
		if strings.TrimSpace(*patch.Phone) == "" {
			return nil, apperror.ErrMissingShippingInfo
		}
		fields["phone"] = *patch.Phone
	}

	if len(fields) > 0 {
		if err := s.orderRepo.Update(ctx, orderID, fields); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.ErrOrderNotFound
			}
			return nil, fmt.Errorf("update order: %w", err)
		}
	}

	return s.GetOrder(ctx, actor, orderID)
}

func (s *orderServiceImpl) DeleteOrder(ctx context.Context, actor model.Actor, orderID uint) error {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return err
	}

	if err := s.orderRepo.Delete(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}

	s.logger.Info("order deleted", zap.Uint("order_id", orderID), zap.Uint("by_user_id", actor.UserID))
	return nil
}

func (s *orderServiceImpl) GetOrderItem(ctx context.Context, actor model.Actor, itemID uint) (*model.OrderItem, error) {
	item, err := s.orderRepo.GetOrderItem(ctx, itemID, repository.OrderFilter{UserID: actor.Scope()})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrOrderItemNotFound
		}
		return nil, fmt.Errorf("find order item: %w", err)
	}
	return item, nil
}

func (s *orderServiceImpl) ListOrderItems(ctx context.Context, actor model.Actor) ([]*model.OrderItem, error) {
	items, err := s.orderRepo.ListOrderItems(ctx, repository.OrderFilter{UserID: actor.Scope()})
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return items, nil
}

func resultLabel(err error) string {
	if appErr, ok := apperror.From(err); ok {
		return appErr.Code
	}
	return "error"
}
