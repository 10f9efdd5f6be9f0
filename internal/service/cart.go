package service

import (
	"context"
	"errors"
	"fmt"
	"storefront-checkout/internal/apperror"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"gorm.io/gorm"
)

// CartService manages the caller's cart. None of its operations touch
// product stock; stock is only taken when an order is placed.
type CartService interface {
	GetCart(ctx context.Context, userID uint) (*model.Cart, error)
	AddItem(ctx context.Context, userID, productID uint, quantity int) (*model.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID uint, quantity int) (*model.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uint) (*model.Cart, error)
	Clear(ctx context.Context, userID uint) (*model.Cart, error)
}

type cartServiceImpl struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
) CartService {
	return &cartServiceImpl{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

func (s *cartServiceImpl) GetCart(ctx context.Context, userID uint) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

func (s *cartServiceImpl) AddItem(ctx context.Context, userID, productID uint, quantity int) (*model.Cart, error) {
	product, err := s.productRepo.FindByID(ctx, nil, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	if quantity <= 0 {
		return nil, apperror.ErrInvalidQuantity
	}
	if product.Stock < quantity {
		return nil, apperror.ErrInsufficientStock
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.cartRepo.FindItemByProduct(ctx, cart.ID, productID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find cart item: %w", err)
	}
	if existing != nil && existing.Quantity+quantity > product.Stock {
		return nil, apperror.ErrInsufficientStock
	}

	if err := s.cartRepo.AddQuantity(ctx, cart.ID, productID, quantity); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	return s.reload(ctx, userID)
}

func (s *cartServiceImpl) UpdateItem(ctx context.Context, userID, itemID uint, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, apperror.ErrInvalidQuantity
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.findItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}

	if item.Product == nil || item.Product.Stock < quantity {
		return nil, apperror.ErrInsufficientStock
	}

	if err := s.cartRepo.SetItemQuantity(ctx, item.ID, quantity); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return s.reload(ctx, userID)
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, userID, itemID uint) (*model.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.findItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.cartRepo.DeleteItem(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	return s.reload(ctx, userID)
}

func (s *cartServiceImpl) Clear(ctx context.Context, userID uint) (*model.Cart, error) {
	if _, err := s.GetCart(ctx, userID); err != nil {
		return nil, err
	}

	if _, err := s.cartRepo.ClearByUserID(ctx, nil, userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	return s.reload(ctx, userID)
}

func (s *cartServiceImpl) findItem(ctx context.Context, cartID, itemID uint) (*model.CartItem, error) {
	item, err := s.cartRepo.FindItem(ctx, cartID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("find cart item: %w", err)
	}
	return item, nil
}

func (s *cartServiceImpl) reload(ctx context.Context, userID uint) (*model.Cart, error) {
	cart, err := s.cartRepo.FindByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}
