package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/models"
)

// CartView is a cart joined with live catalog data.
type CartView struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	Items      []models.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	TotalPrice int64             `json:"total_price"`
}

// CartCount summarises a cart for badges.
type CartCount struct {
	Lines    int64 `json:"lines"`
	Quantity int64 `json:"quantity"`
}

// CartService manages the per-user shopping cart.
type CartService struct {
	DB *gorm.DB
}

// NewCartService constructs a CartService.
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{DB: db}
}

// ensureCart returns the user's cart, creating it on first use.
func (s *CartService) ensureCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	db := s.DB.WithContext(ctx)
	var cart models.Cart
	err := db.First(&cart, "user_id = ?", userID).Error
	if err == nil {
		return &cart, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	created := models.Cart{UserID: userID}
	if err := db.Create(&created).Error; err != nil {
		if !isDuplicate(err) {
			return nil, err
		}
		// Lost a race with a concurrent first request.
		var winner models.Cart
		if err := db.First(&winner, "user_id = ?", userID).Error; err != nil {
			return nil, err
		}
		return &winner, nil
	}
	return &created, nil
}

// GetCart returns the cart with every line joined to its product and
// variant. Lines whose product or variant is gone or inactive are deleted.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	var lines []models.CartItem
	if err := db.Preload("Product").Preload("Variant").
		Where("cart_id = ?", cart.ID).Order("created_at asc").
		Find(&lines).Error; err != nil {
		return nil, err
	}

	view := &CartView{ID: cart.ID, UserID: userID, Items: make([]models.CartItem, 0, len(lines))}
	var stale []uuid.UUID
	for _, line := range lines {
		if !lineSellable(line) {
			stale = append(stale, line.ID)
			continue
		}
		view.Items = append(view.Items, line)
		view.TotalItems += line.Quantity
		view.TotalPrice += int64(line.Quantity) * line.Variant.Price
	}

	if len(stale) > 0 {
		if err := db.Where("id IN ?", stale).Delete(&models.CartItem{}).Error; err != nil {
			return nil, err
		}
		log.Info().Str("cart_id", cart.ID.String()).Int("removed", len(stale)).Msg("dropped unavailable cart lines")
	}
	return view, nil
}

func lineSellable(line models.CartItem) bool {
	return line.Product != nil && line.Product.IsActive &&
		line.Variant != nil && line.Variant.IsActive &&
		line.Variant.ProductID == line.ProductID
}

// AddItem adds qty of a variant, merging with an existing line.
func (s *CartService) AddItem(ctx context.Context, userID, productID, variantID uuid.UUID, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	db := s.DB.WithContext(ctx)
	var product models.Product
	if err := db.First(&product, "id = ?", productID).Error; err != nil {
		return nil, lookupErr(err, "product")
	}
	var variant models.ProductVariant
	if err := db.First(&variant, "id = ?", variantID).Error; err != nil {
		return nil, lookupErr(err, "variant")
	}
	if !product.IsActive || !variant.IsActive {
		return nil, fmt.Errorf("%w: %s is not available", ErrUnavailable, product.Name)
	}
	if variant.ProductID != product.ID {
		return nil, ErrVariantMismatch
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	var existing models.CartItem
	err = db.First(&existing, "cart_id = ? AND variant_id = ?", cart.ID, variant.ID).Error
	switch {
	case err == nil:
		want := existing.Quantity + qty
		if variant.Stock < want {
			return nil, stockErr(variant, want)
		}
		if err := db.Model(&existing).Update("quantity", want).Error; err != nil {
			return nil, err
		}
	case isNotFound(err):
		if variant.Stock < qty {
			return nil, stockErr(variant, qty)
		}
		line := models.CartItem{CartID: cart.ID, ProductID: product.ID, VariantID: variant.ID, Quantity: qty}
		if err := db.Create(&line).Error; err != nil {
			if isDuplicate(err) {
				return nil, fmt.Errorf("%w: item was added concurrently, retry", ErrConflict)
			}
			return nil, err
		}
	default:
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func stockErr(v models.ProductVariant, want int) error {
	return fmt.Errorf("%w: requested %d, only %d in stock", ErrInsufficientStock, want, v.Stock)
}

// UpdateItem sets the absolute quantity of a cart line.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	line, err := s.ownedLine(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	var variant models.ProductVariant
	if err := db.First(&variant, "id = ?", line.VariantID).Error; err != nil {
		return nil, lookupErr(err, "variant")
	}
	if !variant.IsActive {
		return nil, fmt.Errorf("%w: variant is not available", ErrUnavailable)
	}
	if variant.Stock < qty {
		return nil, stockErr(variant, qty)
	}
	if err := db.Model(line).Update("quantity", qty).Error; err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes one line from the caller's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartView, error) {
	line, err := s.ownedLine(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Delete(line).Error; err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// Clear empties the caller's cart.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
}

// Count returns the number of lines and units in the cart.
func (s *CartService) Count(ctx context.Context, userID uuid.UUID) (CartCount, error) {
	var out CartCount
	err := s.DB.WithContext(ctx).Model(&models.CartItem{}).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ?", userID).
		Select("COUNT(*) AS lines, COALESCE(SUM(cart_items.quantity), 0) AS quantity").
		Scan(&out).Error
	return out, err
}

func (s *CartService) ownedLine(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	db := s.DB.WithContext(ctx)
	var line models.CartItem
	if err := db.First(&line, "id = ?", itemID).Error; err != nil {
		return nil, lookupErr(err, "cart item")
	}
	var cart models.Cart
	if err := db.First(&cart, "id = ?", line.CartID).Error; err != nil {
		return nil, lookupErr(err, "cart")
	}
	if cart.UserID != userID {
		return nil, ErrForbidden
	}
	return &line, nil
}
