package services

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

// ReviewableItem is a purchased line the user has not reviewed yet.
type ReviewableItem struct {
	OrderItemID    uuid.UUID `json:"order_item_id"`
	OrderID        uuid.UUID `json:"order_id"`
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	VariantColor   string    `json:"variant_color"`
	VariantStorage string    `json:"variant_storage"`
	Quantity       int       `json:"quantity"`
	Price          int64     `json:"price"`
}

// ReviewQuery filters review listings.
type ReviewQuery struct {
	ProductID *uuid.UUID
	UserID    *uuid.UUID
	Rating    int
	Page      utils.Pagination
}

// ReviewService enforces review eligibility and keeps the product rating
// cache equal to the aggregate of live reviews.
type ReviewService struct {
	DB *gorm.DB
	// Products, when set, is told when a product's rating changes.
	Products ProductInvalidator
}

// NewReviewService constructs a ReviewService.
func NewReviewService(db *gorm.DB) *ReviewService {
	return &ReviewService{DB: db}
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

// CreateReview reviews one item of a completed order owned by userID.
func (s *ReviewService) CreateReview(ctx context.Context, userID, orderItemID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if !validRating(rating) {
		return nil, ErrInvalidRating
	}

	db := s.DB.WithContext(ctx)
	var item models.OrderItem
	if err := db.First(&item, "id = ?", orderItemID).Error; err != nil {
		return nil, lookupErr(err, "order item")
	}
	var order models.Order
	if err := db.First(&order, "id = ?", item.OrderID).Error; err != nil {
		return nil, lookupErr(err, "order")
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, ErrNotCompleted
	}

	var existing int64
	if err := db.Model(&models.Review{}).Where("order_item_id = ?", item.ID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateReview
	}

	review := models.Review{
		UserID:      userID,
		ProductID:   item.ProductID,
		OrderItemID: item.ID,
		Rating:      rating,
		Comment:     strings.TrimSpace(comment),
	}
	if err := db.Create(&review).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateReview
		}
		return nil, err
	}

	if err := db.Model(&models.OrderItem{}).Where("id = ?", item.ID).Update("is_review_prompted", true).Error; err != nil {
		log.Error().Err(err).Str("order_item_id", item.ID.String()).Msg("failed to mark item reviewed")
	}
	s.refreshRating(ctx, item.ProductID)
	return &review, nil
}

// UpdateReview changes rating and/or comment of the caller's own review.
func (s *ReviewService) UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, rating *int, comment *string) (*models.Review, error) {
	if rating != nil && !validRating(*rating) {
		return nil, ErrInvalidRating
	}

	db := s.DB.WithContext(ctx)
	var review models.Review
	if err := db.First(&review, "id = ?", reviewID).Error; err != nil {
		return nil, lookupErr(err, "review")
	}
	if review.UserID != userID {
		return nil, ErrForbidden
	}

	updates := map[string]any{}
	if rating != nil {
		updates["rating"] = *rating
		review.Rating = *rating
	}
	if comment != nil {
		review.Comment = strings.TrimSpace(*comment)
		updates["comment"] = review.Comment
	}
	if len(updates) == 0 {
		return &review, nil
	}
	if err := db.Model(&models.Review{}).Where("id = ?", review.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	if rating != nil {
		s.refreshRating(ctx, review.ProductID)
	}
	return &review, nil
}

// DeleteReview removes a review. Owners and admins may delete. The source
// order item becomes reviewable again.
func (s *ReviewService) DeleteReview(ctx context.Context, actor Actor, reviewID uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	var review models.Review
	if err := db.First(&review, "id = ?", reviewID).Error; err != nil {
		return lookupErr(err, "review")
	}
	if review.UserID != actor.UserID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := db.Delete(&models.Review{}, "id = ?", review.ID).Error; err != nil {
		return err
	}
	if err := db.Model(&models.OrderItem{}).Where("id = ?", review.OrderItemID).Update("is_review_prompted", false).Error; err != nil {
		log.Error().Err(err).Str("order_item_id", review.OrderItemID.String()).Msg("failed to reset review prompt")
	}
	s.refreshRating(ctx, review.ProductID)
	return nil
}

// ReviewableItems lists items of the user's completed orders that have not
// been reviewed.
func (s *ReviewService) ReviewableItems(ctx context.Context, userID uuid.UUID) ([]ReviewableItem, error) {
	var items []models.OrderItem
	err := s.DB.WithContext(ctx).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ? AND order_items.is_review_prompted = ?",
			userID, models.OrderStatusCompleted, false).
		Order("order_items.created_at desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	out := make([]ReviewableItem, 0, len(items))
	for _, it := range items {
		out = append(out, ReviewableItem{
			OrderItemID:    it.ID,
			OrderID:        it.OrderID,
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			VariantColor:   it.VariantColor,
			VariantStorage: it.VariantStorage,
			Quantity:       it.Quantity,
			Price:          it.Price,
		})
	}
	return out, nil
}

// ListReviews returns reviews matching q, newest first, with the author.
func (s *ReviewService) ListReviews(ctx context.Context, q ReviewQuery) (utils.Page[models.Review], error) {
	query := s.DB.WithContext(ctx).Model(&models.Review{})
	if q.ProductID != nil {
		query = query.Where("product_id = ?", *q.ProductID)
	}
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.Rating != 0 {
		if !validRating(q.Rating) {
			return utils.Page[models.Review]{}, ErrInvalidRating
		}
		query = query.Where("rating = ?", q.Rating)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[models.Review]{}, err
	}
	var reviews []models.Review
	if err := query.Preload("User").Order("created_at desc").
		Limit(q.Page.Limit).Offset(q.Page.Offset).
		Find(&reviews).Error; err != nil {
		return utils.Page[models.Review]{}, err
	}
	return utils.NewPage(reviews, total, q.Page), nil
}

// RecomputeRating rebuilds a product's average rating and review count from
// every live review.
func (s *ReviewService) RecomputeRating(ctx context.Context, productID uuid.UUID) error {
	var agg struct {
		Avg   float64
		Count int
	}
	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("product_id = ?", productID).
		Scan(&agg).Error; err != nil {
		return err
	}
	return db.Model(&models.Product{}).Where("id = ?", productID).Updates(map[string]any{
		"average_rating": roundRating(agg.Avg),
		"review_count":   agg.Count,
	}).Error
}

func (s *ReviewService) refreshRating(ctx context.Context, productID uuid.UUID) {
	if err := s.RecomputeRating(ctx, productID); err != nil {
		log.Error().Err(err).Str("product_id", productID.String()).Msg("rating recompute failed")
	}
	if s.Products != nil {
		s.Products.InvalidateProducts(context.WithoutCancel(ctx), productID)
	}
}

func roundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}
