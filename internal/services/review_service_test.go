package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

func (f *fixture) loadProduct(id uuid.UUID) models.Product {
	f.t.Helper()
	var p models.Product
	require.NoError(f.t, f.db.First(&p, "id = ?", id).Error)
	return p
}

func TestCreateReviewRequiresCompletedOrder(t *testing.T) {
	f := newFixture(t)
	reviews := NewReviewService(f.db)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)
	item := order.Items[0]

	_, err := reviews.CreateReview(f.ctx, u.ID, item.ID, 5, "great")
	assert.ErrorIs(t, err, ErrNotCompleted)

	f.setStatus(order.ID, models.OrderStatusCompleted)

	stranger := f.user("stranger@example.com")
	_, err = reviews.CreateReview(f.ctx, stranger.ID, item.ID, 5, "great")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = reviews.CreateReview(f.ctx, u.ID, item.ID, 6, "great")
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = reviews.CreateReview(f.ctx, u.ID, uuid.New(), 5, "great")
	assert.ErrorIs(t, err, ErrNotFound)
	f.notify.Wait()
}

func TestCreateReviewOncePerOrderItem(t *testing.T) {
	f := newFixture(t)
	reviews := NewReviewService(f.db)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)
	f.setStatus(order.ID, models.OrderStatusCompleted)
	item := order.Items[0]

	review, err := reviews.CreateReview(f.ctx, u.ID, item.ID, 4, " solid phone ")
	require.NoError(t, err)
	assert.Equal(t, "solid phone", review.Comment)
	assert.Equal(t, p.ID, review.ProductID)

	_, err = reviews.CreateReview(f.ctx, u.ID, item.ID, 5, "again")
	assert.ErrorIs(t, err, ErrDuplicateReview)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(1), f.count(&models.Review{}, "order_item_id = ?", item.ID))

	got := f.loadProduct(p.ID)
	assert.Equal(t, 4.0, got.AverageRating)
	assert.Equal(t, 1, got.ReviewCount)

	reviewable, err := reviews.ReviewableItems(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, reviewable)
	f.notify.Wait()
}

func TestRatingIsRecomputedFromAllReviews(t *testing.T) {
	f := newFixture(t)
	reviews := NewReviewService(f.db)
	u := f.user("buyer@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	black := f.variant(p.ID, "Black", 1000, 5)
	white := f.variant(p.ID, "White", 1000, 5)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, black.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(f.ctx, u.ID, p.ID, white.ID, 1)
	require.NoError(t, err)
	order, _, err := f.orders.CreateOrder(f.ctx, u.ID, testShipping, "")
	require.NoError(t, err)
	f.setStatus(order.ID, models.OrderStatusCompleted)

	reviewable, err := reviews.ReviewableItems(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, reviewable, 2)

	first, err := reviews.CreateReview(f.ctx, u.ID, order.Items[0].ID, 5, "")
	require.NoError(t, err)
	_, err = reviews.CreateReview(f.ctx, u.ID, order.Items[1].ID, 4, "")
	require.NoError(t, err)

	got := f.loadProduct(p.ID)
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 2, got.ReviewCount)

	two := 2
	_, err = reviews.UpdateReview(f.ctx, u.ID, first.ID, &two, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.loadProduct(p.ID).AverageRating)

	require.NoError(t, reviews.DeleteReview(f.ctx, Actor{UserID: admin.ID, Role: models.RoleAdmin}, first.ID))
	got = f.loadProduct(p.ID)
	assert.Equal(t, 4.0, got.AverageRating)
	assert.Equal(t, 1, got.ReviewCount)

	// The deleted review's item can be reviewed again.
	reviewable, err = reviews.ReviewableItems(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, reviewable, 1)
	assert.Equal(t, order.Items[0].ID, reviewable[0].OrderItemID)
	f.notify.Wait()
}

func TestUpdateAndDeleteReviewOwnership(t *testing.T) {
	f := newFixture(t)
	reviews := NewReviewService(f.db)
	u := f.user("buyer@example.com")
	stranger := f.user("stranger@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)
	f.setStatus(order.ID, models.OrderStatusCompleted)

	review, err := reviews.CreateReview(f.ctx, u.ID, order.Items[0].ID, 3, "ok")
	require.NoError(t, err)

	comment := "changed"
	_, err = reviews.UpdateReview(f.ctx, stranger.ID, review.ID, nil, &comment)
	assert.ErrorIs(t, err, ErrForbidden)

	bad := 0
	_, err = reviews.UpdateReview(f.ctx, u.ID, review.ID, &bad, nil)
	assert.ErrorIs(t, err, ErrInvalidRating)

	updated, err := reviews.UpdateReview(f.ctx, u.ID, review.ID, nil, &comment)
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Comment)
	assert.Equal(t, 3, updated.Rating)

	err = reviews.DeleteReview(f.ctx, Actor{UserID: stranger.ID, Role: models.RoleUser}, review.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	require.NoError(t, reviews.DeleteReview(f.ctx, Actor{UserID: u.ID, Role: models.RoleUser}, review.ID))

	got := f.loadProduct(p.ID)
	assert.Equal(t, 0.0, got.AverageRating)
	assert.Equal(t, 0, got.ReviewCount)
	f.notify.Wait()
}

func TestListReviews(t *testing.T) {
	f := newFixture(t)
	reviews := NewReviewService(f.db)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)
	f.setStatus(order.ID, models.OrderStatusCompleted)
	_, err := reviews.CreateReview(f.ctx, u.ID, order.Items[0].ID, 5, "love it")
	require.NoError(t, err)

	page, err := reviews.ListReviews(f.ctx, ReviewQuery{ProductID: &p.ID, Page: utils.NewPagination(1, 10)})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].User)
	assert.Equal(t, "buyer@example.com", page.Items[0].User.Email)

	page, err = reviews.ListReviews(f.ctx, ReviewQuery{ProductID: &p.ID, Rating: 1, Page: utils.NewPagination(1, 10)})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	f.notify.Wait()
}
