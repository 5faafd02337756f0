package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/phonestore/internal/models"
)

func TestAddItemInsufficientStockLeavesCartUnchanged(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 1)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	cart, err := f.carts.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 1, f.stockOf(v.ID))
}

func TestAddItemMergesExistingLine(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1500, 4)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 1)
	require.NoError(t, err)
	cart, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 3, cart.TotalItems)
	assert.Equal(t, int64(4500), cart.TotalPrice)

	_, err = f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	count, err := f.carts.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, CartCount{Lines: 1, Quantity: 3}, count)
}

func TestAddItemRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	c := f.category("Phones")
	p := f.product(c.ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	other := f.product(c.ID, "Galaxy", true)
	hidden := f.product(c.ID, "Retired", false)
	hv := f.variant(hidden.ID, "Gray", 1000, 5)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.carts.AddItem(f.ctx, u.ID, other.ID, v.ID, 1)
	assert.ErrorIs(t, err, ErrVariantMismatch)

	_, err = f.carts.AddItem(f.ctx, u.ID, hidden.ID, hv.ID, 1)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = f.carts.AddItem(f.ctx, u.ID, p.ID, c.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCartDropsUnavailableLines(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	c := f.category("Phones")
	pa := f.product(c.ID, "Alpha", true)
	va := f.variant(pa.ID, "Red", 1000, 5)
	pb := f.product(c.ID, "Beta", true)
	vb := f.variant(pb.ID, "Blue", 2000, 5)

	_, err := f.carts.AddItem(f.ctx, u.ID, pa.ID, va.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(f.ctx, u.ID, pb.ID, vb.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.ProductVariant{}).Where("id = ?", vb.ID).Update("is_active", false).Error)

	cart, err := f.carts.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, va.ID, cart.Items[0].VariantID)
	assert.Equal(t, int64(1000), cart.TotalPrice)
	assert.Equal(t, int64(1), f.count(&models.CartItem{}, ""))

	require.NoError(t, f.db.Delete(&models.Product{}, "id = ?", pa.ID).Error)
	cart, err = f.carts.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	stranger := f.user("stranger@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 3)

	cart, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 1)
	require.NoError(t, err)
	lineID := cart.Items[0].ID

	cart, err = f.carts.UpdateItem(f.ctx, u.ID, lineID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	_, err = f.carts.UpdateItem(f.ctx, u.ID, lineID, 4)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.carts.UpdateItem(f.ctx, stranger.ID, lineID, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.carts.RemoveItem(f.ctx, stranger.ID, lineID)
	assert.ErrorIs(t, err, ErrForbidden)

	cart, err = f.carts.RemoveItem(f.ctx, u.ID, lineID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestClearCart(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 3)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.carts.Clear(f.ctx, u.ID))

	count, err := f.carts.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, CartCount{}, count)
	assert.Equal(t, int64(1), f.count(&models.Cart{}, "user_id = ?", u.ID))
}
