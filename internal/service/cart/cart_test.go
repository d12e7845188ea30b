package cart

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avdonin/marketplace/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, price string, stock uint, checked bool) models.Product {
	t.Helper()

	p := models.Product{
		Title:       "Wireless Headphones",
		Description: "Noise cancelling, 24h battery",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		SellerID:    100,
		Checked:     checked,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func TestAddCreatesLine(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "49.90", 10, true)

	item, err := svc.Add(context.Background(), 1, p.ID, 3)
	require.NoError(t, err)
	require.Equal(t, uint(1), item.UserID)
	require.Equal(t, p.ID, item.ProductID)
	require.Equal(t, uint(3), item.Quantity)
}

func TestAddAccumulatesAgainstStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "10.00", 5, true)
	ctx := context.Background()

	item, err := svc.Add(ctx, 1, p.ID, 3)
	require.NoError(t, err)
	require.Equal(t, uint(3), item.Quantity)

	// 3+4 exceeds stock 5, line stays at 3.
	_, err = svc.Add(ctx, 1, p.ID, 4)
	require.ErrorIs(t, err, ErrStockExceeded)

	items, err := svc.Items(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, uint(3), items[0].Quantity)

	updated, err := svc.Update(ctx, 1, items[0].ID, 5)
	require.NoError(t, err)
	require.Equal(t, uint(5), updated.Quantity)

	removed, err := svc.Update(ctx, 1, items[0].ID, 0)
	require.NoError(t, err)
	require.Nil(t, removed)

	items, err = svc.Items(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestAddKeepsSingleRowPerPair(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 100, true)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", 1, p.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	items, err := svc.Items(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint(4), items[0].Quantity)
}

func TestAddRejectsInvalidQuantity(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 10, true)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, p.ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Add(ctx, 1, p.ID, -2)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAddUnavailableProduct(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Add(ctx, 1, 999, 1)
	require.ErrorIs(t, err, ErrProductUnavailable)

	unchecked := seedProduct(t, db, "5.00", 10, false)
	_, err = svc.Add(ctx, 1, unchecked.ID, 1)
	require.ErrorIs(t, err, ErrProductUnavailable)

	soldOut := seedProduct(t, db, "5.00", 0, true)
	_, err = svc.Add(ctx, 1, soldOut.ID, 1)
	require.ErrorIs(t, err, ErrProductUnavailable)
}

func TestAddFirstQuantityOverStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 2, true)

	_, err := svc.Add(context.Background(), 1, p.ID, 3)
	require.ErrorIs(t, err, ErrStockExceeded)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestUpdateForeignLine(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 10, true)
	ctx := context.Background()

	item, err := svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	_, err = svc.Update(ctx, 2, item.ID, 5)
	require.ErrorIs(t, err, ErrNotFound)

	// untouched for the owner
	items, err := svc.Items(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint(2), items[0].Quantity)
}

func TestUpdateOverStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 4, true)
	ctx := context.Background()

	item, err := svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	_, err = svc.Update(ctx, 1, item.ID, 5)
	require.ErrorIs(t, err, ErrStockExceeded)

	items, err := svc.Items(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint(2), items[0].Quantity)
}

func TestRemove(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 10, true)
	ctx := context.Background()

	item, err := svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Remove(ctx, 2, item.ID), ErrNotFound)
	require.NoError(t, svc.Remove(ctx, 1, item.ID))
	require.ErrorIs(t, svc.Remove(ctx, 1, item.ID), ErrNotFound)
}

func TestCartOperationsNeverTouchStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	p := seedProduct(t, db, "5.00", 7, true)
	ctx := context.Background()

	item, err := svc.Add(ctx, 1, p.ID, 3)
	require.NoError(t, err)
	_, err = svc.Update(ctx, 1, item.ID, 7)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, 1, item.ID))

	var got models.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	require.Equal(t, uint(7), got.Stock)
}

func TestTotalsExactDecimal(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	a := seedProduct(t, db, "19.99", 10, true)
	b := seedProduct(t, db, "0.01", 10, true)

	_, err := svc.Add(ctx, 1, a.ID, 3)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 1, b.ID, 5)
	require.NoError(t, err)

	sum, err := svc.Totals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sum.Lines, 2)
	require.True(t, sum.Lines[0].Subtotal.Equal(decimal.RequireFromString("59.97")),
		"got %s", sum.Lines[0].Subtotal)
	require.True(t, sum.Lines[1].Subtotal.Equal(decimal.RequireFromString("0.05")),
		"got %s", sum.Lines[1].Subtotal)
	require.True(t, sum.Total.Equal(decimal.RequireFromString("60.02")),
		"got %s", sum.Total)
}

func TestTotalsEmptyCart(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	sum, err := svc.Totals(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, sum.Lines)
	require.True(t, sum.Total.IsZero())
}
