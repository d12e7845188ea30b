// Package cart reconciles cart line quantities against live product stock.
// Every operation takes the resolved client id explicitly; nothing here reads
// session state.
package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avdonin/marketplace/internal/models"
)

var (
	// ErrProductUnavailable covers a missing, unmoderated or out-of-stock product.
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrStockExceeded      = errors.New("stock exceeded")
	ErrNotFound           = errors.New("cart item not found")
)

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// lockForUpdate takes a row lock on dialects that support it. The sqlite
// driver used in tests serializes writers anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// checkedProduct loads the product under lock and applies the visibility and
// availability gates shared by every cart write.
func checkedProduct(tx *gorm.DB, productID uint) (models.Product, error) {
	var product models.Product
	err := lockForUpdate(tx).First(&product, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return product, ErrProductUnavailable
		}
		return product, err
	}
	if !product.Checked || product.Stock == 0 {
		return product, ErrProductUnavailable
	}
	return product, nil
}

// Add upserts the single line for (clientID, productID). A second add
// accumulates quantity; the cumulative amount must not exceed current stock,
// otherwise the line is left untouched.
func (s *Service) Add(ctx context.Context, clientID, productID uint, quantity int) (models.CartItem, error) {
	var item models.CartItem
	if quantity <= 0 {
		return item, ErrInvalidQuantity
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := checkedProduct(tx, productID)
		if err != nil {
			return err
		}

		err = lockForUpdate(tx).
			Where("user_id = ? AND product_id = ?", clientID, productID).
			First(&item).Error
		switch {
		case err == nil:
			next := item.Quantity + uint(quantity)
			if next > product.Stock {
				return ErrStockExceeded
			}
			item.Quantity = next
			return tx.Save(&item).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if uint(quantity) > product.Stock {
				return ErrStockExceeded
			}
			item = models.CartItem{
				UserID:    clientID,
				ProductID: productID,
				Quantity:  uint(quantity),
			}
			return tx.Create(&item).Error
		default:
			return err
		}
	})
	if err != nil {
		return models.CartItem{}, err
	}
	return item, nil
}

// Update overwrites the line quantity. Zero or negative removes the line; the
// returned pointer is nil in that case.
func (s *Service) Update(ctx context.Context, clientID, itemID uint, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	removed := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).
			Where("id = ? AND user_id = ?", itemID, clientID).
			First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if quantity <= 0 {
			removed = true
			return tx.Delete(&item).Error
		}

		var product models.Product
		if err := lockForUpdate(tx).First(&product, item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductUnavailable
			}
			return err
		}
		if uint(quantity) > product.Stock {
			return ErrStockExceeded
		}

		item.Quantity = uint(quantity)
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}
	if removed {
		return nil, nil
	}
	return &item, nil
}

// Remove deletes the line if it belongs to the client.
func (s *Service) Remove(ctx context.Context, clientID, itemID uint) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, clientID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Items returns the client's lines with products preloaded, oldest first.
func (s *Service) Items(ctx context.Context, clientID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.DB.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", clientID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

type Line struct {
	Item     models.CartItem `json:"item"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Summary struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Totals derives per-line subtotals and the grand total. Nothing is stored;
// prices come from the product rows at read time.
func (s *Service) Totals(ctx context.Context, clientID uint) (Summary, error) {
	items, err := s.Items(ctx, clientID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Lines: make([]Line, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		subtotal := decimal.Zero
		if it.Product != nil {
			subtotal = it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		}
		sum.Lines = append(sum.Lines, Line{Item: it, Subtotal: subtotal})
		sum.Total = sum.Total.Add(subtotal)
	}
	return sum, nil
}
