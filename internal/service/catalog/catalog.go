// Package catalog owns product records: seller CRUD, the admin moderation
// gate and the visibility rules buyers see the catalog through.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avdonin/marketplace/internal/logging"
	"github.com/avdonin/marketplace/internal/models"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrForbidden  = errors.New("not the product owner")
	ErrValidation = errors.New("validation")
)

// Viewer is the resolved identity a read runs under. The zero value is an
// anonymous visitor.
type Viewer struct {
	ID   uint
	Role string
}

// Indexer mirrors catalog writes into the search index.
type Indexer interface {
	IndexProduct(ctx context.Context, p models.Product) error
	RemoveProduct(ctx context.Context, id uint) error
}

// Cache holds rendered public product records.
type Cache interface {
	GetProduct(ctx context.Context, id uint) (*models.Product, bool)
	SetProduct(ctx context.Context, p models.Product) error
	InvalidateProduct(ctx context.Context, id uint) error
}

type Service struct {
	DB      *gorm.DB
	Indexer Indexer
	Cache   Cache
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

type ProductInput struct {
	Title       string
	Description string
	Thumbnail   string
	Price       decimal.Decimal
	Stock       uint
	TagIDs      []uint
	PhotoURLs   []string
}

func (in ProductInput) validate() error {
	if len(strings.TrimSpace(in.Title)) < 3 {
		return fmt.Errorf("title must be at least 3 characters: %w", ErrValidation)
	}
	if len(strings.TrimSpace(in.Description)) < 10 {
		return fmt.Errorf("description must be at least 10 characters: %w", ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}
	if len(in.PhotoURLs) > 10 {
		return fmt.Errorf("at most 10 photos: %w", ErrValidation)
	}
	return nil
}

// visible scopes a query to what the viewer may see: anonymous visitors and
// clients get moderated products only, sellers additionally their own,
// admins everything.
func visible(q *gorm.DB, v Viewer) *gorm.DB {
	switch v.Role {
	case models.RoleAdmin:
		return q
	case models.RoleSeller:
		return q.Where("checked = ? OR seller_id = ?", true, v.ID)
	default:
		return q.Where("checked = ?", true)
	}
}

type Filter struct {
	TagID    uint
	SellerID uint
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
	Offset   int
	Limit    int
}

func (s *Service) List(ctx context.Context, v Viewer, f Filter) (int64, []models.Product, error) {
	q := visible(s.DB.WithContext(ctx).Model(&models.Product{}), v)

	if f.SellerID != 0 {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.PriceMin != nil {
		q = q.Where("price >= ?", f.PriceMin)
	}
	if f.PriceMax != nil {
		q = q.Where("price <= ?", f.PriceMax)
	}
	if f.TagID != 0 {
		q = q.Joins("JOIN product_tags pt ON pt.product_id = products.id").
			Where("pt.tag_id = ?", f.TagID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Product
	err := q.Preload("Tags").
		Order("created_at DESC, id DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&items).Error
	return total, items, err
}

func (s *Service) Get(ctx context.Context, v Viewer, id uint) (models.Product, error) {
	cacheable := v.Role == "" || v.Role == models.RoleClient
	if cacheable && s.Cache != nil {
		if p, ok := s.Cache.GetProduct(ctx, id); ok {
			return *p, nil
		}
	}

	var product models.Product
	err := visible(s.DB.WithContext(ctx), v).
		Preload("Tags").Preload("Photos").
		First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return product, ErrNotFound
		}
		return product, err
	}

	if cacheable && s.Cache != nil && product.Checked {
		if err := s.Cache.SetProduct(ctx, product); err != nil {
			logging.FromContext(ctx).Warn("product cache set failed", "id", id, "error", err)
		}
	}
	return product, nil
}

// Create stores a seller's product. New products are always unmoderated; only
// the admin moderation path flips checked.
func (s *Service) Create(ctx context.Context, sellerID uint, in ProductInput) (models.Product, error) {
	var product models.Product
	if err := in.validate(); err != nil {
		return product, err
	}

	product = models.Product{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Thumbnail:   in.Thumbnail,
		Price:       in.Price,
		Stock:       in.Stock,
		SellerID:    sellerID,
		Checked:     false,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		if err := s.attachTags(tx, &product, in.TagIDs); err != nil {
			return err
		}
		return replacePhotos(tx, &product, in.PhotoURLs)
	})
	if err != nil {
		return models.Product{}, err
	}
	return product, nil
}

func (s *Service) attachTags(tx *gorm.DB, product *models.Product, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	var tags []models.Tag
	if err := tx.Find(&tags, tagIDs).Error; err != nil {
		return err
	}
	if err := tx.Model(product).Association("Tags").Replace(tags); err != nil {
		return err
	}
	product.Tags = tags
	return nil
}

func replacePhotos(tx *gorm.DB, product *models.Product, urls []string) error {
	if urls == nil {
		return nil
	}
	if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductPhoto{}).Error; err != nil {
		return err
	}
	photos := make([]models.ProductPhoto, 0, len(urls))
	for i, u := range urls {
		photos = append(photos, models.ProductPhoto{ProductID: product.ID, URL: u, Position: uint(i)})
	}
	if len(photos) == 0 {
		product.Photos = nil
		return nil
	}
	if err := tx.Create(&photos).Error; err != nil {
		return err
	}
	product.Photos = photos
	return nil
}

// Update edits an owned product. The checked flag is never touched here, so a
// moderated product stays moderated after a seller edit, as the original
// behaves.
func (s *Service) Update(ctx context.Context, sellerID, id uint, in ProductInput) (models.Product, error) {
	var product models.Product
	if err := in.validate(); err != nil {
		return product, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if product.SellerID != sellerID {
			return ErrForbidden
		}

		product.Title = strings.TrimSpace(in.Title)
		product.Description = strings.TrimSpace(in.Description)
		product.Thumbnail = in.Thumbnail
		product.Price = in.Price
		product.Stock = in.Stock
		if err := tx.Save(&product).Error; err != nil {
			return err
		}
		if err := s.attachTags(tx, &product, in.TagIDs); err != nil {
			return err
		}
		return replacePhotos(tx, &product, in.PhotoURLs)
	})
	if err != nil {
		return models.Product{}, err
	}

	s.afterWrite(ctx, product)
	return product, nil
}

// Delete removes an owned product; admins may delete any. Cart lines and
// photos go with it via cascade.
func (s *Service) Delete(ctx context.Context, actor Viewer, id uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if actor.Role != models.RoleAdmin && product.SellerID != actor.ID {
			return ErrForbidden
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductPhoto{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	if s.Cache != nil {
		if err := s.Cache.InvalidateProduct(ctx, id); err != nil {
			log.Warn("product cache invalidate failed", "id", id, "error", err)
		}
	}
	if s.Indexer != nil {
		if err := s.Indexer.RemoveProduct(ctx, id); err != nil {
			log.Warn("search index remove failed", "id", id, "error", err)
		}
	}
	return nil
}

// SetChecked is the moderation gate. Callers guard it with the admin role.
func (s *Service) SetChecked(ctx context.Context, id uint, checked bool) (models.Product, error) {
	var product models.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		product.Checked = checked
		return tx.Save(&product).Error
	})
	if err != nil {
		return models.Product{}, err
	}

	s.afterWrite(ctx, product)
	return product, nil
}

// afterWrite keeps the cache and search index in step with the row. Both are
// best effort: a broken sidecar must not fail the write.
func (s *Service) afterWrite(ctx context.Context, product models.Product) {
	log := logging.FromContext(ctx)
	if s.Cache != nil {
		if err := s.Cache.InvalidateProduct(ctx, product.ID); err != nil {
			log.Warn("product cache invalidate failed", "id", product.ID, "error", err)
		}
	}
	if s.Indexer == nil {
		return
	}
	var err error
	if product.Checked {
		err = s.Indexer.IndexProduct(ctx, product)
	} else {
		err = s.Indexer.RemoveProduct(ctx, product.ID)
	}
	if err != nil {
		log.Warn("search index sync failed", "id", product.ID, "error", err)
	}
}

// MyProducts lists a seller's own products, optionally filtered by moderation
// state ("checked" / "unchecked").
func (s *Service) MyProducts(ctx context.Context, sellerID uint, status string) ([]models.Product, error) {
	q := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID)
	switch status {
	case "checked":
		q = q.Where("checked = ?", true)
	case "unchecked":
		q = q.Where("checked = ?", false)
	}

	var items []models.Product
	err := q.Preload("Tags").Order("created_at DESC, id DESC").Find(&items).Error
	return items, err
}

// Similar returns up to five other moderated products sharing a tag.
func (s *Service) Similar(ctx context.Context, id uint) ([]models.Product, error) {
	var product models.Product
	if err := s.DB.WithContext(ctx).Preload("Tags").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(product.Tags) == 0 {
		return []models.Product{}, nil
	}

	tagIDs := make([]uint, 0, len(product.Tags))
	for _, t := range product.Tags {
		tagIDs = append(tagIDs, t.ID)
	}

	var items []models.Product
	err := s.DB.WithContext(ctx).
		Joins("JOIN product_tags pt ON pt.product_id = products.id").
		Where("pt.tag_id IN ?", tagIDs).
		Where("products.id <> ?", id).
		Where("checked = ?", true).
		Distinct().
		Limit(5).
		Find(&items).Error
	return items, err
}

func (s *Service) Tags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.DB.WithContext(ctx).Order("title ASC").Find(&tags).Error
	return tags, err
}

type SellerStats struct {
	Total      int64            `json:"total"`
	Checked    int64            `json:"checked"`
	Unchecked  int64            `json:"unchecked"`
	Recent     []models.Product `json:"recent"`
	LowStock   []models.Product `json:"low_stock"`
	OutOfStock []models.Product `json:"out_of_stock"`
}

const lowStockThreshold = 10

// Stats builds the seller dashboard numbers.
func (s *Service) Stats(ctx context.Context, sellerID uint) (SellerStats, error) {
	var st SellerStats
	own := func() *gorm.DB {
		return s.DB.WithContext(ctx).Model(&models.Product{}).Where("seller_id = ?", sellerID)
	}

	if err := own().Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := own().Where("checked = ?", true).Count(&st.Checked).Error; err != nil {
		return st, err
	}
	st.Unchecked = st.Total - st.Checked

	if err := own().Order("created_at DESC, id DESC").Limit(5).Find(&st.Recent).Error; err != nil {
		return st, err
	}
	if err := own().Where("stock > 0 AND stock <= ?", lowStockThreshold).
		Order("stock ASC").Limit(5).Find(&st.LowStock).Error; err != nil {
		return st, err
	}
	if err := own().Where("stock = 0").Limit(5).Find(&st.OutOfStock).Error; err != nil {
		return st, err
	}
	return st, nil
}
