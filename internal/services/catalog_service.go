package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/cache"
	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

const categoriesCacheKey = "catalog:categories"

func productCacheKey(id uuid.UUID) string { return "catalog:product:" + id.String() }

// CategoryInput creates or patches a category. Nil fields are left alone on update.
type CategoryInput struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

// ProductInput creates or patches a product.
type ProductInput struct {
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	CategoryID     *uuid.UUID      `json:"category_id"`
	Thumbnail      *string         `json:"thumbnail"`
	Specifications *models.SpecMap `json:"specifications"`
	IsActive       *bool           `json:"is_active"`
	Variants       []VariantInput  `json:"variants"`
}

// VariantInput creates or patches a variant.
type VariantInput struct {
	Color          *string         `json:"color"`
	Storage        *string         `json:"storage"`
	Price          *int64          `json:"price"`
	Stock          *int            `json:"stock"`
	SKU            *string         `json:"sku"`
	Specifications *models.SpecMap `json:"specifications"`
	IsActive       *bool           `json:"is_active"`
}

// ImageInput creates or patches a product image.
type ImageInput struct {
	URL          *string `json:"url"`
	AltText      *string `json:"alt_text"`
	DisplayOrder *int    `json:"display_order"`
	IsPrimary    *bool   `json:"is_primary"`
}

// ProductQuery filters product listings.
type ProductQuery struct {
	CategoryID *uuid.UUID
	Search     string
	Active     *bool
	MinPrice   *int64
	MaxPrice   *int64
	Sort       string
	Page       utils.Pagination
}

var productSorts = map[string]string{
	"":       "created_at desc",
	"newest": "created_at desc",
	"oldest": "created_at asc",
	"name":   "name asc",
	"rating": "average_rating desc, review_count desc",
}

// CatalogService is the data access layer for categories, products,
// variants and images. Reads of the category list and product detail go
// through Cache.
type CatalogService struct {
	DB       *gorm.DB
	Cache    cache.Cache
	CacheTTL time.Duration
}

// NewCatalogService constructs a CatalogService. A nil cache disables caching.
func NewCatalogService(db *gorm.DB, c cache.Cache, ttl time.Duration) *CatalogService {
	if c == nil {
		c = cache.Noop{}
	}
	return &CatalogService{DB: db, Cache: c, CacheTTL: ttl}
}

// ProductInvalidator drops cached product detail after writes made outside
// the catalog, such as stock movements and rating changes.
type ProductInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...uuid.UUID)
}

// InvalidateProducts implements ProductInvalidator.
func (s *CatalogService) InvalidateProducts(ctx context.Context, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	s.invalidate(ctx, keys...)
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	if err := s.Cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// ---- categories ----

// AllCategories returns every category ordered by name.
func (s *CatalogService) AllCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if ok, err := s.Cache.GetJSON(ctx, categoriesCacheKey, &categories); err == nil && ok {
		return categories, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("category cache read failed")
	}

	if err := s.DB.WithContext(ctx).Order("name asc").Find(&categories).Error; err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, categoriesCacheKey, categories, s.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("category cache write failed")
	}
	return categories, nil
}

// ListCategories returns a page of categories, optionally filtered by name.
func (s *CatalogService) ListCategories(ctx context.Context, search string, pg utils.Pagination) (utils.Page[models.Category], error) {
	query := s.DB.WithContext(ctx).Model(&models.Category{})
	if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+search+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[models.Category]{}, err
	}
	var categories []models.Category
	if err := query.Order("name asc").Limit(pg.Limit).Offset(pg.Offset).Find(&categories).Error; err != nil {
		return utils.Page[models.Category]{}, err
	}
	return utils.NewPage(categories, total, pg), nil
}

// GetCategory loads a category by ID.
func (s *CatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := s.DB.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "category")
	}
	return &category, nil
}

// CreateCategory persists a new category. The slug defaults to the name.
func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	var category models.Category
	if err := applyCategory(&category, in); err != nil {
		return nil, err
	}
	if category.Name == "" {
		return nil, invalid("name is required")
	}
	if err := s.DB.WithContext(ctx).Create(&category).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: category name or slug already exists", ErrConflict)
		}
		return nil, err
	}
	s.invalidate(ctx, categoriesCacheKey)
	return &category, nil
}

// UpdateCategory patches a category.
func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*models.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyCategory(category, in); err != nil {
		return nil, err
	}
	if category.Name == "" {
		return nil, invalid("name is required")
	}
	if err := s.DB.WithContext(ctx).Save(category).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: category name or slug already exists", ErrConflict)
		}
		return nil, err
	}
	s.invalidate(ctx, categoriesCacheKey)
	return category, nil
}

// DeleteCategory removes an empty category.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	var products int64
	if err := db.Model(&models.Product{}).Where("category_id = ?", id).Count(&products).Error; err != nil {
		return err
	}
	if products > 0 {
		return fmt.Errorf("%w: category still has %d products", ErrConflict, products)
	}
	if err := db.Delete(&models.Category{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.invalidate(ctx, categoriesCacheKey)
	return nil
}

func applyCategory(c *models.Category, in CategoryInput) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Image != nil {
		c.Image = strings.TrimSpace(*in.Image)
	}
	switch {
	case in.Slug != nil && strings.TrimSpace(*in.Slug) != "":
		c.Slug = Slugify(*in.Slug)
	case c.Slug == "":
		c.Slug = Slugify(c.Name)
	}
	if c.Name != "" && c.Slug == "" {
		return invalid("slug must contain letters or digits")
	}
	return nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases s, strips diacritics and joins words with dashes.
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "d").Replace(folded)

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ---- products ----

// ListProducts returns a page of products with their category.
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (utils.Page[models.Product], error) {
	order, ok := productSorts[q.Sort]
	if !ok {
		return utils.Page[models.Product]{}, invalid("unknown sort %q", q.Sort)
	}

	db := s.DB.WithContext(ctx)
	query := db.Model(&models.Product{})
	if q.CategoryID != nil {
		query = query.Where("category_id = ?", *q.CategoryID)
	}
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+search+"%")
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		variants := db.Model(&models.ProductVariant{}).Select("product_id").Where("is_active = ?", true)
		if q.MinPrice != nil {
			variants = variants.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			variants = variants.Where("price <= ?", *q.MaxPrice)
		}
		query = query.Where("id IN (?)", variants)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[models.Product]{}, err
	}
	var products []models.Product
	if err := query.Preload("Category").
		Preload("Variants", func(tx *gorm.DB) *gorm.DB { return tx.Order("price asc") }).
		Order(order).Limit(q.Page.Limit).Offset(q.Page.Offset).
		Find(&products).Error; err != nil {
		return utils.Page[models.Product]{}, err
	}
	return utils.NewPage(products, total, q.Page), nil
}

// GetProduct loads a product with category, variants and images. Inactive
// products are only returned when includeInactive is set.
func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID, includeInactive bool) (*models.Product, error) {
	var product models.Product
	ok, err := s.Cache.GetJSON(ctx, productCacheKey(id), &product)
	if err != nil {
		log.Warn().Err(err).Str("product_id", id.String()).Msg("product cache read failed")
	}
	if !ok {
		if err := s.DB.WithContext(ctx).
			Preload("Category").
			Preload("Variants", func(tx *gorm.DB) *gorm.DB { return tx.Order("price asc") }).
			Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("display_order asc") }).
			First(&product, "id = ?", id).Error; err != nil {
			return nil, lookupErr(err, "product")
		}
		if err := s.Cache.SetJSON(ctx, productCacheKey(id), product, s.CacheTTL); err != nil {
			log.Warn().Err(err).Str("product_id", id.String()).Msg("product cache write failed")
		}
	}
	if !product.IsActive && !includeInactive {
		return nil, notFound("product")
	}
	return &product, nil
}

// CreateProduct persists a product and any inline variants. New products
// are active unless is_active is false.
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	product := models.Product{IsActive: true}
	applyProduct(&product, in)
	if product.Name == "" {
		return nil, invalid("name is required")
	}
	if product.CategoryID == uuid.Nil {
		return nil, invalid("category_id is required")
	}
	if _, err := s.GetCategory(ctx, product.CategoryID); err != nil {
		return nil, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Variants", "Images", "Category").Create(&product).Error; err != nil {
			return err
		}
		for _, vin := range in.Variants {
			variant, err := s.createVariant(tx, product.ID, vin)
			if err != nil {
				return err
			}
			product.Variants = append(product.Variants, *variant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct patches product fields. Inline variants are ignored.
func (s *CatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*models.Product, error) {
	db := s.DB.WithContext(ctx)
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "product")
	}
	applyProduct(&product, in)
	if product.Name == "" {
		return nil, invalid("name is required")
	}
	if in.CategoryID != nil {
		if _, err := s.GetCategory(ctx, product.CategoryID); err != nil {
			return nil, err
		}
	}
	if err := db.Omit("Variants", "Images", "Category").Save(&product).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, productCacheKey(id))
	return s.GetProduct(ctx, id, true)
}

// DeleteProduct removes a product with its variants and images. Order
// history keeps its snapshots; carts drop the lines on next read.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("product")
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductVariant{}).Error; err != nil {
			return err
		}
		return tx.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, productCacheKey(id))
	return nil
}

func applyProduct(p *models.Product, in ProductInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.CategoryID != nil {
		p.CategoryID = *in.CategoryID
	}
	if in.Thumbnail != nil {
		p.Thumbnail = strings.TrimSpace(*in.Thumbnail)
	}
	if in.Specifications != nil {
		p.Specifications = *in.Specifications
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// ---- variants ----

// ListVariants returns the variants of a product, cheapest first.
func (s *CatalogService) ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error) {
	db := s.DB.WithContext(ctx)
	if err := s.ensureProduct(db, productID); err != nil {
		return nil, err
	}
	var variants []models.ProductVariant
	if err := db.Where("product_id = ?", productID).Order("price asc").Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

// CreateVariant adds a variant to a product.
func (s *CatalogService) CreateVariant(ctx context.Context, productID uuid.UUID, in VariantInput) (*models.ProductVariant, error) {
	db := s.DB.WithContext(ctx)
	if err := s.ensureProduct(db, productID); err != nil {
		return nil, err
	}
	variant, err := s.createVariant(db, productID, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productCacheKey(productID))
	return variant, nil
}

func (s *CatalogService) createVariant(db *gorm.DB, productID uuid.UUID, in VariantInput) (*models.ProductVariant, error) {
	variant := models.ProductVariant{ProductID: productID, IsActive: true}
	if err := applyVariant(&variant, in); err != nil {
		return nil, err
	}
	if err := checkVariantConfig(db, &variant); err != nil {
		return nil, err
	}
	if err := db.Omit("Product").Create(&variant).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: sku already in use", ErrConflict)
		}
		return nil, err
	}
	return &variant, nil
}

// UpdateVariant patches a variant.
func (s *CatalogService) UpdateVariant(ctx context.Context, id uuid.UUID, in VariantInput) (*models.ProductVariant, error) {
	db := s.DB.WithContext(ctx)
	var variant models.ProductVariant
	if err := db.First(&variant, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "variant")
	}
	if err := applyVariant(&variant, in); err != nil {
		return nil, err
	}
	if err := checkVariantConfig(db, &variant); err != nil {
		return nil, err
	}
	if err := db.Omit("Product").Save(&variant).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: sku already in use", ErrConflict)
		}
		return nil, err
	}
	s.invalidate(ctx, productCacheKey(variant.ProductID))
	return &variant, nil
}

// DeleteVariant removes a variant.
func (s *CatalogService) DeleteVariant(ctx context.Context, id uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	var variant models.ProductVariant
	if err := db.First(&variant, "id = ?", id).Error; err != nil {
		return lookupErr(err, "variant")
	}
	if err := db.Delete(&models.ProductVariant{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.invalidate(ctx, productCacheKey(variant.ProductID))
	return nil
}

func applyVariant(v *models.ProductVariant, in VariantInput) error {
	if in.Color != nil {
		v.Color = strings.TrimSpace(*in.Color)
	}
	if in.Storage != nil {
		v.Storage = strings.TrimSpace(*in.Storage)
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return invalid("price must not be negative")
		}
		v.Price = *in.Price
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			return invalid("stock must not be negative")
		}
		v.Stock = *in.Stock
	}
	if in.SKU != nil {
		if sku := strings.TrimSpace(*in.SKU); sku != "" {
			v.SKU = &sku
		} else {
			v.SKU = nil
		}
	}
	if in.Specifications != nil {
		v.Specifications = *in.Specifications
	}
	if in.IsActive != nil {
		v.IsActive = *in.IsActive
	}
	return nil
}

// checkVariantConfig enforces one variant per (product, color, storage)
// when both attributes are set.
func checkVariantConfig(db *gorm.DB, v *models.ProductVariant) error {
	if v.Color == "" || v.Storage == "" {
		return nil
	}
	query := db.Model(&models.ProductVariant{}).
		Where("product_id = ? AND color = ? AND storage = ?", v.ProductID, v.Color, v.Storage)
	if v.ID != uuid.Nil {
		query = query.Where("id <> ?", v.ID)
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: variant %s / %s already exists", ErrConflict, v.Color, v.Storage)
	}
	return nil
}

func (s *CatalogService) ensureProduct(db *gorm.DB, id uuid.UUID) error {
	var n int64
	if err := db.Model(&models.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound("product")
	}
	return nil
}

// ---- images ----

// ListImages returns a product's images in display order.
func (s *CatalogService) ListImages(ctx context.Context, productID uuid.UUID) ([]models.ProductImage, error) {
	db := s.DB.WithContext(ctx)
	if err := s.ensureProduct(db, productID); err != nil {
		return nil, err
	}
	var images []models.ProductImage
	if err := db.Where("product_id = ?", productID).Order("display_order asc").Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// CreateImage attaches an image URL to a product.
func (s *CatalogService) CreateImage(ctx context.Context, productID uuid.UUID, in ImageInput) (*models.ProductImage, error) {
	image := models.ProductImage{ProductID: productID}
	applyImage(&image, in)
	if image.URL == "" {
		return nil, invalid("url is required")
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureProduct(tx, productID); err != nil {
			return err
		}
		if image.IsPrimary {
			if err := clearPrimary(tx, productID); err != nil {
				return err
			}
		}
		return tx.Create(&image).Error
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productCacheKey(productID))
	return &image, nil
}

// UpdateImage patches an image.
func (s *CatalogService) UpdateImage(ctx context.Context, id uuid.UUID, in ImageInput) (*models.ProductImage, error) {
	var image models.ProductImage
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&image, "id = ?", id).Error; err != nil {
			return lookupErr(err, "image")
		}
		applyImage(&image, in)
		if image.URL == "" {
			return invalid("url is required")
		}
		if in.IsPrimary != nil && *in.IsPrimary {
			if err := clearPrimary(tx, image.ProductID); err != nil {
				return err
			}
		}
		return tx.Save(&image).Error
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productCacheKey(image.ProductID))
	return &image, nil
}

// DeleteImage removes an image.
func (s *CatalogService) DeleteImage(ctx context.Context, id uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	var image models.ProductImage
	if err := db.First(&image, "id = ?", id).Error; err != nil {
		return lookupErr(err, "image")
	}
	if err := db.Delete(&models.ProductImage{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.invalidate(ctx, productCacheKey(image.ProductID))
	return nil
}

func applyImage(img *models.ProductImage, in ImageInput) {
	if in.URL != nil {
		img.URL = strings.TrimSpace(*in.URL)
	}
	if in.AltText != nil {
		img.AltText = strings.TrimSpace(*in.AltText)
	}
	if in.DisplayOrder != nil {
		img.DisplayOrder = *in.DisplayOrder
	}
	if in.IsPrimary != nil {
		img.IsPrimary = *in.IsPrimary
	}
}

func clearPrimary(tx *gorm.DB, productID uuid.UUID) error {
	return tx.Model(&models.ProductImage{}).
		Where("product_id = ? AND is_primary = ?", productID, true).
		Update("is_primary", false).Error
}
