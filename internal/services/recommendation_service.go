package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/metrics"
	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

const (
	minStoryLength       = 10
	defaultMaxCandidates = 40
)

// ChatStart opens the recommendation conversation.
type ChatStart struct {
	Greeting   string            `json:"greeting"`
	Categories []models.Category `json:"categories"`
}

// PriceRangePrompt asks the customer to choose a budget.
type PriceRangePrompt struct {
	Category models.Category `json:"category"`
	Prompt   string          `json:"prompt"`
	Ranges   []PriceRange    `json:"price_ranges"`
}

// StoryPrompt asks the customer to describe their needs.
type StoryPrompt struct {
	Category   models.Category `json:"category"`
	PriceRange PriceRange      `json:"price_range"`
	Prompt     string          `json:"prompt"`
}

// Recommendation is one ranked product with its matching variant.
// Variant fields are empty when no variant currently fits the budget.
type Recommendation struct {
	Rank          int        `json:"rank"`
	Reason        string     `json:"reason"`
	ProductID     uuid.UUID  `json:"product_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Thumbnail     string     `json:"thumbnail"`
	AverageRating float64    `json:"average_rating"`
	VariantID     *uuid.UUID `json:"variant_id"`
	Price         *int64     `json:"price"`
	Color         string     `json:"color"`
	Storage       string     `json:"storage"`
	Stock         int        `json:"stock"`
}

// RecommendationResult is a persisted transcript with its ranked picks.
type RecommendationResult struct {
	MessageID       uuid.UUID        `json:"message_id"`
	Category        *models.Category `json:"category,omitempty"`
	PriceMin        int64            `json:"price_min"`
	PriceMax        *int64           `json:"price_max"`
	Description     string           `json:"description"`
	TokensUsed      int              `json:"tokens_used"`
	CreatedAt       time.Time        `json:"created_at"`
	Recommendations []Recommendation `json:"recommendations"`
}

// RecommendationService drives the guided recommendation chat. Each stage
// is stateless; only the final stage writes a transcript.
type RecommendationService struct {
	DB            *gorm.DB
	Ranker        Ranker
	MaxCandidates int
	tracer        trace.Tracer
}

// NewRecommendationService constructs a RecommendationService. A nil ranker
// makes every recommendation request fail with ErrAIFailure.
func NewRecommendationService(db *gorm.DB, ranker Ranker, maxCandidates int) *RecommendationService {
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	return &RecommendationService{
		DB:            db,
		Ranker:        ranker,
		MaxCandidates: maxCandidates,
		tracer:        otel.Tracer("services/RecommendationService"),
	}
}

// StartChat lists the categories and greets the customer.
func (s *RecommendationService) StartChat(ctx context.Context) (*ChatStart, error) {
	var categories []models.Category
	if err := s.DB.WithContext(ctx).Order("name asc").Find(&categories).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}

	greeting := "Hi! I can help you find the right device. Which kind of product are you looking for?"
	if len(names) > 0 {
		greeting = fmt.Sprintf("Hi! I can help you find the right device. We carry %s. Which one are you interested in?",
			strings.Join(names, ", "))
	}
	return &ChatStart{Greeting: greeting, Categories: categories}, nil
}

// GetPriceRanges returns the budget ladder for a category.
func (s *RecommendationService) GetPriceRanges(ctx context.Context, categoryID uuid.UUID) (*PriceRangePrompt, error) {
	category, err := s.category(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return &PriceRangePrompt{
		Category: *category,
		Prompt:   fmt.Sprintf("What is your budget for %s?", category.Name),
		Ranges:   PriceRanges(),
	}, nil
}

// GetStoryRequest validates the category and band and asks for the story.
func (s *RecommendationService) GetStoryRequest(ctx context.Context, categoryID uuid.UUID, index int) (*StoryPrompt, error) {
	band, err := PriceRangeAt(index)
	if err != nil {
		return nil, err
	}
	category, err := s.category(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return &StoryPrompt{
		Category:   *category,
		PriceRange: band,
		Prompt: fmt.Sprintf("Tell us how you will use your new %s in the %s range: what matters most, which apps you use, any brand preferences.",
			category.Name, band.Label),
	}, nil
}

func (s *RecommendationService) category(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := s.DB.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "category")
	}
	return &category, nil
}

type candidate struct {
	product models.Product
	variant models.ProductVariant
}

// candidates returns active products of the category paired with their
// cheapest active in-stock variant inside band, cheapest first.
func (s *RecommendationService) candidates(ctx context.Context, categoryID uuid.UUID, band PriceRange) ([]candidate, error) {
	var products []models.Product
	err := s.DB.WithContext(ctx).
		Preload("Variants", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ? AND stock > ?", true, 0).Order("price asc")
		}).
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	out := make([]candidate, 0, len(products))
	for _, p := range products {
		if v, ok := cheapestInBand(p.Variants, band); ok {
			out = append(out, candidate{product: p, variant: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].variant.Price < out[j].variant.Price })
	if len(out) > s.MaxCandidates {
		out = out[:s.MaxCandidates]
	}
	return out, nil
}

// cheapestInBand expects variants sorted by price ascending.
func cheapestInBand(variants []models.ProductVariant, band PriceRange) (models.ProductVariant, bool) {
	for _, v := range variants {
		if v.Available() && band.Contains(v.Price) {
			return v, true
		}
	}
	return models.ProductVariant{}, false
}

// GetRecommendations ranks the category's in-budget products against the
// customer's story and stores the transcript.
func (s *RecommendationService) GetRecommendations(ctx context.Context, userID, categoryID uuid.UUID, index int, story string) (result *RecommendationResult, err error) {
	ctx, span := s.tracer.Start(ctx, "RecommendationService.GetRecommendations",
		trace.WithAttributes(attribute.String("category.id", categoryID.String()), attribute.Int("price_range", index)))
	outcome := "error"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.Recommendations.WithLabelValues(outcome).Inc()
		span.End()
	}()

	story = strings.TrimSpace(story)
	if utf8.RuneCountInString(story) < minStoryLength {
		outcome = "invalid"
		return nil, ErrStoryTooShort
	}
	band, err := PriceRangeAt(index)
	if err != nil {
		outcome = "invalid"
		return nil, err
	}
	category, err := s.category(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	cands, err := s.candidates(ctx, categoryID, band)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	if len(cands) == 0 {
		outcome = "no_candidates"
		return nil, ErrNoCandidates
	}

	if s.Ranker == nil {
		outcome = "ai_failure"
		return nil, fmt.Errorf("%w: ranking model is not configured", ErrAIFailure)
	}
	req := RankRequest{Story: story, Category: category.Name, Candidates: make([]Candidate, 0, len(cands))}
	byID := make(map[uuid.UUID]candidate, len(cands))
	for _, c := range cands {
		byID[c.product.ID] = c
		req.Candidates = append(req.Candidates, Candidate{
			ID:          c.product.ID,
			Name:        c.product.Name,
			Description: c.product.Description,
			Price:       c.variant.Price,
			Specs:       mergeSpecs(c.product.Specifications, c.variant.Specifications),
			Category:    category.Name,
		})
	}

	started := time.Now()
	ranked, err := s.Ranker.Rank(ctx, req)
	metrics.RecommendationLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		outcome = "ai_failure"
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("ranking model call failed")
		return nil, fmt.Errorf("%w: ranking failed", ErrAIFailure)
	}
	metrics.AITokens.Add(float64(ranked.TokensUsed))

	picks := acceptPicks(ranked.Picks, byID)
	span.SetAttributes(attribute.Int("picks", len(picks)), attribute.Int("tokens", ranked.TokensUsed))

	msg := models.AIMessage{
		UserID:      userID,
		CategoryID:  category.ID,
		PriceMin:    band.Min,
		PriceMax:    band.Max,
		Description: story,
		TokensUsed:  ranked.TokensUsed,
	}
	recs := make([]models.RecommendedProduct, 0, len(picks))
	if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Category", "Recommendations").Create(&msg).Error; err != nil {
			return err
		}
		for _, p := range picks {
			rec := models.RecommendedProduct{AIMessageID: msg.ID, ProductID: p.ProductID, Rank: p.Rank, Reason: p.Reason}
			if err := tx.Omit("Product").Create(&rec).Error; err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("save recommendation: %w", err)
	}

	result = &RecommendationResult{
		MessageID:       msg.ID,
		Category:        category,
		PriceMin:        msg.PriceMin,
		PriceMax:        msg.PriceMax,
		Description:     msg.Description,
		TokensUsed:      msg.TokensUsed,
		CreatedAt:       msg.CreatedAt,
		Recommendations: make([]Recommendation, 0, len(recs)),
	}
	for _, rec := range recs {
		c := byID[rec.ProductID]
		result.Recommendations = append(result.Recommendations, enrich(rec, &c.product, &c.variant))
	}

	outcome = "ok"
	log.Info().Str("user_id", userID.String()).Str("message_id", msg.ID.String()).
		Int("candidates", len(cands)).Int("picks", len(recs)).Int("tokens", ranked.TokensUsed).
		Msg("recommendation created")
	return result, nil
}

// acceptPicks keeps picks that name a candidate with a rank in 1..3,
// dropping repeated ranks and repeated products. The result is rank-sorted.
func acceptPicks(picks []RankedPick, known map[uuid.UUID]candidate) []RankedPick {
	sorted := make([]RankedPick, len(picks))
	copy(sorted, picks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	seenRank := map[int]bool{}
	seenProduct := map[uuid.UUID]bool{}
	out := make([]RankedPick, 0, maxPicks)
	for _, p := range sorted {
		if p.Rank < 1 || p.Rank > maxPicks || seenRank[p.Rank] || seenProduct[p.ProductID] {
			continue
		}
		if _, ok := known[p.ProductID]; !ok {
			continue
		}
		seenRank[p.Rank] = true
		seenProduct[p.ProductID] = true
		out = append(out, p)
	}
	return out
}

func mergeSpecs(product, variant models.SpecMap) map[string]string {
	if len(product) == 0 && len(variant) == 0 {
		return nil
	}
	out := make(map[string]string, len(product)+len(variant))
	for k, v := range product {
		out[k] = v
	}
	for k, v := range variant {
		out[k] = v
	}
	return out
}

func enrich(rec models.RecommendedProduct, product *models.Product, variant *models.ProductVariant) Recommendation {
	out := Recommendation{Rank: rec.Rank, Reason: rec.Reason, ProductID: rec.ProductID}
	if product != nil {
		out.Name = product.Name
		out.Description = product.Description
		out.Thumbnail = product.Thumbnail
		out.AverageRating = product.AverageRating
	}
	if variant != nil {
		id, price := variant.ID, variant.Price
		out.VariantID = &id
		out.Price = &price
		out.Color = variant.Color
		out.Storage = variant.Storage
		out.Stock = variant.Stock
	}
	return out
}

// GetChatHistory lists the user's transcripts, newest first, with their
// category and recommended products.
func (s *RecommendationService) GetChatHistory(ctx context.Context, userID uuid.UUID, pg utils.Pagination) (utils.Page[models.AIMessage], error) {
	query := s.DB.WithContext(ctx).Model(&models.AIMessage{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[models.AIMessage]{}, err
	}
	var messages []models.AIMessage
	if err := query.Preload("Category").
		Preload("Recommendations", func(tx *gorm.DB) *gorm.DB { return tx.Order("rank asc") }).
		Preload("Recommendations.Product").
		Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).
		Find(&messages).Error; err != nil {
		return utils.Page[models.AIMessage]{}, err
	}
	return utils.NewPage(messages, total, pg), nil
}

// GetAIMessageDetail returns one of the user's transcripts with each pick
// re-joined to its current cheapest in-budget variant.
func (s *RecommendationService) GetAIMessageDetail(ctx context.Context, userID, messageID uuid.UUID) (*RecommendationResult, error) {
	db := s.DB.WithContext(ctx)
	var msg models.AIMessage
	if err := db.Preload("Category").
		Preload("Recommendations", func(tx *gorm.DB) *gorm.DB { return tx.Order("rank asc") }).
		First(&msg, "id = ?", messageID).Error; err != nil {
		return nil, lookupErr(err, "recommendation")
	}
	if msg.UserID != userID {
		return nil, notFound("recommendation")
	}

	band := PriceRange{Min: msg.PriceMin, Max: msg.PriceMax}
	result := &RecommendationResult{
		MessageID:       msg.ID,
		Category:        msg.Category,
		PriceMin:        msg.PriceMin,
		PriceMax:        msg.PriceMax,
		Description:     msg.Description,
		TokensUsed:      msg.TokensUsed,
		CreatedAt:       msg.CreatedAt,
		Recommendations: make([]Recommendation, 0, len(msg.Recommendations)),
	}
	for _, rec := range msg.Recommendations {
		var product models.Product
		err := db.Preload("Variants", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ? AND stock > ?", true, 0).Order("price asc")
		}).First(&product, "id = ?", rec.ProductID).Error
		switch {
		case isNotFound(err):
			result.Recommendations = append(result.Recommendations, enrich(rec, nil, nil))
			continue
		case err != nil:
			return nil, err
		}
		if v, ok := cheapestInBand(product.Variants, band); ok {
			result.Recommendations = append(result.Recommendations, enrich(rec, &product, &v))
		} else {
			result.Recommendations = append(result.Recommendations, enrich(rec, &product, nil))
		}
	}
	return result, nil
}
