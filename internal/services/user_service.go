package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// ProfileInput patches the caller's profile.
type ProfileInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// UserSummary is a user row with purchase aggregates for the admin list.
type UserSummary struct {
	models.User
	OrderCount int64 `json:"order_count"`
	TotalSpent int64 `json:"total_spent"`
}

// UserQuery filters the admin user list.
type UserQuery struct {
	Search string
	Role   string
	Page   utils.Pagination
}

// Stats is the admin dashboard summary.
type Stats struct {
	Users          int64            `json:"users"`
	Products       int64            `json:"products"`
	Orders         int64            `json:"orders"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	Revenue        int64            `json:"revenue"`
	AverageRating  float64          `json:"average_rating"`
}

// UserService handles accounts, authentication and admin reporting.
type UserService struct {
	DB        *gorm.DB
	JWTSecret string
	TokenTTL  time.Duration
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, secret string, ttl time.Duration) *UserService {
	return &UserService{DB: db, JWTSecret: secret, TokenTTL: ttl}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("invalid email address")
	}
	return email, nil
}

func hashPassword(pw string) (string, error) {
	hash, err := utils.HashPassword(pw)
	if errors.Is(err, utils.ErrWeakPassword) {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return hash, err
}

// Register creates a user account and issues a token.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	db := s.DB.WithContext(ctx)
	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         models.RoleUser,
	}
	if err := db.Omit("Orders").Create(&user).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return s.issue(&user)
}

// Login checks credentials and issues a token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return s.issue(&user)
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := utils.GenerateToken(s.JWTSecret, user.ID, user.Role, s.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetProfile loads a user.
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &user, nil
}

// UpdateProfile patches profile fields. Email and role are not editable here.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*models.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	set := func(col string, v *string, dst *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			updates[col] = *dst
		}
	}
	set("first_name", in.FirstName, &user.FirstName)
	set("last_name", in.LastName, &user.LastName)
	set("phone", in.Phone, &user.Phone)
	set("address", in.Address, &user.Address)
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(user.PasswordHash, current) {
		return ErrBadCredentials
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash).Error
}

// ListUsers returns users with their order count and spend on non-canceled orders.
func (s *UserService) ListUsers(ctx context.Context, q UserQuery) (utils.Page[UserSummary], error) {
	db := s.DB.WithContext(ctx)
	query := db.Model(&models.User{})
	if q.Role != "" {
		if q.Role != models.RoleUser && q.Role != models.RoleAdmin {
			return utils.Page[UserSummary]{}, invalid("unknown role %q", q.Role)
		}
		query = query.Where("role = ?", q.Role)
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR phone LIKE ?",
			like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[UserSummary]{}, err
	}
	var users []models.User
	if err := query.Order("created_at desc").Limit(q.Page.Limit).Offset(q.Page.Offset).Find(&users).Error; err != nil {
		return utils.Page[UserSummary]{}, err
	}

	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	var aggs []struct {
		UserID     uuid.UUID
		OrderCount int64
		TotalSpent int64
	}
	if len(ids) > 0 {
		if err := db.Model(&models.Order{}).
			Select("user_id, COUNT(*) AS order_count, COALESCE(SUM(CASE WHEN status <> ? THEN total_price ELSE 0 END), 0) AS total_spent",
				models.OrderStatusCanceled).
			Where("user_id IN ?", ids).
			Group("user_id").
			Scan(&aggs).Error; err != nil {
			return utils.Page[UserSummary]{}, err
		}
	}
	byUser := make(map[uuid.UUID]int, len(aggs))
	for i, a := range aggs {
		byUser[a.UserID] = i
	}

	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		sum := UserSummary{User: u}
		if i, ok := byUser[u.ID]; ok {
			sum.OrderCount = aggs[i].OrderCount
			sum.TotalSpent = aggs[i].TotalSpent
		}
		out = append(out, sum)
	}
	return utils.NewPage(out, total, q.Page), nil
}

// GetUser returns a user with their orders.
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).
		Preload("Orders", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at desc") }).
		First(&user, "id = ?", userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &user, nil
}

// UpdateRole changes a user's role. Admins cannot demote themselves.
func (s *UserService) UpdateRole(ctx context.Context, adminID, userID uuid.UUID, role string) (*models.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, invalid("unknown role %q", role)
	}
	if adminID == userID && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", ErrConflict)
	}
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role", role).Error; err != nil {
		return nil, err
	}
	user.Role = role
	log.Info().Str("user_id", userID.String()).Str("role", role).Str("by", adminID.String()).Msg("user role changed")
	return user, nil
}

// DeleteUser removes an account and its cart. Orders, reviews and
// transcripts stay for reporting.
func (s *UserService) DeleteUser(ctx context.Context, adminID, userID uuid.UUID) error {
	if adminID == userID {
		return fmt.Errorf("%w: admins cannot delete themselves", ErrConflict)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.User{}, "id = ?", userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("user")
		}
		if err := tx.Where("cart_id IN (?)", tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)).
			Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.Cart{}).Error
	})
}

// PromoteAdmin grants the admin role by email. Used to bootstrap the first admin.
func (s *UserService) PromoteAdmin(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	db := s.DB.WithContext(ctx)
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("role", models.RoleAdmin).Error; err != nil {
		return nil, err
	}
	user.Role = models.RoleAdmin
	return &user, nil
}

// Stats aggregates the admin dashboard numbers.
func (s *UserService) Stats(ctx context.Context) (*Stats, error) {
	db := s.DB.WithContext(ctx)
	st := &Stats{OrdersByStatus: map[string]int64{}}
	for status := range orderStatuses {
		st.OrdersByStatus[status] = 0
	}

	if err := db.Model(&models.User{}).Count(&st.Users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).Count(&st.Products).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.OrdersByStatus[r.Status] = r.Count
		st.Orders += r.Count
	}

	if err := db.Model(&models.Order{}).
		Select("COALESCE(SUM(total_price), 0)").
		Where("status <> ?", models.OrderStatusCanceled).
		Scan(&st.Revenue).Error; err != nil {
		return nil, err
	}

	var avg float64
	if err := db.Model(&models.Product{}).
		Select("COALESCE(AVG(average_rating), 0)").
		Where("review_count > ?", 0).
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	st.AverageRating = roundRating(avg)
	return st, nil
}
