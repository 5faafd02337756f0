package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/config"
	"github.com/example/phonestore/internal/handlers"
	"github.com/example/phonestore/internal/middleware"
	"github.com/example/phonestore/internal/services"
)

// Services are the domain services the HTTP layer exposes.
type Services struct {
	DB              *gorm.DB
	Users           *services.UserService
	Catalog         *services.CatalogService
	Carts           *services.CartService
	Orders          *services.OrderService
	Reviews         *services.ReviewService
	Recommendations *services.RecommendationService
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, svc Services) {
	authHandler := handlers.NewAuthHandler(svc.Users)
	profileHandler := handlers.NewProfileHandler(svc.Users)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog)
	productHandler := handlers.NewProductHandler(svc.Catalog)
	cartHandler := handlers.NewCartHandler(svc.Carts)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	reviewHandler := handlers.NewReviewHandler(svc.Reviews)
	chatbotHandler := handlers.NewChatbotHandler(svc.Recommendations)
	adminHandler := handlers.NewAdminHandler(svc.Users, svc.Orders)

	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	admin := middleware.RequireAdmin()
	recommendLimit := middleware.NewRateLimiter(cfg.RecommendRPS, cfg.RecommendBurst, middleware.KeyByUserOrIP)

	app.Get("/health", health(svc.DB))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	profile := api.Group("/profile", auth)
	profile.Get("/", profileHandler.GetProfile)
	profile.Put("/", profileHandler.UpdateProfile)
	profile.Put("/password", profileHandler.ChangePassword)

	// Catalog routes
	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Get("/:id", catalogHandler.GetCategory)
	categories.Post("/", auth, admin, catalogHandler.CreateCategory)
	categories.Put("/:id", auth, admin, catalogHandler.UpdateCategory)
	categories.Delete("/:id", auth, admin, catalogHandler.DeleteCategory)

	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)
	products.Get("/:id/variants", productHandler.ListVariants)
	products.Get("/:id/images", productHandler.ListImages)
	products.Get("/:id/reviews", reviewHandler.ListProductReviews)
	products.Post("/", auth, admin, productHandler.CreateProduct)
	products.Put("/:id", auth, admin, productHandler.UpdateProduct)
	products.Delete("/:id", auth, admin, productHandler.DeleteProduct)
	products.Post("/:id/variants", auth, admin, productHandler.CreateVariant)
	products.Post("/:id/images", auth, admin, productHandler.CreateImage)

	variants := api.Group("/variants", auth, admin)
	variants.Put("/:id", productHandler.UpdateVariant)
	variants.Delete("/:id", productHandler.DeleteVariant)

	images := api.Group("/images", auth, admin)
	images.Put("/:id", productHandler.UpdateImage)
	images.Delete("/:id", productHandler.DeleteImage)

	// Shopping
	cart := api.Group("/cart", auth)
	cart.Get("/", cartHandler.GetCart)
	cart.Get("/count", cartHandler.Count)
	cart.Post("/items", cartHandler.AddItem)
	cart.Put("/items/:id", cartHandler.UpdateItem)
	cart.Delete("/items/:id", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.Clear)

	orders := api.Group("/orders", auth)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Post("/:id/cancel", orderHandler.CancelOrder)

	reviews := api.Group("/reviews", auth)
	reviews.Get("/reviewable", reviewHandler.Reviewable)
	reviews.Get("/me", reviewHandler.ListMine)
	reviews.Post("/", reviewHandler.CreateReview)
	reviews.Put("/:id", reviewHandler.UpdateReview)
	reviews.Delete("/:id", reviewHandler.DeleteReview)

	// Recommendation chatbot
	chatbot := api.Group("/chatbot")
	chatbot.Get("/start", chatbotHandler.Start)
	chatbot.Get("/categories/:id/price-ranges", chatbotHandler.PriceRanges)
	chatbot.Get("/categories/:id/price-ranges/:index", chatbotHandler.StoryRequest)
	chatbot.Post("/recommendations", auth, recommendLimit.Handler(), chatbotHandler.Recommend)
	chatbot.Get("/history", auth, chatbotHandler.History)
	chatbot.Get("/history/:id", auth, chatbotHandler.HistoryDetail)

	// Admin
	adminGroup := api.Group("/admin", auth, admin)
	adminGroup.Get("/stats", adminHandler.DashboardStats)
	adminGroup.Get("/users", adminHandler.ListAllUsers)
	adminGroup.Get("/users/:id", adminHandler.GetUser)
	adminGroup.Put("/users/:id/role", adminHandler.UpdateUserRole)
	adminGroup.Delete("/users/:id", adminHandler.DeleteUser)
	adminGroup.Get("/orders", adminHandler.ListAllOrders)
	adminGroup.Put("/orders/:id/status", adminHandler.UpdateOrderStatus)
	adminGroup.Put("/orders/:id/payment", adminHandler.UpdatePaymentStatus)
	adminGroup.Put("/orders/:id/tracking", adminHandler.UpdateTrackingCode)
	adminGroup.Post("/orders/:id/cancel", adminHandler.CancelOrder)
	adminGroup.Get("/orders/:id/history", adminHandler.OrderHistory)
	adminGroup.Get("/reviews", reviewHandler.ListAll)
}

func health(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			log.Error().Err(err).Msg("health check: database ping failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "database": "unreachable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
