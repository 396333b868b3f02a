package routes

import (
	"time"

	"wayfarer/config"
	"wayfarer/handlers"
	"wayfarer/middleware"
	"wayfarer/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Limiters are the rate limiters the router installs. Callers sweep them
// periodically.
type Limiters struct {
	Global     *middleware.IPRateLimiter
	Auth       *middleware.IPRateLimiter
	Submission *middleware.IPRateLimiter
}

func NewLimiters(cfg *config.Config) Limiters {
	return Limiters{
		Global:     middleware.NewIPRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		Auth:       middleware.NewIPRateLimiter(10, 15*time.Minute),
		Submission: middleware.NewIPRateLimiter(5, time.Minute),
	}
}

func (l Limiters) Sweep() {
	l.Global.Sweep()
	l.Auth.Sweep()
	l.Submission.Sweep()
}

func allowedOrigins(cfg *config.Config) []string {
	origins := []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173"}
	if cfg.FrontendURL != "" {
		origins = append(origins, cfg.FrontendURL)
	}
	return origins
}

func SetupRouter(cfg *config.Config, hub *websocket.Hub, limiters Limiters) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(cfg),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.ErrorHandler())
	router.NoRoute(middleware.NotFound())

	router.GET("/health", handlers.Health)
	if hub != nil {
		router.GET("/ws", hub.Handler())
	}

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiters.Global))

	protect := middleware.Protect()
	optional := middleware.OptionalAuth()
	admin := []gin.HandlerFunc{protect, middleware.RequireAdmin()}
	authors := []gin.HandlerFunc{protect, middleware.RestrictTo("admin", "contributor")}
	cached := middleware.ETag()
	submissions := middleware.RateLimit(limiters.Submission)

	with := func(chain []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		out := append([]gin.HandlerFunc{}, chain...)
		return append(out, h)
	}

	// Auth
	auth := api.Group("/auth")
	{
		limited := middleware.RateLimit(limiters.Auth)
		auth.POST("/register", limited, handlers.Register)
		auth.POST("/login", limited, handlers.Login)
		auth.POST("/forgot-password", limited, handlers.ForgotPassword)
		auth.POST("/reset-password/:token", limited, handlers.ResetPassword)
		auth.GET("/verify-email/:token", handlers.VerifyEmail)
		auth.POST("/resend-verification", protect, handlers.ResendVerification)
		auth.GET("/me", protect, handlers.GetMe)
		auth.PUT("/me", protect, handlers.UpdateMe)
		auth.PUT("/password", protect, handlers.UpdatePassword)
		auth.GET("/google/url", handlers.GoogleAuthURL)
		auth.GET("/google/callback", handlers.GoogleCallback)
	}

	// Users
	users := api.Group("/users")
	{
		users.GET("", with(admin, handlers.ListUsers)...)
		users.POST("", with(admin, handlers.CreateUser)...)
		users.POST("/me/avatar", protect, handlers.UploadAvatar)
		users.GET("/:id", optional, handlers.GetUser)
		users.PUT("/:id", with(admin, handlers.UpdateUser)...)
		users.DELETE("/:id", with(admin, handlers.DeleteUser)...)
		users.POST("/:id/follow", protect, handlers.FollowUser)
		users.DELETE("/:id/follow", protect, handlers.UnfollowUser)
		users.GET("/:id/followers", handlers.GetFollowers)
		users.GET("/:id/following", handlers.GetFollowing)
	}

	// Posts
	posts := api.Group("/posts")
	{
		posts.GET("", cached, handlers.ListPosts)
		posts.GET("/mine", protect, handlers.MyPosts)
		posts.GET("/admin/all", with(admin, handlers.AdminListPosts)...)
		posts.GET("/:id", optional, handlers.GetPost)
		posts.POST("", with(authors, handlers.CreatePost)...)
		posts.PUT("/:id", protect, handlers.UpdatePost)
		posts.DELETE("/:id", protect, handlers.DeletePost)
		posts.POST("/:id/submit", protect, handlers.SubmitPost)
		posts.PATCH("/:id/moderate", with(admin, handlers.ModeratePost)...)
		posts.POST("/:id/like", protect, handlers.LikePost)
		posts.DELETE("/:id/like", protect, handlers.UnlikePost)
	}

	// Categories
	categories := api.Group("/categories")
	{
		categories.GET("", cached, handlers.ListCategories)
		categories.GET("/:id", cached, handlers.GetCategory)
		categories.POST("", with(admin, handlers.CreateCategory)...)
		categories.PUT("/:id", with(admin, handlers.UpdateCategory)...)
		categories.DELETE("/:id", with(admin, handlers.DeleteCategory)...)
	}

	// Destinations
	destinations := api.Group("/destinations")
	{
		destinations.GET("", cached, handlers.ListDestinations)
		destinations.GET("/nearby", handlers.NearbyDestinations)
		destinations.GET("/admin/all", with(admin, handlers.AdminListDestinations)...)
		destinations.GET("/:id", optional, handlers.GetDestination)
		destinations.POST("", with(admin, handlers.CreateDestination)...)
		destinations.PUT("/:id", with(admin, handlers.UpdateDestination)...)
		destinations.PATCH("/:id/publish", with(admin, handlers.PublishDestination)...)
		destinations.DELETE("/:id", with(admin, handlers.DeleteDestination)...)
	}

	// Guides
	guides := api.Group("/guides")
	{
		guides.GET("", cached, handlers.ListGuides)
		guides.GET("/admin/all", with(admin, handlers.AdminListGuides)...)
		guides.GET("/:id", optional, handlers.GetGuide)
		guides.POST("", with(admin, handlers.CreateGuide)...)
		guides.PUT("/:id", with(admin, handlers.UpdateGuide)...)
		guides.PATCH("/:id/publish", with(admin, handlers.PublishGuide)...)
		guides.DELETE("/:id", with(admin, handlers.DeleteGuide)...)
	}

	// Photos
	photos := api.Group("/photos")
	{
		photos.GET("", cached, handlers.ListPhotos)
		photos.GET("/:id", optional, handlers.GetPhoto)
		photos.POST("", with(admin, handlers.CreatePhoto)...)
		photos.PUT("/:id", with(admin, handlers.UpdatePhoto)...)
		photos.DELETE("/:id", with(admin, handlers.DeletePhoto)...)
	}
	api.POST("/upload/image", with(authors, handlers.UploadImage)...)

	// Comments
	comments := api.Group("/comments")
	{
		comments.POST("", submissions, optional, handlers.SubmitComment)
		comments.GET("/:resourceType/:resourceId", handlers.GetComments)
		comments.POST("/:id/like", handlers.LikeComment)
		comments.POST("/:id/dislike", handlers.DislikeComment)
		comments.POST("/:id/flag", submissions, optional, handlers.FlagComment)
		comments.PUT("/:id", optional, handlers.EditComment)
		comments.PATCH("/:id/moderate", with(admin, handlers.ModerateComment)...)
		comments.DELETE("/:id", optional, handlers.DeleteComment)
	}
	api.GET("/admin/comments", with(admin, handlers.AdminListComments)...)

	// Contact
	contact := api.Group("/contact")
	{
		contact.POST("", submissions, handlers.SubmitContact)
		contact.GET("", with(admin, handlers.ListContacts)...)
		contact.GET("/stats", with(admin, handlers.ContactStats)...)
		contact.GET("/:id", with(admin, handlers.GetContact)...)
		contact.PATCH("/:id", with(admin, handlers.UpdateContact)...)
		contact.POST("/:id/reply", with(admin, handlers.ReplyContact)...)
		contact.DELETE("/:id", with(admin, handlers.DeleteContact)...)
	}

	// Partners
	partners := api.Group("/partners")
	{
		partners.POST("", submissions, handlers.ApplyPartner)
		partners.GET("", with(admin, handlers.ListPartners)...)
		partners.GET("/:id", with(admin, handlers.GetPartner)...)
		partners.PATCH("/:id", with(admin, handlers.UpdatePartner)...)
		partners.DELETE("/:id", with(admin, handlers.DeletePartner)...)
	}

	// Newsletter
	newsletter := api.Group("/newsletter")
	{
		newsletter.POST("/subscribe", submissions, handlers.Subscribe)
		newsletter.GET("/verify/:token", handlers.VerifySubscription)
		newsletter.POST("/unsubscribe", handlers.Unsubscribe)
		newsletter.PUT("/preferences", handlers.UpdatePreferences)
		newsletter.GET("/subscribers", with(admin, handlers.ListSubscribers)...)
		newsletter.DELETE("/subscribers/:id", with(admin, handlers.DeleteSubscriber)...)
		newsletter.GET("/stats", with(admin, handlers.NewsletterStats)...)
		newsletter.POST("/send", with(admin, handlers.SendNewsletter)...)
		newsletter.POST("/send-weekly", with(admin, handlers.SendWeeklyNewsletter)...)
	}

	// Email templates
	templates := api.Group("/email-templates", admin...)
	{
		templates.GET("", handlers.ListTemplates)
		templates.POST("", handlers.CreateTemplate)
		templates.GET("/:id", handlers.GetTemplate)
		templates.PUT("/:id", handlers.UpdateTemplate)
		templates.DELETE("/:id", handlers.DeleteTemplate)
		templates.POST("/:id/preview", handlers.PreviewTemplate)
		templates.POST("/:id/test", handlers.TestTemplate)
	}

	// Settings
	api.GET("/settings", cached, handlers.GetSettings)
	api.PUT("/settings", with(admin, handlers.UpdateSettings)...)

	// Push
	push := api.Group("/push", admin...)
	{
		push.GET("/vapid-public-key", handlers.GetVapidPublicKey)
		push.POST("/subscribe", handlers.SubscribePush)
		push.DELETE("/subscribe", handlers.UnsubscribePush)
	}

	api.GET("/public/stats", cached, handlers.PublicStats)

	return router
}
