package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"libraryhub/internal/auth"
	"libraryhub/internal/metrics"
	"libraryhub/internal/models"
	"libraryhub/internal/ratelimit"
	"libraryhub/internal/services"
)

// Deps is everything the HTTP surface needs. Limiter and Redis may be nil.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Borrow   services.BorrowService
	Catalog  services.CatalogService
	Accounts services.AccountService
	Limiter  *ratelimit.Limiter
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())
	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	borrow := &BorrowHandler{svc: d.Borrow}
	catalog := &CatalogHandler{svc: d.Catalog}
	account := &AccountHandler{svc: d.Accounts}
	health := &HealthHandler{db: d.DB, rdb: d.Redis}

	r.GET("/health", health.health)
	r.GET("/metrics", metrics.Handler())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": string(services.KindNotFound)})
	})

	api := r.Group("/api")

	// Public endpoints
	authGroup := api.Group("/auth")
	authGroup.POST("/register", account.register)
	authGroup.POST("/login", d.Limiter.Middleware("login", ratelimit.ByClientIP), account.login)

	api.GET("/physical-books", catalog.listBooks)
	api.GET("/physical-books/:id", catalog.getBook)
	api.GET("/ebooks", catalog.listEbooks)

	// Authenticated endpoints
	private := api.Group("", auth.Authenticate(d.Accounts, respondError))
	private.GET("/account/profile", account.profile)
	private.PUT("/account/profile", account.updateProfile)

	byUser := func(c *gin.Context) string { return "user:" + auth.GetUserID(c).String() }
	private.POST("/borrow/request", d.Limiter.Middleware("borrow", byUser), borrow.createRequest)
	private.GET("/borrow/history", borrow.history)

	// Staff endpoints
	staff := private.Group("", auth.RequireStaff())
	staff.GET("/borrow/requests", borrow.listRequests)
	staff.PATCH("/borrow/requests/:id/status", borrow.updateStatus)
	staff.GET("/borrow/stats", borrow.stats)

	staff.POST("/physical-books", catalog.createBook)
	staff.POST("/physical-books/:id/copies", catalog.addCopies)
	staff.DELETE("/physical-books/:isbn", catalog.deleteBook)
	staff.POST("/ebooks", catalog.createEbook)
	staff.DELETE("/ebooks/:isbn", catalog.deleteEbook)

	// Admin endpoints
	admin := private.Group("", auth.RequireRole(models.UserRoleAdmin))
	admin.PATCH("/users/:id/role", account.setRole)
}
