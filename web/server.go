// Package web exposes the shop over HTTP with gin.
package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/blob"
	"github.com/pioneerstudio/patternshop/shop"
	"github.com/pioneerstudio/patternshop/view/vom"
)

type Server struct {
	shop  *shop.Service
	files *blob.FS
	log   *slog.Logger
}

type Option func(*Server)

// WithFiles serves the objects of a filesystem bucket store under /files.
func WithFiles(fs *blob.FS) Option {
	return func(s *Server) { s.files = fs }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func New(svc *shop.Service, opts ...Option) *Server {
	s := &Server{shop: svc, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine with every route.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	r.GET("/healthz", s.health)
	if s.files != nil {
		r.GET("/files/:bucket/*object", s.file)
	}

	api := r.Group("/api")
	// these routes carry their own credentials
	api.POST("/webhooks/stripe", s.webhook)
	api.GET("/cron/expire-credits", s.expireCredits)
	api.POST("/cron/expire-credits", s.expireCredits)

	pub := api.Group("", s.identify)
	pub.GET("/patterns", s.patterns)
	pub.GET("/patterns/:slug", s.pattern)
	pub.POST("/patterns/free-download", vom.Bind(freeDownloadVO), s.requestFreeDownload)
	pub.POST("/patterns/purchase-with-credit", vom.Bind(patternVO), s.purchaseWithCredit)
	pub.GET("/free-download/:token", s.freeDownload)
	pub.GET("/download/:patternId", s.download)
	pub.POST("/checkout", vom.Bind(checkoutVO), s.checkout)
	pub.POST("/auth/signup", vom.Bind(signupVO), s.signup)
	pub.POST("/auth/login", vom.Bind(loginVO), s.login)
	pub.GET("/account/orders", s.myOrders)
	pub.GET("/account/downloads", s.myDownloads)
	pub.GET("/favorites", s.favorites)
	pub.POST("/favorites", vom.Bind(patternVO), s.toggleFavorite)
	pub.POST("/newsletter/subscribe", vom.Bind(emailVO), s.subscribeNewsletter)
	pub.POST("/subscriptions/create", vom.Bind(subscribeVO), s.subscribe)
	pub.POST("/subscriptions/portal", s.billingPortal)
	pub.GET("/subscriptions/status", s.subscriptionStatus)

	admin := pub.Group("/admin")
	admin.GET("/patterns/:id", s.adminPattern)
	admin.POST("/patterns", vom.Bind(createPatternVO), s.createPattern)
	admin.PUT("/patterns/:id", vom.Bind(updatePatternVO), s.updatePattern)
	admin.DELETE("/patterns/:id", s.deletePattern)
	admin.POST("/storage/check", vom.Bind(storageCheckVO), s.storageCheck)
	admin.GET("/orders", s.adminOrders)
	admin.GET("/users", s.adminUsers)
	return r
}

func (s *Server) health(c *gin.Context) {
	if err := s.shop.Ping(c.Request.Context()); err != nil {
		s.log.ErrorContext(c.Request.Context(), "health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail renders err. Caller errors keep their status and message; anything else is logged and
// reported as a generic 500.
func (s *Server) fail(c *gin.Context, err error) {
	if e, ok := shop.AsError(err); ok {
		c.AbortWithStatusJSON(e.Status, gin.H{"error": e.Message})
		return
	}
	s.log.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "route", c.FullPath(), "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
