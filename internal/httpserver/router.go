package httpserver

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskmanager/internal/handler"
	"taskmanager/pkg/otel"
	"taskmanager/pkg/trace"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth       *handler.AuthHandler
	Task       *handler.TaskHandler
	Category   *handler.CategoryHandler
	Tag        *handler.TagHandler
	Comment    *handler.CommentHandler
	Attachment *handler.AttachmentHandler
}

type Options struct {
	AllowedOrigins []string
	// MaxUploadBytes bounds multipart memory; 0 keeps gin's default.
	MaxUploadBytes int64
}

func NewRouter(h Handlers, auth Authenticator, db Pinger, opts Options, logger *zap.Logger) *gin.Engine {
	handler.RegisterValidation()

	r := gin.New()
	if opts.MaxUploadBytes > 0 && opts.MaxUploadBytes < r.MaxMultipartMemory {
		r.MaxMultipartMemory = opts.MaxUploadBytes
	}

	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(MetricsMiddleware())
	if c := corsMiddleware(opts.AllowedOrigins); c != nil {
		r.Use(c)
	}

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Protected
	authed := api.Group("/")
	authed.Use(AuthMiddleware(auth, logger))
	{
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/tasks", h.Task.List)
		authed.POST("/tasks", h.Task.Create)
		authed.GET("/tasks/my_tasks", h.Task.MyTasks)
		authed.GET("/tasks/assigned_to_me", h.Task.AssignedToMe)
		authed.GET("/tasks/:id", h.Task.Get)
		authed.PUT("/tasks/:id", h.Task.Update)
		authed.PATCH("/tasks/:id", h.Task.PartialUpdate)
		authed.DELETE("/tasks/:id", h.Task.Delete)
		authed.POST("/tasks/:id/complete", h.Task.Complete)
		authed.POST("/tasks/:id/assign", h.Task.Assign)

		authed.GET("/categories", h.Category.List)
		authed.POST("/categories", h.Category.Create)
		authed.GET("/categories/:id", h.Category.Get)
		authed.PUT("/categories/:id", h.Category.Update)
		authed.PATCH("/categories/:id", h.Category.PartialUpdate)
		authed.DELETE("/categories/:id", h.Category.Delete)

		authed.GET("/tags", h.Tag.List)
		authed.POST("/tags", h.Tag.Create)
		authed.GET("/tags/:id", h.Tag.Get)
		authed.PUT("/tags/:id", h.Tag.Update)
		authed.PATCH("/tags/:id", h.Tag.PartialUpdate)
		authed.DELETE("/tags/:id", h.Tag.Delete)

		authed.GET("/comments", h.Comment.List)
		authed.POST("/comments", h.Comment.Create)
		authed.GET("/comments/:id", h.Comment.Get)
		authed.PUT("/comments/:id", h.Comment.Update)
		authed.PATCH("/comments/:id", h.Comment.PartialUpdate)
		authed.DELETE("/comments/:id", h.Comment.Delete)

		authed.GET("/attachments", h.Attachment.List)
		authed.POST("/attachments", h.Attachment.Create)
		authed.GET("/attachments/:id", h.Attachment.Get)
		authed.PUT("/attachments/:id", h.Attachment.Update)
		authed.PATCH("/attachments/:id", h.Attachment.PartialUpdate)
		authed.DELETE("/attachments/:id", h.Attachment.Delete)
		authed.GET("/attachments/:id/download", h.Attachment.Download)
	}

	return r
}

// corsMiddleware returns nil when no origins are configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", trace.HeaderName},
		ExposeHeaders:    []string{trace.HeaderName, "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
