// Package server stellt den Webhook, die Trigger-Endpunkte und /metrics bereit.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/models"
	"oa-workflow/services"
)

// LocationManager is satisfied by *services.LocationService.
type LocationManager interface {
	AddUserLocation(ctx context.Context, publicationID uint, rawURL string) (*models.OpenAccessLocation, error)
	RemoveScholarsphereLocations(ctx context.Context, rawURL string) (int64, error)
	Backfill(ctx context.Context) (services.BackfillSummary, error)
}

// WorkflowRunner is satisfied by *services.OAWorkflow.
type WorkflowRunner interface {
	Run(ctx context.Context) (services.RunSummary, error)
}

// PostprintSyncer is satisfied by *services.PostprintSync.
type PostprintSyncer interface {
	Run(ctx context.Context) (services.SyncSummary, error)
}

// Server bündelt die Handler und ihre Abhängigkeiten.
type Server struct {
	Config     *config.Config
	Locations  LocationManager
	Workflow   WorkflowRunner
	Postprints PostprintSyncer
	Logger     *zap.Logger

	// Go startet angestoßene Läufe im Hintergrund; Tests ersetzen es durch einen direkten Aufruf.
	Go func(func())
}

// New erstellt einen neuen Server.
func New(cfg *config.Config, locations LocationManager, workflow WorkflowRunner, postprints PostprintSyncer, logger *zap.Logger) *Server {
	return &Server{
		Config:     cfg,
		Locations:  locations,
		Workflow:   workflow,
		Postprints: postprints,
		Logger:     logger,
		Go:         func(fn func()) { go fn() },
	}
}

func secretsMatch(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		if !secretsMatch(c.GetHeader("X-API-KEY"), cfg.APISecretKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Router baut die gin-Engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// eigener Schlüssel, unabhängig von API_SECRET_KEY
	router.POST("/webhooks/scholarsphere_events", s.scholarsphereEvent)

	api := router.Group("/", apiKeyAuthMiddleware(s.Config))
	api.POST("/publications/:id/open_access_locations", s.addOpenAccessLocation)
	api.POST("/workflow/run", s.trigger("oa_workflow", func(ctx context.Context) (any, error) {
		return s.Workflow.Run(ctx)
	}))
	api.POST("/postprints/sync", s.trigger("postprint_sync", func(ctx context.Context) (any, error) {
		return s.Postprints.Run(ctx)
	}))
	api.POST("/locations/backfill", s.trigger("location_backfill", func(ctx context.Context) (any, error) {
		return s.Locations.Backfill(ctx)
	}))

	return router
}

type scholarsphereEventRequest struct {
	PublicationURL string `json:"publication_url" form:"publication_url"`
}

// Reihenfolge: 401, 400, 404, 204.
func (s *Server) scholarsphereEvent(c *gin.Context) {
	if !secretsMatch(c.GetHeader("X-API-KEY"), s.Config.ScholarsphereWebhookSecret) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
		return
	}

	var req scholarsphereEventRequest
	if err := c.ShouldBind(&req); err != nil || req.PublicationURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "publication_url is required"})
		return
	}

	deleted, err := s.Locations.RemoveScholarsphereLocations(c.Request.Context(), req.PublicationURL)
	if err != nil {
		s.Logger.Error("ScholarSphere-Webhook fehlgeschlagen", zap.String("url", req.PublicationURL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open access location with this url"})
		return
	}
	c.Status(http.StatusNoContent)
}

type addLocationRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) addOpenAccessLocation(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publication id"})
		return
	}

	var req addLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	loc, err := s.Locations.AddUserLocation(c.Request.Context(), uint(id), req.URL)
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "publication not found"})
	case errors.Is(err, services.ErrInvalidURL), errors.Is(err, services.ErrUnreachableURL):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		s.Logger.Error("User-Location konnte nicht gespeichert werden", zap.Uint64("publication_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
	default:
		c.JSON(http.StatusCreated, loc)
	}
}

// trigger startet fn im Hintergrund und antwortet sofort mit 202.
func (s *Server) trigger(name string, fn func(ctx context.Context) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithoutCancel(c.Request.Context())
		s.Go(func() {
			log := s.Logger.With(zap.String("run", name))
			log.Info("Lauf per API angestoßen")
			summary, err := fn(ctx)
			if err != nil {
				log.Error("Lauf mit Fehlern beendet", zap.Any("summary", summary), zap.Error(err))
				return
			}
			log.Info("Lauf beendet", zap.Any("summary", summary))
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "run": name})
	}
}

// ListenAndServe läuft, bis ctx beendet wird, und fährt den Server dann geordnet herunter.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.HTTPPort,
		Handler:           s.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting server", zap.String("port", s.Config.HTTPPort))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
