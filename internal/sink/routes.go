package sink

import (
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/cictl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func (s *Sink) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := r.Group("/")
	if !s.anonymous {
		protected.Use(gin.BasicAuth(s.accounts))
	}
	protected.POST("/upload", s.handleUpload)
	protected.GET("/artifacts", s.handleList)
	protected.GET("/artifacts/:name", s.handleDownload)
}

func (s *Sink) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}
	defer form.RemoveAll()

	var stored []StoredArtifact
	for field, headers := range form.File {
		for _, fh := range headers {
			a, err := s.store.Save(fh)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, ErrInvalidName) {
					status = http.StatusBadRequest
				}
				log.Warn().Err(err).Str("field", field).Str("filename", fh.Filename).Msg("sink store rejected")
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			observability.RecordSinkStore(s.ID, a.Size)
			stored = append(stored, a)
		}
	}
	if len(stored) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in form"})
		return
	}

	log.Info().
		Str("sink", s.ID).
		Str("request_id", c.GetHeader(observability.RequestIDHeader)).
		Int("artifacts", len(stored)).
		Msg("sink stored artifacts")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stored": stored})
}

func (s *Sink) handleList(c *gin.Context) {
	list, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": list})
}

func (s *Sink) handleDownload(c *gin.Context) {
	path, err := s.store.Path(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(path, c.Param("name"))
}
