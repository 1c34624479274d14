package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/cictl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	DefaultID             = "cictl-sink"
	DefaultAddr           = ":9300"
	DefaultMaxUploadBytes = 2 << 30
	version               = "0.1.0"
)

type Config struct {
	ID          string
	Addr        string
	StorageDir  string
	Accounts    map[string]string
	CorsOrigins []string
	// MaxUploadBytes caps one request body.
	MaxUploadBytes int64
	// TLSCertFile and TLSKeyFile switch the listener to https when both are set.
	TLSCertFile string
	TLSKeyFile  string
	// AllowAnonymous serves /upload and /artifacts without credentials. It
	// must be set explicitly when Accounts is empty.
	AllowAnonymous bool
}

type Sink struct {
	ID      string
	Addr    string
	Started time.Time

	store     *Store
	accounts  gin.Accounts
	anonymous bool
	maxBytes  int64
	router    *gin.Engine
	tls       *tls.Config
}

func New(cfg Config) (*Sink, error) {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = DefaultID
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	tlsCfg, err := serverTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	if len(cfg.Accounts) == 0 && !cfg.AllowAnonymous {
		return nil, ErrNoAccounts
	}
	store, err := NewStore(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Sink{
		ID:        id,
		Addr:      addr,
		Started:   time.Now(),
		store:     store,
		accounts:  gin.Accounts(cfg.Accounts),
		anonymous: len(cfg.Accounts) == 0,
		maxBytes:  maxBytes,
		router:    r,
		tls:       tlsCfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Sink) Handler() http.Handler {
	return s.router
}

func (s *Sink) Store() *Store {
	return s.store
}

// TLSConfig is nil when the sink serves plain http.
func (s *Sink) TLSConfig() *tls.Config {
	return s.tls
}

var (
	ErrTLSKeyPair = errors.New("sink: tls cert and key must be set together")
	ErrNoAccounts = errors.New("sink: no accounts configured")
)

func serverTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	certFile = strings.TrimSpace(certFile)
	keyFile = strings.TrimSpace(keyFile)
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, ErrTLSKeyPair
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("sink: load tls key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// Serve listens on s.Addr until ctx is canceled, then shuts down gracefully.
func (s *Sink) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.tls,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("sink", s.ID).
			Str("addr", s.Addr).
			Str("storage", s.store.Dir()).
			Bool("tls", s.tls != nil).
			Msg("sink listening")
		if s.tls != nil {
			// certificates already loaded into TLSConfig
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("sink serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sink shutdown: %w", err)
		}
		log.Info().Str("sink", s.ID).Msg("sink stopped")
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
