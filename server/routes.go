// Package server - HTTP-Router und Server-Setup fuer visionprep
// Beinhaltet: Server-Struct, Router-Registrierung, Body-Limit
package server

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/version"
	"github.com/7blacky7/visionprep/vision"
)

var mode string = gin.DebugMode

// Server beantwortet Super-Resolution- und Grounding-Anfragen
type Server struct {
	addr    net.Addr
	logger  *slog.Logger
	models  *modelCache
	maxBody int64
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server. addr darf nil sein (keine Host-Pruefung).
// srOpts werden an jede geladene Pipeline weitergegeben.
func NewServer(addr net.Addr, hub *huggingface.Client, logger *slog.Logger, srOpts ...superres.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = huggingface.NewClient()
	}

	maxBytes := int64(envconfig.MaxImageBytes())
	loadOpts := []vision.LoadOption{
		vision.WithTimeout(envconfig.FetchTimeout()),
		vision.WithMaxBytes(maxBytes),
	}

	return &Server{
		addr:   addr,
		logger: logger,
		models: newModelCache(hub, logger, loadOpts, srOpts...),
		// base64 vergroessert um 4/3, dazu die uebrigen JSON-Felder
		maxBody: maxBytes/3*4 + 64<<10,
	}
}

// Close gibt geladene Modelle frei
func (s *Server) Close() error {
	return s.models.Close()
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{RequestIDHeader}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
		requestIDMiddleware(s.logger),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "visionprep is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "visionprep is running") })
	r.HEAD("/api/version", s.VersionHandler)
	r.GET("/api/version", s.VersionHandler)

	// Models and backends
	r.GET("/api/models", s.ListHandler)
	r.GET("/api/backends", s.BackendsHandler)

	// Inference
	r.POST("/api/super-resolution", s.SuperResolutionHandler)
	r.POST("/api/grounding", s.GroundingHandler)

	return r
}

// VersionHandler liefert die Server-Version
func (s *Server) VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
}
