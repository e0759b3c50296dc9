package xplmonitor

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Router holds the Gin engine and the Source it reports on.
type Router struct {
	engine *gin.Engine
	source Source
}

// NewRouter builds a Router serving source's state (spec.md §6,
// ambient-stack expansion: gin + cors, matching the teacher's API
// layer).
func NewRouter(source Source) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r := &Router{engine: engine, source: source}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/healthz", r.health)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", r.health)
		v1.GET("/devices", r.listDevices)
		clients := v1.Group("/clients")
		{
			clients.GET("/hub", r.listHubClients)
			clients.GET("/bridge", r.listBridgeClients)
		}
	}
}

func (r *Router) health(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK
	if !r.source.Healthy() {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, HealthResponse{Status: status, Transport: r.source.TransportName()})
}

func (r *Router) listHubClients(c *gin.Context) {
	clients := r.source.HubClients()
	c.JSON(http.StatusOK, ListHubClientsResponse{Clients: clients, Count: len(clients)})
}

func (r *Router) listBridgeClients(c *gin.Context) {
	clients := r.source.BridgeClients()
	c.JSON(http.StatusOK, ListBridgeClientsResponse{Clients: clients, Count: len(clients)})
}

func (r *Router) listDevices(c *gin.Context) {
	devices := r.source.Devices()
	c.JSON(http.StatusOK, ListDevicesResponse{Devices: devices, Count: len(devices)})
}

// Run starts the HTTP server, blocking until it stops.
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("xplmonitor: request")
	}
}
