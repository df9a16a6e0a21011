// Package api serves vanilla pricing, implied vol inversion and chain
// calibration over HTTP.
package api

import (
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Server routes pricing and calibration requests to an Engine.
type Server struct {
	engine  Engine
	keyHash string
	router  *gin.Engine

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires an engine into a gin router. Bearer authentication is
// enabled when the API_KEY_HASH environment variable carries a bcrypt hash
// of the key and disabled when it is empty.
func NewServer(engine Engine) *Server {
	server := &Server{
		engine:   engine,
		keyHash:  os.Getenv("API_KEY_HASH"),
		limiters: make(map[string]*rate.Limiter),
	}
	server.setupRouter()
	return server
}

func (server *Server) setupRouter() {
	router := gin.Default()

	authRoutes := router.Group("/v1").Use(server.authentication)
	authRoutes.POST("/price", server.price)
	authRoutes.POST("/implied", server.implied)
	authRoutes.POST("/calibrate", server.calibrate)

	server.router = router
}

// Start runs the HTTP server on a specific address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

// calibrateLimiter hands each client its own limiter. Calibration is the
// expensive endpoint, so it is throttled to a short burst per second.
func (server *Server) calibrateLimiter(client string) *rate.Limiter {
	server.mu.Lock()
	defer server.mu.Unlock()
	limiter, ok := server.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Second), 2)
		server.limiters[client] = limiter
	}
	return limiter
}

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}
