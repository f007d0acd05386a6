package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shapedtime/syncstream/internal/auth"
	"github.com/shapedtime/syncstream/internal/config"
	"github.com/shapedtime/syncstream/internal/room"
	"github.com/shapedtime/syncstream/internal/store"
)

// Server is syncstream's HTTP + websocket API surface: room CRUD, the file
// streaming endpoint, and the viewer channel upgrade.
type Server struct {
	router  *gin.Engine
	storage *room.Storage
	store   store.Store
	cfg     *config.TorrentConfig
	authN   auth.Authenticator
}

// NewServer creates a new API server.
func NewServer(storage *room.Storage, st store.Store, cfg *config.TorrentConfig, authN auth.Authenticator) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		storage: storage,
		store:   st,
		cfg:     cfg,
		authN:   authN,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	s.router.Use(func(c *gin.Context) {
		c.Next()
		slog.Info("API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	})

	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.router.POST("/rooms/link", s.createLinkRoom)
	s.router.POST("/rooms/torrent", s.createTorrentRoom)
	s.router.PUT("/rooms/:id/link", s.updateLinkRoom)
	s.router.PUT("/rooms/:id/torrent", s.updateTorrentRoom)
	s.router.GET("/rooms", s.listRooms)
	s.router.GET("/rooms/:id", s.getRoom)
	s.router.DELETE("/rooms/:id", s.deleteRoom)

	s.router.GET("/files/:room_id/:file_ind", s.serveFile)
	s.router.GET("/rooms/:id/ws", s.attachViewer)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// authenticate resolves the bearer token on the request, or writes a 401
// and returns ok=false. Kept as a small helper rather than middleware so
// individual routes choose whether auth is required.
func (s *Server) authenticate(c *gin.Context) (userID string, ok bool) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		errorResponse(c, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}

	userID, err := s.authN.Verify(header[len(prefix):])
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return userID, true
}
