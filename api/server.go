package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	db "github.com/katatrina/schoolhub-BE/internal/db/sqlc"
	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/token"
	"github.com/katatrina/schoolhub-BE/internal/tokenstore"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/katatrina/schoolhub-BE/internal/worker"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/idtoken"
)

// googleTokenValidator is satisfied by *idtoken.Validator.
type googleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

type Server struct {
	router                 *gin.Engine
	httpServer             *http.Server
	dbStore                db.UserStore
	notifications          *notification.Router
	tokenMaker             token.Maker
	refreshStore           tokenstore.Store
	config                 *util.Config
	googleIDTokenValidator googleTokenValidator
	taskDistributor        worker.TaskDistributor
	taskInspector          worker.TaskInspector
	eventSender            event.EventSender
}

// NewServer creates a new HTTP server and set up routing. taskDistributor and
// taskInspector may be nil, in which case scheduled publishing is unavailable.
func NewServer(
	config *util.Config,
	store db.UserStore,
	notifications *notification.Router,
	refreshStore tokenstore.Store,
	eventSender event.EventSender,
	taskDistributor worker.TaskDistributor,
	taskInspector worker.TaskInspector,
) (*Server, error) {
	// Create a new JWT token maker
	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token maker: %w", err)
	}
	log.Info().Msg("Token maker created successfully ✅")

	server := &Server{
		dbStore:         store,
		notifications:   notifications,
		tokenMaker:      tokenMaker,
		refreshStore:    refreshStore,
		config:          config,
		taskDistributor: taskDistributor,
		taskInspector:   taskInspector,
		eventSender:     eventSender,
	}

	if config.GoogleClientID != "" {
		// Create a new Google ID token validator
		validator, err := idtoken.NewValidator(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to create google id token validator: %w", err)
		}
		server.googleIDTokenValidator = validator
		log.Info().Msg("Google ID token validator created successfully ✅")
	}

	server.setupRouter()
	return server, nil
}

// setupRouter configures the HTTP server routes.
func (server *Server) setupRouter() {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	v1 := router.Group("/v1")

	v1.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1.POST("/tokens/verify", server.verifyAccessToken)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", server.loginUser)
		authGroup.POST("/google-login", server.loginUserWithGoogle)
		authGroup.POST("/refresh", server.refreshAccessToken)
		authGroup.POST("/logout", server.logoutUser)
		authGroup.GET("/me", authMiddleware(server.tokenMaker), server.getAuthenticatedUser)
	}

	userGroup := v1.Group("/users", authMiddleware(server.tokenMaker), requiredRoles(notification.RoleAdmin))
	{
		userGroup.POST("", server.createUser)
	}

	// The stream authenticates itself so it can accept the token as a query parameter.
	v1.GET("/notifications/stream", server.streamNotifications)

	notificationGroup := v1.Group("/notifications", authMiddleware(server.tokenMaker))
	{
		notificationGroup.GET("", server.listNotifications)
		notificationGroup.GET("/unread-count", server.getUnreadNotificationCount)
		notificationGroup.PUT("/read-all", server.markAllNotificationsRead)
		notificationGroup.PUT("/:id/read", server.markNotificationRead)
		notificationGroup.DELETE("/:id", server.dismissNotification)

		staffGroup := notificationGroup.Group("", requiredRoles(notification.RoleAdmin, notification.RoleTeacher))
		staffGroup.POST("", server.createNotification)
		staffGroup.DELETE("/scheduled/:id", server.cancelScheduledNotification)
	}

	server.router = router
}

// Handler exposes the router, mainly for httptest servers.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Start runs the HTTP server on a specific address until Shutdown is called.
func (server *Server) Start(address string) error {
	server.httpServer = &http.Server{
		Addr:              address,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", address).Msg("HTTP server started ✅")
	err := server.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// websocket streams end when their request context is cancelled.
func (server *Server) Shutdown(ctx context.Context) error {
	if server.httpServer == nil {
		return nil
	}
	return server.httpServer.Shutdown(ctx)
}
