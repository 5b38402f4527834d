package devauthority

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/pkg/sessionvalidator"
)

var (
	errMissingUserStore    = errors.New("authority.missing_user_store")
	errMissingRefreshStore = errors.New("authority.missing_refresh_store")
)

// Dependencies wires the authority's collaborators.
type Dependencies struct {
	Users         UserStore
	RefreshTokens RefreshTokenStore
	Clock         clockwork.Clock
	Logger        *zap.Logger
	Registerer    prometheus.Registerer
}

// Server answers the authority HTTP API.
type Server struct {
	configuration Config
	users         UserStore
	refreshTokens RefreshTokenStore
	validator     *sessionvalidator.Validator
	clock         clockwork.Clock
	logger        *zap.Logger
	metrics       *requestMetrics
	limiter       *clientLimiter
}

// NewServer validates configuration and assembles the authority.
func NewServer(configuration Config, dependencies Dependencies) (*Server, error) {
	normalized, err := configuration.Normalize()
	if err != nil {
		return nil, err
	}
	if dependencies.Users == nil {
		return nil, errMissingUserStore
	}
	if dependencies.RefreshTokens == nil {
		return nil, errMissingRefreshStore
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: normalized.SigningKey,
		Issuer:     normalized.Issuer,
		Clock:      clock,
	})
	if err != nil {
		return nil, fmt.Errorf("authority.validator: %w", err)
	}
	metrics, err := newRequestMetrics(dependencies.Registerer)
	if err != nil {
		return nil, fmt.Errorf("authority.metrics: %w", err)
	}
	return &Server{
		configuration: normalized,
		users:         dependencies.Users,
		refreshTokens: dependencies.RefreshTokens,
		validator:     validator,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		limiter:       newClientLimiter(normalized.RequestsPerSecond, normalized.Burst, clock),
	}, nil
}

// Handler builds the gin engine serving the authority routes.
func (server *Server) Handler() (http.Handler, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(server.logger, server.clock))
	routes := server.authRoutes()
	policy, err := newPreflightPolicy(server.logger, server.configuration, routes)
	if err != nil {
		return nil, fmt.Errorf("authority.cors: %w", err)
	}
	if policy.enabled() {
		router.Use(policy.middleware())
	}
	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	group := router.Group("/auth")
	group.Use(server.limiter.middleware(server.logger))
	server.mountRoutes(group, routes)
	return router, nil
}

func requestLogger(logger *zap.Logger, clock clockwork.Clock) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := clock.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", clock.Since(startTime)),
		)
	}
}

func (server *Server) refreshExpiry() time.Time {
	return server.clock.Now().UTC().Add(server.configuration.RefreshTTL)
}
