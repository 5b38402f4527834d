package devauthority

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/pkg/sessionvalidator"
)

const (
	claimsContextKey = "authority_claims"
	maxRequestSize   = 64 << 10
)

// authRoute is one endpoint under /auth. Bearer routes require a valid
// access token before the handler runs.
type authRoute struct {
	method  string
	path    string
	bearer  bool
	handler gin.HandlerFunc
}

func (server *Server) authRoutes() []authRoute {
	return []authRoute{
		{method: http.MethodPost, path: "/login", handler: server.handleLogin},
		{method: http.MethodPost, path: "/register", handler: server.handleRegister},
		{method: http.MethodPost, path: "/refresh", handler: server.handleRefresh},
		{method: http.MethodPost, path: "/logout", handler: server.handleLogout},
		{method: http.MethodGet, path: "/me", bearer: true, handler: server.handleMe},
	}
}

func (server *Server) mountRoutes(router gin.IRouter, routes []authRoute) {
	for _, route := range routes {
		handlers := make([]gin.HandlerFunc, 0, 2)
		if route.bearer {
			handlers = append(handlers, server.validator.GinMiddleware(claimsContextKey))
		}
		router.Handle(route.method, route.path, append(handlers, route.handler)...)
	}
}

func (server *Server) handleLogin(contextGin *gin.Context) {
	document, ok := readDocument(contextGin)
	if !ok {
		server.metrics.observe(routeLogin, outcomeRejected)
		return
	}
	email := inboundString(document, "email")
	password := inboundSecret(document, "password")
	if email == "" || password == "" {
		server.metrics.observe(routeLogin, outcomeRejected)
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_credentials"})
		return
	}
	tenantID := inboundString(document, "tenant_id", "tenantId")

	user, err := server.users.Authenticate(contextGin.Request.Context(), email, password, tenantID)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			server.metrics.observe(routeLogin, outcomeRejected)
			server.logger.Info("login rejected", zap.String("code", "authority.login.invalid_credentials"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "Invalid email or password"})
			return
		}
		server.fail(contextGin, routeLogin, "authority.login.user_store", err)
		return
	}
	server.respondWithGrant(contextGin, routeLogin, http.StatusOK, user, "")
}

func (server *Server) handleRegister(contextGin *gin.Context) {
	document, ok := readDocument(contextGin)
	if !ok {
		server.metrics.observe(routeRegister, outcomeRejected)
		return
	}
	newUser := NewUser{
		Email:       inboundString(document, "email"),
		Password:    inboundSecret(document, "password"),
		TenantID:    inboundString(document, "tenant_id", "tenantId"),
		FirstName:   inboundString(document, "first_name", "firstName"),
		LastName:    inboundString(document, "last_name", "lastName"),
		DisplayName: inboundString(document, "display_name", "displayName"),
	}
	user, err := server.users.Create(contextGin.Request.Context(), newUser)
	if err != nil {
		var status int
		var code string
		switch {
		case errors.Is(err, ErrUserExists):
			status, code = http.StatusConflict, "user_exists"
		case errors.Is(err, ErrInvalidEmail):
			status, code = http.StatusUnprocessableEntity, "invalid_email"
		case errors.Is(err, ErrWeakPassword):
			status, code = http.StatusUnprocessableEntity, "weak_password"
		default:
			server.fail(contextGin, routeRegister, "authority.register.user_store", err)
			return
		}
		server.metrics.observe(routeRegister, outcomeRejected)
		contextGin.AbortWithStatusJSON(status, gin.H{"error": code})
		return
	}
	server.respondWithGrant(contextGin, routeRegister, http.StatusCreated, user, "")
}

func (server *Server) handleRefresh(contextGin *gin.Context) {
	document, ok := readDocument(contextGin)
	if !ok {
		server.metrics.observe(routeRefresh, outcomeRejected)
		return
	}
	opaque := inboundSecret(document, "refresh_token", "refreshToken")
	requestContext := contextGin.Request.Context()
	userID, tokenID, _, err := server.refreshTokens.Validate(requestContext, opaque)
	if err != nil {
		if isRefreshRejection(err) {
			server.metrics.observe(routeRefresh, outcomeRejected)
			server.logger.Info("refresh rejected", zap.String("code", "authority.refresh.invalid"), zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
			return
		}
		server.fail(contextGin, routeRefresh, "authority.refresh.validate", err)
		return
	}
	user, err := server.users.Get(requestContext, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			server.metrics.observe(routeRefresh, outcomeRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
			return
		}
		server.fail(contextGin, routeRefresh, "authority.refresh.user_store", err)
		return
	}
	if err := server.refreshTokens.Revoke(requestContext, tokenID); err != nil {
		if isRefreshRejection(err) {
			server.metrics.observe(routeRefresh, outcomeRejected)
			server.logger.Info("refresh lost rotation race", zap.String("code", "authority.refresh.already_rotated"), zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
			return
		}
		server.fail(contextGin, routeRefresh, "authority.refresh.revoke", err)
		return
	}
	server.respondWithGrant(contextGin, routeRefresh, http.StatusOK, user, tokenID)
}

func (server *Server) handleLogout(contextGin *gin.Context) {
	document, ok := readDocument(contextGin)
	if !ok {
		server.metrics.observe(routeLogout, outcomeRejected)
		return
	}
	opaque := inboundSecret(document, "refresh_token", "refreshToken")
	requestContext := contextGin.Request.Context()
	if _, tokenID, _, err := server.refreshTokens.Validate(requestContext, opaque); err == nil {
		if revokeErr := server.refreshTokens.Revoke(requestContext, tokenID); revokeErr != nil && !isRefreshRejection(revokeErr) {
			server.fail(contextGin, routeLogout, "authority.logout.revoke", revokeErr)
			return
		}
	} else if !isRefreshRejection(err) {
		server.fail(contextGin, routeLogout, "authority.logout.validate", err)
		return
	}
	server.metrics.observe(routeLogout, outcomeSuccess)
	contextGin.Status(http.StatusNoContent)
}

func (server *Server) handleMe(contextGin *gin.Context) {
	value, _ := contextGin.Get(claimsContextKey)
	claims, ok := value.(*sessionvalidator.Claims)
	if !ok {
		server.metrics.observe(routeMe, outcomeRejected)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	user, err := server.users.Get(contextGin.Request.Context(), claims.GetUserID())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			server.metrics.observe(routeMe, outcomeRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown_user"})
			return
		}
		server.fail(contextGin, routeMe, "authority.me.user_store", err)
		return
	}
	server.metrics.observe(routeMe, outcomeSuccess)
	contextGin.JSON(http.StatusOK, gin.H{"user": userPayload(server.configuration.PayloadStyle, user)})
}

// respondWithGrant mints an access token and a refresh token for user.
func (server *Server) respondWithGrant(contextGin *gin.Context, route string, status int, user User, previousTokenID string) {
	accessToken, _, err := MintAccessToken(user, server.configuration, server.clock.Now())
	if err != nil {
		server.fail(contextGin, route, "authority."+route+".mint", err)
		return
	}
	_, refreshOpaque, err := server.refreshTokens.Issue(contextGin.Request.Context(), user.ID, server.refreshExpiry(), previousTokenID)
	if err != nil {
		server.fail(contextGin, route, "authority."+route+".issue", err)
		return
	}
	server.metrics.observe(route, outcomeSuccess)
	server.logger.Info("grant issued",
		zap.String("code", "authority."+route+".success"),
		zap.String("user_id", user.ID),
		zap.String("tenant_id", user.TenantID))
	contextGin.JSON(status, tokenResponse(server.configuration.PayloadStyle, accessToken, refreshOpaque, server.configuration.AccessTTL, user))
}

func (server *Server) fail(contextGin *gin.Context, route string, code string, err error) {
	server.metrics.observe(route, outcomeError)
	if errors.Is(err, context.Canceled) {
		contextGin.Abort()
		return
	}
	server.logger.Error("authority request failed", zap.String("code", code), zap.Error(err))
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func readDocument(contextGin *gin.Context) (gjson.Result, bool) {
	body, err := io.ReadAll(io.LimitReader(contextGin.Request.Body, maxRequestSize))
	if err != nil || !gjson.ValidBytes(body) {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return gjson.Result{}, false
	}
	document := gjson.ParseBytes(body)
	if !document.IsObject() {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return gjson.Result{}, false
	}
	return document, true
}

func isRefreshRejection(err error) bool {
	return errors.Is(err, ErrRefreshTokenNotFound) ||
		errors.Is(err, ErrRefreshTokenRevoked) ||
		errors.Is(err, ErrRefreshTokenExpired) ||
		errors.Is(err, ErrRefreshTokenEmptyOpaque)
}
