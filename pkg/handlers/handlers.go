package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/auth"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/arnavshah/turni-api-go/pkg/scheduler"
	"github.com/arnavshah/turni-api-go/pkg/scope"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	callerKey = "caller"
	apiKeyKey = "apiKey"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB       *gorm.DB
	Repo     *database.Repository
	Engine   *scheduler.Engine
	Resolver *scope.Resolver
	Auth     *auth.Auth
	Log      *zap.Logger
}

// NewHandler wires handlers around an engine built on the same database
func NewHandler(db *gorm.DB, engine *scheduler.Engine, a *auth.Auth, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	registerValidation()
	repo := database.NewRepository(db)
	return &Handler{
		DB:       db,
		Repo:     repo,
		Engine:   engine,
		Resolver: scope.NewResolver(repo),
		Auth:     a,
		Log:      log,
	}
}

// RequestLogger writes one access log line per request
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.Log.Error("request", fields...)
			return
		}
		h.Log.Info("request", fields...)
	}
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	// Strip "Bearer " if present
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(callerKey, callerFromClaims(claims))
		c.Next()
	}
}

// CrossTenantOnly rejects callers that are not cross-tenant administrators
func (h *Handler) CrossTenantOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if callerFrom(c).Role != scope.RoleCrossTenant {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Cross-tenant administrator required"})
			return
		}
		c.Next()
	}
}

// CallerMiddleware accepts either a JWT or a tenant-bound HMAC API key.
// API key callers act as administrators of the key's tenant.
func (h *Handler) CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key or token required"})
			return
		}

		if claims, err := h.Auth.VerifyToken(token); err == nil {
			c.Set(callerKey, callerFromClaims(claims))
			c.Next()
			return
		}

		tenantCode, err := h.Auth.VerifyHMACKey(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			return
		}
		ctx := c.Request.Context()
		tenantID, err := h.Repo.TenantByCode(ctx, tenantCode)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown tenant for API Key"})
			return
		}

		// Fetch or create API key record to track usage
		var apiKey database.APIKey
		db := h.DB.WithContext(ctx)
		if err := db.Unscoped().Where(database.APIKey{Key: token}).Limit(1).Find(&apiKey).Error; err != nil {
			h.Log.Error("api key lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not verify API Key"})
			return
		}
		if apiKey.DeletedAt.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key revoked"})
			return
		}
		if apiKey.ID == 0 {
			err = db.Where(database.APIKey{Key: token}).FirstOrCreate(&apiKey, database.APIKey{
				Key:        token,
				KeyPreview: auth.KeyPreview(token),
				Name:       tenantCode,
				TenantID:   tenantID,
				RateLimit:  10000,
			}).Error
			if err != nil {
				h.Log.Error("api key registration failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not verify API Key"})
				return
			}
		}
		if apiKey.TenantID != tenantID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key tenant mismatch"})
			return
		}

		if h.overLimit(c, apiKey) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily rate limit exceeded"})
			return
		}

		now := time.Now()
		if err := db.Model(&apiKey).Update("last_used", now).Error; err != nil {
			h.Log.Warn("update key last_used failed", zap.Uint("key_id", apiKey.ID), zap.Error(err))
		}

		c.Set(apiKeyKey, &apiKey)
		c.Set(callerKey, scope.Caller{Name: apiKey.Name, Role: scope.RoleAdmin, HomeTenantID: tenantID})
		c.Next()
	}
}

func callerFromClaims(claims *auth.Claims) scope.Caller {
	return scope.Caller{
		Name:         claims.Username,
		Role:         scope.ParseRole(claims.Role),
		HomeTenantID: claims.TenantID,
	}
}

func callerFrom(c *gin.Context) scope.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(scope.Caller); ok {
			return caller
		}
	}
	return scope.Caller{}
}

// Health pings the database
func (h *Handler) Health(c *gin.Context) {
	if err := h.Repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Login handles user login and issues a token carrying role and home tenant
func (h *Handler) Login(c *gin.Context) {
	var req loginInput
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	var user database.User
	if err := h.DB.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	var tenantID uint
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	token, err := h.Auth.CreateToken(user.Username, user.Role, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey creates a new tenant-bound API key using the HMAC strategy
func (h *Handler) GenerateKey(c *gin.Context) {
	var req keyInput
	if !h.bind(c, c.ShouldBindJSON, &req) {
		return
	}

	ctx := c.Request.Context()
	tenantID, err := h.Repo.TenantByCode(ctx, req.TenantCode)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if req.RateLimit == 0 {
		req.RateLimit = 10000
	}

	key := h.Auth.GenerateHMACKey(req.TenantCode)
	apiKey := database.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: auth.KeyPreview(key),
		TenantID:   tenantID,
		RateLimit:  req.RateLimit,
	}

	if err := h.DB.WithContext(ctx).Create(&apiKey).Error; err != nil {
		h.Log.Error("create api key failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create key record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        apiKey.ID,
		"name":      req.Name,
		"tenant_id": tenantID,
		"key":       key,
	})
}

// ListKeys returns all API keys, optionally for one tenant
func (h *Handler) ListKeys(c *gin.Context) {
	var q keyListQuery
	if !h.bind(c, c.ShouldBindQuery, &q) {
		return
	}

	db := h.DB.WithContext(c.Request.Context()).Order("id")
	if q.TenantID != nil {
		db = db.Where("congregazione_id = ?", *q.TenantID)
	}
	keys := []database.APIKey{}
	if err := db.Find(&keys).Error; err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	id, ok := h.uintParam(c, "id")
	if !ok {
		return
	}
	res := h.DB.WithContext(c.Request.Context()).Delete(&database.APIKey{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete key"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit updates the rate limit for a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id, ok := h.uintParam(c, "id")
	if !ok {
		return
	}
	var req keyLimitInput

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			h.writeBindError(c, err)
			return
		}
	}

	res := h.DB.WithContext(c.Request.Context()).Model(&database.APIKey{}).Where("id = ?", id).Update("rate_limit", req.RateLimit)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update key limit"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// writeError maps domain errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var re *scheduler.RangeError
	if errors.As(err, &re) {
		body["limit"] = re.Limit
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scope.ErrMissingTenant), errors.Is(err, scheduler.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, scope.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrTenantNotFound),
		errors.Is(err, models.ErrStationNotFound),
		errors.Is(err, models.ErrSlotNotFound),
		errors.Is(err, models.ErrAssignmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrRangeTooLarge):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
