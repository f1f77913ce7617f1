package handlers

import (
	"net/http"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type usageDelta struct {
	Created  int
	ToppedUp int
	Deleted  int
}

// RecordUsage records allocation activity for a tenant using an efficient upsert
func (h *Handler) RecordUsage(c *gin.Context, tenantID uint, d usageDelta) {
	today := time.Now().Format(models.DateLayout)

	// Use OnConflict for a single-query upsert (supported by both Postgres and SQLite)
	err := h.DB.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "congregazione_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("request_count + ?", 1),
			"created":       gorm.Expr("created + ?", d.Created),
			"topped_up":     gorm.Expr("topped_up + ?", d.ToppedUp),
			"deleted":       gorm.Expr("deleted + ?", d.Deleted),
		}),
	}).Create(&database.APIUsage{
		TenantID:     tenantID,
		Date:         today,
		RequestCount: 1,
		Created:      d.Created,
		ToppedUp:     d.ToppedUp,
		Deleted:      d.Deleted,
	}).Error
	if err != nil {
		h.Log.Warn("record usage failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
	}
}

// overLimit reports whether the key's tenant already used today's allowance
func (h *Handler) overLimit(c *gin.Context, key database.APIKey) bool {
	if key.RateLimit <= 0 {
		return false
	}
	var usage database.APIUsage
	err := h.DB.WithContext(c.Request.Context()).
		Where("congregazione_id = ? AND date = ?", key.TenantID, time.Now().Format(models.DateLayout)).
		Limit(1).Find(&usage).Error
	if err != nil {
		h.Log.Warn("usage lookup failed", zap.Error(err))
		return false
	}
	return usage.RequestCount >= key.RateLimit
}

func (h *Handler) usageHistory(c *gin.Context, tenantID uint) ([]database.APIUsage, gin.H, error) {
	usage := []database.APIUsage{}
	if err := h.DB.WithContext(c.Request.Context()).
		Where("congregazione_id = ?", tenantID).
		Order("date desc").Limit(30).Find(&usage).Error; err != nil {
		return nil, nil, err
	}

	// Calculate totals
	var totalRequests, totalCreated, totalToppedUp, totalDeleted int64
	for _, u := range usage {
		totalRequests += int64(u.RequestCount)
		totalCreated += int64(u.Created)
		totalToppedUp += int64(u.ToppedUp)
		totalDeleted += int64(u.Deleted)
	}
	return usage, gin.H{
		"requests":  totalRequests,
		"created":   totalCreated,
		"topped_up": totalToppedUp,
		"deleted":   totalDeleted,
	}, nil
}

// GetMyUsage returns usage stats for the caller's tenant
func (h *Handler) GetMyUsage(c *gin.Context) {
	var q tenantQuery
	if !h.bind(c, c.ShouldBindQuery, &q) {
		return
	}
	tenantID, ok := h.resolveManaged(c, q.scopeRequest())
	if !ok {
		return
	}

	usage, totals, err := h.usageHistory(c, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	resp := gin.H{
		"tenant_id":     tenantID,
		"usage_history": usage,
		"totals":        totals,
	}
	if v, ok := c.Get(apiKeyKey); ok {
		apiKey := v.(*database.APIKey)
		resp["key_name"] = apiKey.Name
		resp["rate_limit"] = apiKey.RateLimit
	}
	c.JSON(http.StatusOK, resp)
}

// GetUsage returns usage stats for any tenant
func (h *Handler) GetUsage(c *gin.Context) {
	tenantID, ok := h.uintParam(c, "tenant_id")
	if !ok {
		return
	}
	usage, totals, err := h.usageHistory(c, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "usage": usage, "totals": totals})
}
