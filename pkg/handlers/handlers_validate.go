package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/arnavshah/turni-api-go/pkg/scope"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type loginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type keyInput struct {
	Name       string `json:"name" binding:"required,max=100"`
	TenantCode string `json:"tenant_code" binding:"required"`
	RateLimit  int    `json:"rate_limit" binding:"omitempty,min=1"`
}

type keyLimitInput struct {
	RateLimit int `json:"rate_limit" form:"rate_limit" binding:"required,min=1"`
}

type keyListQuery struct {
	TenantID *uint `form:"tenant_id"`
}

// rangeInput is the body of allocation and reset calls
type rangeInput struct {
	TenantID   *uint  `json:"tenant_id" form:"tenant_id"`
	TenantCode string `json:"tenant_code" form:"tenant_code"`
	DateStart  string `json:"date_start" form:"date_start" binding:"required,datetime=2006-01-02"`
	DateEnd    string `json:"date_end" form:"date_end" binding:"required,datetime=2006-01-02"`
	StationID  *uint  `json:"station_id" form:"station_id" binding:"omitempty,min=1"`
	SlotID     *uint  `json:"slot_id" form:"slot_id" binding:"omitempty,min=1"`
}

func (in rangeInput) scopeRequest() scope.Request {
	return scope.Request{TenantID: in.TenantID, TenantCode: in.TenantCode}
}

func (in rangeInput) runRequest(tenantID uint) models.RunRequest {
	return models.RunRequest{
		TenantID:  tenantID,
		Start:     in.DateStart,
		End:       in.DateEnd,
		StationID: in.StationID,
		SlotID:    in.SlotID,
	}
}

type tenantQuery struct {
	TenantID   *uint  `form:"tenant_id"`
	TenantCode string `form:"tenant_code"`
}

func (q tenantQuery) scopeRequest() scope.Request {
	return scope.Request{TenantID: q.TenantID, TenantCode: q.TenantCode}
}

var validationOnce sync.Once

// registerValidation reports validation failures by their JSON or form names
func registerValidation() {
	validationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// bind runs a gin binder and writes a 400 when it fails
func (h *Handler) bind(c *gin.Context, binder func(any) error, obj any) bool {
	if err := binder(obj); err != nil {
		h.writeBindError(c, err)
		return false
	}
	return true
}

func (h *Handler) writeBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": fields})
}

func (h *Handler) uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}
