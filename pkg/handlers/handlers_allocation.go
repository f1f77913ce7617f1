package handlers

import (
	"net/http"

	"github.com/arnavshah/turni-api-go/pkg/scope"
	"github.com/gin-gonic/gin"
)

// resolveManaged checks the caller may manage allocations and returns the concrete tenant
func (h *Handler) resolveManaged(c *gin.Context, req scope.Request) (uint, bool) {
	caller := callerFrom(c)
	if err := scope.CanManage(caller); err != nil {
		h.writeError(c, err)
		return 0, false
	}
	sc, err := h.Resolver.Resolve(c.Request.Context(), caller, req)
	if err != nil {
		h.writeError(c, err)
		return 0, false
	}
	tenantID, err := sc.Require()
	if err != nil {
		h.writeError(c, err)
		return 0, false
	}
	return tenantID, true
}

// RunAllocation fills open capacity for a tenant over a date range
func (h *Handler) RunAllocation(c *gin.Context) {
	var in rangeInput
	if !h.bind(c, c.ShouldBindJSON, &in) {
		return
	}
	tenantID, ok := h.resolveManaged(c, in.scopeRequest())
	if !ok {
		return
	}

	summary, err := h.Engine.Run(c.Request.Context(), in.runRequest(tenantID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.RecordUsage(c, tenantID, usageDelta{Created: summary.Created, ToppedUp: summary.ToppedUp})
	c.JSON(http.StatusOK, summary)
}

// ResetAllocation deletes a tenant's assignments in range
func (h *Handler) ResetAllocation(c *gin.Context) {
	var in rangeInput
	if !h.bind(c, c.ShouldBindJSON, &in) {
		return
	}
	tenantID, ok := h.resolveManaged(c, in.scopeRequest())
	if !ok {
		return
	}

	summary, err := h.Engine.Reset(c.Request.Context(), in.runRequest(tenantID))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.RecordUsage(c, tenantID, usageDelta{Deleted: int(summary.Deleted)})
	c.JSON(http.StatusOK, summary)
}

// Coverage reports staffing levels; cross-tenant callers naming no tenant see every tenant
func (h *Handler) Coverage(c *gin.Context) {
	var in rangeInput
	if !h.bind(c, c.ShouldBindQuery, &in) {
		return
	}
	caller := callerFrom(c)
	if err := scope.CanManage(caller); err != nil {
		h.writeError(c, err)
		return
	}
	sc, err := h.Resolver.Resolve(c.Request.Context(), caller, in.scopeRequest())
	if err != nil {
		h.writeError(c, err)
		return
	}

	cells, err := h.Engine.Coverage(c.Request.Context(), sc.Filter(), in.DateStart, in.DateEnd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cells": cells})
}

// ListAssignments returns the tenant's assignments in range with their volunteers
func (h *Handler) ListAssignments(c *gin.Context) {
	var in rangeInput
	if !h.bind(c, c.ShouldBindQuery, &in) {
		return
	}
	sc, err := h.Resolver.Resolve(c.Request.Context(), callerFrom(c), in.scopeRequest())
	if err != nil {
		h.writeError(c, err)
		return
	}
	tenantID, err := sc.Require()
	if err != nil {
		h.writeError(c, err)
		return
	}

	views, err := h.Engine.Assignments(c.Request.Context(), in.runRequest(tenantID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": views})
}

// Unassign removes one volunteer from an assignment
func (h *Handler) Unassign(c *gin.Context) {
	assignmentID, ok := h.uintParam(c, "id")
	if !ok {
		return
	}
	volunteerID, ok := h.uintParam(c, "volunteer_id")
	if !ok {
		return
	}
	var q tenantQuery
	if !h.bind(c, c.ShouldBindQuery, &q) {
		return
	}
	tenantID, ok := h.resolveManaged(c, q.scopeRequest())
	if !ok {
		return
	}

	if err := h.Engine.Unassign(c.Request.Context(), tenantID, assignmentID, volunteerID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Volunteer unassigned"})
}
