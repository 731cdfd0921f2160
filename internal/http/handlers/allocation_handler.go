// Allocation handlers: allocate, release, history.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetbook/internal/http/middleware"
	"fleetbook/internal/modules/allocation"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

type AllocationHandler struct {
	svc *allocation.Service
}

func NewAllocationHandler(svc *allocation.Service) *AllocationHandler {
	return &AllocationHandler{svc: svc}
}

type allocateReq struct {
	TripID          string    `json:"trip_id" binding:"required"`
	PickupLocation  string    `json:"pickup_location" binding:"required"`
	PickupLatitude  float64   `json:"pickup_latitude" binding:"min=-90,max=90"`
	PickupLongitude float64   `json:"pickup_longitude" binding:"min=-180,max=180"`
	DropLocation    string    `json:"drop_location" binding:"required"`
	DropLatitude    float64   `json:"drop_latitude" binding:"min=-90,max=90"`
	DropLongitude   float64   `json:"drop_longitude" binding:"min=-180,max=180"`
	PickupDatetime  time.Time `json:"pickup_datetime" binding:"required"`
	VehicleCategory string    `json:"vehicle_category" binding:"required"`
	Passengers      int       `json:"passengers" binding:"omitempty,min=1"`

	CompanyID        *string `json:"company_id"`
	TripType         *string `json:"trip_type" binding:"omitempty,oneof=regular emergency corporate shuttle"`
	AllocationRuleID *string `json:"allocation_rule_id"`
}

type allocateResp struct {
	Success         bool                         `json:"success"`
	Message         string                       `json:"message"`
	Error           string                       `json:"error,omitempty"`
	Vehicle         *allocation.AllocatedVehicle `json:"vehicle,omitempty"`
	Driver          *allocation.AllocatedDriver  `json:"driver,omitempty"`
	Score           *allocation.ScoreBreakdown   `json:"score,omitempty"`
	EstimatedCost   float64                      `json:"estimated_cost,omitempty"`
	AllocationLogID string                       `json:"allocation_log_id,omitempty"`
	RuleUsed        string                       `json:"rule_used,omitempty"`
}

// Allocate runs the engine for one booking attempt. Domain failures come
// back as success=false with an error code; only malformed input and auth
// problems use non-200 statuses, so callers branch on the outcome without
// status-code gymnastics.
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req allocateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Passengers == 0 {
		req.Passengers = 1
	}

	actor := types.ID(middleware.Actor(c))
	result := h.svc.Allocate(c.Request.Context(), toEngineRequest(req), actor)

	if !result.Success {
		c.JSON(http.StatusOK, allocateResp{
			Success: false,
			Message: "Allocation failed",
			Error:   errorCode(result.Err),
		})
		return
	}
	c.JSON(http.StatusOK, allocateResp{
		Success:         true,
		Message:         "Vehicle and driver allocated successfully",
		Vehicle:         result.Vehicle,
		Driver:          result.Driver,
		Score:           result.Score,
		EstimatedCost:   result.EstimatedCost,
		AllocationLogID: result.LedgerID,
		RuleUsed:        result.RuleUsed,
	})
}

// Release returns a pair to the pool; called by the trip collaborator on
// completion or cancellation.
func (h *AllocationHandler) Release(c *gin.Context) {
	vehicleID := c.Param("vehicleID")
	driverID := c.Param("driverID")
	if vehicleID == "" || driverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle and driver ids are required"})
		return
	}

	if err := h.svc.Release(c.Request.Context(), types.ID(vehicleID), types.ID(driverID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Vehicle " + vehicleID + " and driver " + driverID + " released successfully",
	})
}

// History returns the allocation audit trail for a trip, most recent first.
func (h *AllocationHandler) History(c *gin.Context) {
	tripID := c.Param("tripID")
	if tripID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trip id is required"})
		return
	}

	entries, err := h.svc.History(c.Request.Context(), types.ID(tripID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "entries": entries})
}

func toEngineRequest(req allocateReq) allocation.Request {
	out := allocation.Request{
		TripID:          types.ID(req.TripID),
		PickupLocation:  req.PickupLocation,
		PickupLat:       req.PickupLatitude,
		PickupLng:       req.PickupLongitude,
		DropLocation:    req.DropLocation,
		DropLat:         req.DropLatitude,
		DropLng:         req.DropLongitude,
		PickupAt:        req.PickupDatetime,
		VehicleCategory: req.VehicleCategory,
		Passengers:      req.Passengers,
	}
	if req.CompanyID != nil {
		id := types.ID(*req.CompanyID)
		out.CompanyID = &id
	}
	if req.TripType != nil {
		t := rules.TripType(*req.TripType)
		out.TripType = &t
	}
	if req.AllocationRuleID != nil {
		id := types.ID(*req.AllocationRuleID)
		out.RuleID = &id
	}
	return out
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		return "rule_not_found"
	case errors.Is(err, allocation.ErrNoCandidates):
		return "no_candidates_available"
	case errors.Is(err, allocation.ErrExhausted):
		return "allocation_exhausted"
	case errors.Is(err, allocation.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "allocation_failed"
	}
}
