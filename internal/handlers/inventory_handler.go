package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/padhub/backend/internal/inventory"
	"github.com/padhub/backend/internal/models"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	inventory *inventory.Service
	logger    *zap.Logger
}

func NewInventoryHandler(svc *inventory.Service, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{inventory: svc, logger: logger}
}

// AddRoom creates a room in the property
func (h *InventoryHandler) AddRoom(c *gin.Context) {
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.inventory.AddRoom(c.Request.Context(), currentUser(c), propertyID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// DeleteRoom removes a room and its beds
func (h *InventoryHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.inventory.DeleteRoom(c.Request.Context(), currentUser(c), roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddBed adds a numbered bed to the room
func (h *InventoryHandler) AddBed(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.CreateBedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	bed, err := h.inventory.AddBed(c.Request.Context(), currentUser(c), roomID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, bed)
}

// UpdateBed sets whether the bed is occupied
func (h *InventoryHandler) UpdateBed(c *gin.Context) {
	bedID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateBedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	bed, err := h.inventory.SetBedOccupied(c.Request.Context(), currentUser(c), bedID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bed)
}

func (h *InventoryHandler) DeleteBed(c *gin.Context) {
	bedID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.inventory.DeleteBed(c.Request.Context(), currentUser(c), bedID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPropertyStats returns the aggregated occupancy of a property
func (h *InventoryHandler) GetPropertyStats(c *gin.Context) {
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.inventory.PropertyStats(c.Request.Context(), propertyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRoomStats returns the per-room breakdown of a property
func (h *InventoryHandler) GetRoomStats(c *gin.Context) {
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	rooms, err := h.inventory.RoomStats(c.Request.Context(), propertyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetPortfolio totals the occupancy of every property the caller lists
func (h *InventoryHandler) GetPortfolio(c *gin.Context) {
	portfolio, err := h.inventory.Portfolio(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}
