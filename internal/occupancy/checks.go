package occupancy

import (
	"fmt"
	"math"

	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/models"
)

// CheckBedCapacity rejects adding a bed to room when it already holds
// currentBeds >= capacity beds.
func CheckBedCapacity(room models.Room, currentBeds int) error {
	if currentBeds >= room.Capacity {
		return &apperr.CapacityError{RoomID: room.ID, Capacity: room.Capacity}
	}
	return nil
}

// CheckBedNumber is a pre-flight check for a new bed number. Storage still
// enforces uniqueness, so passing here does not guarantee the insert.
func CheckBedNumber(beds []models.Bed, bedNumber int) error {
	if bedNumber < 1 {
		return apperr.Validation("bed_number", "bed number must be at least 1")
	}
	for _, b := range beds {
		if b.BedNumber == bedNumber {
			return &apperr.ConflictError{Message: fmt.Sprintf("bed number %d already exists in this room", bedNumber)}
		}
	}
	return nil
}

// PortfolioStats totals the statistics of several properties.
type PortfolioStats struct {
	Properties     int     `json:"properties"`
	TotalRooms     int     `json:"total_rooms"`
	TotalBeds      int     `json:"total_beds"`
	OccupiedBeds   int     `json:"occupied_beds"`
	AvailableBeds  int     `json:"available_beds"`
	OccupancyRate  int     `json:"occupancy_rate"`
	MinimumPrice   float64 `json:"minimum_price"`
	ListedCapacity int     `json:"listed_capacity"`
}

// Summarize aggregates an agent's properties for a dashboard.
func Summarize(properties []models.Property) PortfolioStats {
	out := PortfolioStats{Properties: len(properties)}
	priced := false
	for _, p := range properties {
		s := AggregateProperty(p)
		out.TotalRooms += s.TotalRooms
		out.TotalBeds += s.TotalBeds
		out.OccupiedBeds += s.OccupiedBeds
		out.ListedCapacity += s.TotalCapacity
		if s.TotalRooms > 0 && (!priced || s.MinimumPrice < out.MinimumPrice) {
			out.MinimumPrice = s.MinimumPrice
			priced = true
		}
	}
	out.AvailableBeds = out.TotalBeds - out.OccupiedBeds
	out.OccupancyRate = int(math.Round(percent(out.OccupiedBeds, out.TotalBeds)))
	return out
}
