// Package occupancy derives bed, room and property statistics from nested
// property -> rooms -> beds results. Everything here is pure; missing data
// degrades to zero values instead of failing.
package occupancy

import (
	"math"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/models"
)

// PropertyStats is the flat summary of one property. Percentages are whole
// numbers. CapacityUtilization can exceed 100 when a room holds more beds
// than its nominal capacity.
type PropertyStats struct {
	PropertyID          uuid.UUID    `json:"property_id"`
	TotalRooms          int          `json:"total_rooms"`
	AvailableRooms      int          `json:"available_rooms"`
	TotalBeds           int          `json:"total_beds"`
	OccupiedBeds        int          `json:"occupied_beds"`
	AvailableBeds       int          `json:"available_beds"`
	TotalCapacity       int          `json:"total_capacity"`
	OccupancyRate       int          `json:"occupancy_rate"`
	CapacityUtilization int          `json:"capacity_utilization"`
	MinimumPrice        float64      `json:"minimum_price"`
	Amenities           AmenityFlags `json:"amenities"`
}

// RoomStats is the per-room breakdown. Percentages keep two decimals.
type RoomStats struct {
	RoomID              uuid.UUID       `json:"room_id"`
	Name                string          `json:"name"`
	Type                models.RoomType `json:"type"`
	PricePerBed         float64         `json:"price_per_bed"`
	Capacity            int             `json:"capacity"`
	TotalBeds           int             `json:"total_beds"`
	OccupiedBeds        int             `json:"occupied_beds"`
	AvailableBeds       int             `json:"available_beds"`
	OccupancyRate       float64         `json:"occupancy_rate"`
	CapacityUtilization float64         `json:"capacity_utilization"`
}

// AggregateProperty summarises p.
func AggregateProperty(p models.Property) PropertyStats {
	stats := PropertyStats{
		PropertyID: p.ID,
		TotalRooms: len(p.Rooms),
		Amenities:  ExtractAmenities(p.Amenities),
	}

	minPrice := math.Inf(1)
	for _, room := range p.Rooms {
		occupied := countOccupied(room.Beds)
		stats.TotalBeds += len(room.Beds)
		stats.OccupiedBeds += occupied
		stats.TotalCapacity += room.Capacity
		if room.IsAvailable && occupied < len(room.Beds) {
			stats.AvailableRooms++
		}
		if room.PricePerBed < minPrice {
			minPrice = room.PricePerBed
		}
	}

	stats.AvailableBeds = stats.TotalBeds - stats.OccupiedBeds
	stats.OccupancyRate = int(math.Round(percent(stats.OccupiedBeds, stats.TotalBeds)))
	stats.CapacityUtilization = int(math.Round(percent(stats.TotalBeds, stats.TotalCapacity)))
	if len(p.Rooms) > 0 {
		stats.MinimumPrice = minPrice
	}
	return stats
}

// RoomBreakdown computes the statistics of a single room.
func RoomBreakdown(room models.Room) RoomStats {
	occupied := countOccupied(room.Beds)
	return RoomStats{
		RoomID:              room.ID,
		Name:                room.Name,
		Type:                room.Type,
		PricePerBed:         room.PricePerBed,
		Capacity:            room.Capacity,
		TotalBeds:           len(room.Beds),
		OccupiedBeds:        occupied,
		AvailableBeds:       len(room.Beds) - occupied,
		OccupancyRate:       round2(percent(occupied, len(room.Beds))),
		CapacityUtilization: round2(percent(len(room.Beds), room.Capacity)),
	}
}

// RoomBreakdowns applies RoomBreakdown to every room of p, in order.
func RoomBreakdowns(p models.Property) []RoomStats {
	out := make([]RoomStats, 0, len(p.Rooms))
	for _, room := range p.Rooms {
		out = append(out, RoomBreakdown(room))
	}
	return out
}

func countOccupied(beds []models.Bed) int {
	n := 0
	for _, b := range beds {
		if b.IsOccupied {
			n++
		}
	}
	return n
}

// percent returns part/whole*100, or 0 when whole is not positive.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
