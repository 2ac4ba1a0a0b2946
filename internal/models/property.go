package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RoomType string

const (
	RoomSingle RoomType = "single"
	RoomDouble RoomType = "double"
	RoomTriple RoomType = "triple"
	RoomQuad   RoomType = "quad"
)

// Property is the listing root. Amenities is free-form JSON and may be nil
// or only partially populated.
type Property struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	AgentID   uuid.UUID      `json:"agent_id" db:"agent_id"`
	Title     string         `json:"title" db:"title"`
	Location  string         `json:"location" db:"location"`
	Amenities map[string]any `json:"amenities,omitempty" db:"amenities"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	Rooms     []Room         `json:"rooms,omitempty"`
}

type Room struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PropertyID  uuid.UUID `json:"property_id" db:"property_id"`
	Name        string    `json:"name" db:"name"`
	Type        RoomType  `json:"type" db:"type"`
	PricePerBed float64   `json:"price_per_bed" db:"price_per_bed"`
	Capacity    int       `json:"capacity" db:"capacity"`
	Bathrooms   int       `json:"bathrooms" db:"bathrooms"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Beds        []Bed     `json:"beds,omitempty"`
}

type Bed struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RoomID     uuid.UUID `json:"room_id" db:"room_id"`
	BedNumber  int       `json:"bed_number" db:"bed_number"`
	IsOccupied bool      `json:"is_occupied" db:"is_occupied"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsAvailable is the inverse of IsOccupied.
func (b Bed) IsAvailable() bool { return !b.IsOccupied }

// MarshalJSON adds the derived is_available field.
func (b Bed) MarshalJSON() ([]byte, error) {
	type bed Bed
	return json.Marshal(struct {
		bed
		IsAvailable bool `json:"is_available"`
	}{bed(b), b.IsAvailable()})
}

type CreateRoomRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Type        RoomType `json:"type" validate:"required,oneof=single double triple quad"`
	PricePerBed float64  `json:"price_per_bed" validate:"gte=0"`
	Capacity    int      `json:"capacity" validate:"required,min=1,max=10"`
	Bathrooms   int      `json:"bathrooms" validate:"gte=0,max=10"`
	IsAvailable *bool    `json:"is_available,omitempty"`
}

type CreateBedRequest struct {
	BedNumber int `json:"bed_number" validate:"required,min=1"`
}

type UpdateBedRequest struct {
	IsOccupied *bool `json:"is_occupied" validate:"required"`
}
