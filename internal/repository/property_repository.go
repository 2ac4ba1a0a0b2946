package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/models"
)

type PropertyRepository struct {
	db *database.DB
}

func NewPropertyRepository(db *database.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Owner returns the agent id of propertyID.
func (r *PropertyRepository) Owner(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	var agentID uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT agent_id FROM properties WHERE id = $1`, propertyID).Scan(&agentID)
	if err != nil {
		return uuid.Nil, notFoundOr("property", "get property owner", err)
	}
	return agentID, nil
}

// GetWithRooms fetches a property with its rooms and each room's beds.
func (r *PropertyRepository) GetWithRooms(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	query := `
		SELECT id, agent_id, title, location, amenities, created_at
		FROM properties
		WHERE id = $1
	`

	var amenities []byte
	property := &models.Property{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&property.ID,
		&property.AgentID,
		&property.Title,
		&property.Location,
		&amenities,
		&property.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr("property", "get property", err)
	}
	property.Amenities = decodeAmenities(amenities)

	rooms, err := r.loadRooms(ctx, []uuid.UUID{property.ID})
	if err != nil {
		return nil, err
	}
	property.Rooms = rooms[property.ID]
	return property, nil
}

// ListByAgent returns the agent's properties with rooms and beds, newest first.
func (r *PropertyRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Property, error) {
	query := `
		SELECT id, agent_id, title, location, amenities, created_at
		FROM properties
		WHERE agent_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, storageError("list properties", err)
	}
	defer rows.Close()

	properties := []models.Property{}
	ids := []uuid.UUID{}
	for rows.Next() {
		var p models.Property
		var amenities []byte
		if err := rows.Scan(&p.ID, &p.AgentID, &p.Title, &p.Location, &amenities, &p.CreatedAt); err != nil {
			return nil, storageError("scan property", err)
		}
		p.Amenities = decodeAmenities(amenities)
		properties = append(properties, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list properties", err)
	}
	if len(ids) == 0 {
		return properties, nil
	}

	rooms, err := r.loadRooms(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range properties {
		properties[i].Rooms = rooms[properties[i].ID]
	}
	return properties, nil
}

// loadRooms fetches rooms of the given properties and nests their beds.
func (r *PropertyRepository) loadRooms(ctx context.Context, propertyIDs []uuid.UUID) (map[uuid.UUID][]models.Room, error) {
	query := `
		SELECT id, property_id, name, type, price_per_bed, capacity, bathrooms, is_available, created_at
		FROM rooms
		WHERE property_id = ANY($1::uuid[])
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(uuidStrings(propertyIDs)))
	if err != nil {
		return nil, storageError("list rooms", err)
	}
	defer rows.Close()

	var rooms []models.Room
	roomIDs := []uuid.UUID{}
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.PropertyID,
			&room.Name,
			&room.Type,
			&room.PricePerBed,
			&room.Capacity,
			&room.Bathrooms,
			&room.IsAvailable,
			&room.CreatedAt,
		)
		if err != nil {
			return nil, storageError("scan room", err)
		}
		rooms = append(rooms, room)
		roomIDs = append(roomIDs, room.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list rooms", err)
	}

	beds, err := r.loadBeds(ctx, roomIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]models.Room)
	for _, room := range rooms {
		room.Beds = beds[room.ID]
		out[room.PropertyID] = append(out[room.PropertyID], room)
	}
	return out, nil
}

func (r *PropertyRepository) loadBeds(ctx context.Context, roomIDs []uuid.UUID) (map[uuid.UUID][]models.Bed, error) {
	out := make(map[uuid.UUID][]models.Bed)
	if len(roomIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT id, room_id, bed_number, is_occupied, created_at
		FROM beds
		WHERE room_id = ANY($1::uuid[])
		ORDER BY bed_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(uuidStrings(roomIDs)))
	if err != nil {
		return nil, storageError("list beds", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bed models.Bed
		if err := rows.Scan(&bed.ID, &bed.RoomID, &bed.BedNumber, &bed.IsOccupied, &bed.CreatedAt); err != nil {
			return nil, storageError("scan bed", err)
		}
		out[bed.RoomID] = append(out[bed.RoomID], bed)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list beds", err)
	}
	return out, nil
}

// decodeAmenities tolerates NULL and malformed JSON; amenities are advisory.
func decodeAmenities(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
