package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/database"
	"github.com/padhub/backend/internal/models"
)

type RoomRepository struct {
	db *database.DB
}

func NewRoomRepository(db *database.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateRoom inserts room and fills in ID and CreatedAt.
func (r *RoomRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}

	query := `
		INSERT INTO rooms (id, property_id, name, type, price_per_bed, capacity, bathrooms, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		room.ID,
		room.PropertyID,
		room.Name,
		room.Type,
		room.PricePerBed,
		room.Capacity,
		room.Bathrooms,
		room.IsAvailable,
	).Scan(&room.CreatedAt)
	if err != nil {
		if isCode(err, codeForeignKeyViolation) {
			return &apperr.NotFoundError{Resource: "property"}
		}
		return storageError("create room", err)
	}
	return nil
}

// GetRoom retrieves a room without its beds.
func (r *RoomRepository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `
		SELECT id, property_id, name, type, price_per_bed, capacity, bathrooms, is_available, created_at
		FROM rooms
		WHERE id = $1
	`

	room := &models.Room{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
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
		return nil, notFoundOr("room", "get room", err)
	}
	return room, nil
}

// DeleteRoom removes the room's beds and then the room, atomically.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM beds WHERE room_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &apperr.NotFoundError{Resource: "room"}
		}
		return nil
	})
	return passAppErr(err, "delete room")
}

// ListBeds returns the beds of roomID ordered by bed number.
func (r *RoomRepository) ListBeds(ctx context.Context, roomID uuid.UUID) ([]models.Bed, error) {
	query := `
		SELECT id, room_id, bed_number, is_occupied, created_at
		FROM beds
		WHERE room_id = $1
		ORDER BY bed_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, storageError("list beds", err)
	}
	defer rows.Close()

	beds := []models.Bed{}
	for rows.Next() {
		var bed models.Bed
		if err := rows.Scan(&bed.ID, &bed.RoomID, &bed.BedNumber, &bed.IsOccupied, &bed.CreatedAt); err != nil {
			return nil, storageError("scan bed", err)
		}
		beds = append(beds, bed)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list beds", err)
	}
	return beds, nil
}

// CreateBed inserts bed under a lock on its room so the capacity check and
// the insert cannot race. Duplicate bed numbers are rejected by the
// UNIQUE(room_id, bed_number) constraint.
func (r *RoomRepository) CreateBed(ctx context.Context, bed *models.Bed) error {
	if bed.ID == uuid.Nil {
		bed.ID = uuid.New()
	}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var capacity int
		err := tx.QueryRowContext(ctx, `SELECT capacity FROM rooms WHERE id = $1 FOR UPDATE`, bed.RoomID).Scan(&capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return &apperr.NotFoundError{Resource: "room"}
		}
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM beds WHERE room_id = $1`, bed.RoomID).Scan(&count); err != nil {
			return err
		}
		if count >= capacity {
			return &apperr.CapacityError{RoomID: bed.RoomID, Capacity: capacity}
		}

		query := `
			INSERT INTO beds (id, room_id, bed_number, is_occupied)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`
		err = tx.QueryRowContext(ctx, query, bed.ID, bed.RoomID, bed.BedNumber, bed.IsOccupied).Scan(&bed.CreatedAt)
		if isCode(err, codeUniqueViolation) {
			return &apperr.ConflictError{Message: fmt.Sprintf("bed number %d already exists in this room", bed.BedNumber)}
		}
		return err
	})
	return passAppErr(err, "create bed")
}

// GetBed retrieves a bed by ID
func (r *RoomRepository) GetBed(ctx context.Context, id uuid.UUID) (*models.Bed, error) {
	query := `SELECT id, room_id, bed_number, is_occupied, created_at FROM beds WHERE id = $1`

	bed := &models.Bed{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&bed.ID, &bed.RoomID, &bed.BedNumber, &bed.IsOccupied, &bed.CreatedAt)
	if err != nil {
		return nil, notFoundOr("bed", "get bed", err)
	}
	return bed, nil
}

// SetBedOccupied flips the occupancy flag and returns the updated bed.
func (r *RoomRepository) SetBedOccupied(ctx context.Context, id uuid.UUID, occupied bool) (*models.Bed, error) {
	query := `
		UPDATE beds SET is_occupied = $2
		WHERE id = $1
		RETURNING id, room_id, bed_number, is_occupied, created_at
	`

	bed := &models.Bed{}
	err := r.db.QueryRowContext(ctx, query, id, occupied).Scan(&bed.ID, &bed.RoomID, &bed.BedNumber, &bed.IsOccupied, &bed.CreatedAt)
	if err != nil {
		return nil, notFoundOr("bed", "update bed", err)
	}
	return bed, nil
}

// DeleteBed deletes a bed by ID
func (r *RoomRepository) DeleteBed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM beds WHERE id = $1`, id)
	if err != nil {
		return storageError("delete bed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("delete bed", err)
	}
	if n == 0 {
		return &apperr.NotFoundError{Resource: "bed"}
	}
	return nil
}

// passAppErr lets typed apperr values through a transaction unchanged and
// maps everything else as a storage failure.
func passAppErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var notFound *apperr.NotFoundError
	if errors.As(err, &notFound) || apperr.IsValidation(err) {
		return err
	}
	return storageError(op, err)
}
