// Package inventory manages the rooms and beds of a property on behalf of
// its agent and serves the occupancy statistics derived from them.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/occupancy"
	"github.com/padhub/backend/internal/resilience"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type PropertyStore interface {
	Owner(ctx context.Context, propertyID uuid.UUID) (uuid.UUID, error)
	GetWithRooms(ctx context.Context, propertyID uuid.UUID) (*models.Property, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Property, error)
}

type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	DeleteRoom(ctx context.Context, id uuid.UUID) error
	ListBeds(ctx context.Context, roomID uuid.UUID) ([]models.Bed, error)
	CreateBed(ctx context.Context, bed *models.Bed) error
	GetBed(ctx context.Context, id uuid.UUID) (*models.Bed, error)
	SetBedOccupied(ctx context.Context, id uuid.UUID, occupied bool) (*models.Bed, error)
	DeleteBed(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	properties PropertyStore
	rooms      RoomStore
	feed       gateway.Feed
	stats      *cache.Cache
	validate   *validator.Validate
	retry      resilience.Options
	bus        *notify.Bus
	logger     *zap.Logger

	// versions counts inventory changes per property so a stats load that
	// raced a change is not cached.
	mu       sync.Mutex
	versions map[uuid.UUID]uint64
}

func NewService(
	properties PropertyStore,
	rooms RoomStore,
	feed gateway.Feed,
	statsTTL time.Duration,
	retry resilience.Options,
	bus *notify.Bus,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.Logger == nil {
		retry.Logger = logger
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Service{
		properties: properties,
		rooms:      rooms,
		feed:       feed,
		stats:      cache.New(statsTTL, 2*statsTTL),
		validate:   validate,
		retry:      retry,
		bus:        bus,
		logger:     logger,
		versions:   make(map[uuid.UUID]uint64),
	}
}

// AddRoom creates a room in propertyID. Only the owning agent may do so.
func (s *Service) AddRoom(ctx context.Context, userID, propertyID uuid.UUID, req models.CreateRoomRequest) (*models.Room, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.authorizeProperty(ctx, propertyID, userID); err != nil {
		return nil, err
	}

	room := &models.Room{
		PropertyID:  propertyID,
		Name:        strings.TrimSpace(req.Name),
		Type:        req.Type,
		PricePerBed: req.PricePerBed,
		Capacity:    req.Capacity,
		Bathrooms:   req.Bathrooms,
		IsAvailable: true,
	}
	if req.IsAvailable != nil {
		room.IsAvailable = *req.IsAvailable
	}

	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, s.reject(userID, "Room not added", err)
	}

	s.changed(ctx, propertyID, gateway.TableRooms, gateway.EventInsert, room)
	s.logger.Info("room added",
		zap.String("property_id", propertyID.String()),
		zap.String("room_id", room.ID.String()),
	)
	return room, nil
}

// DeleteRoom removes a room together with its beds.
func (s *Service) DeleteRoom(ctx context.Context, userID, roomID uuid.UUID) error {
	room, err := s.ownedRoom(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(ctx, roomID); err != nil {
		return s.reject(userID, "Room not deleted", err)
	}

	s.changed(ctx, room.PropertyID, gateway.TableRooms, gateway.EventDelete, room)
	return nil
}

// AddBed adds a bed to roomID after checking capacity and the bed number.
// The store re-checks both under a lock, so losing a race still fails
// cleanly.
func (s *Service) AddBed(ctx context.Context, userID, roomID uuid.UUID, req models.CreateBedRequest) (*models.Bed, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	room, err := s.ownedRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	beds, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) ([]models.Bed, error) {
		return s.rooms.ListBeds(ctx, roomID)
	}, s.retry)
	if err != nil {
		return nil, err
	}
	if err := occupancy.CheckBedCapacity(*room, len(beds)); err != nil {
		return nil, s.reject(userID, "Bed not added", err)
	}
	if err := occupancy.CheckBedNumber(beds, req.BedNumber); err != nil {
		return nil, s.reject(userID, "Bed not added", err)
	}

	bed := &models.Bed{RoomID: roomID, BedNumber: req.BedNumber}
	if err := s.rooms.CreateBed(ctx, bed); err != nil {
		return nil, s.reject(userID, "Bed not added", err)
	}

	s.changed(ctx, room.PropertyID, gateway.TableBeds, gateway.EventInsert, bed)
	s.bus.Success(userID, "Bed added", fmt.Sprintf("bed %d added to %s", bed.BedNumber, room.Name))
	return bed, nil
}

// SetBedOccupied toggles a bed's occupancy.
func (s *Service) SetBedOccupied(ctx context.Context, userID, bedID uuid.UUID, req models.UpdateBedRequest) (*models.Bed, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	_, room, err := s.ownedBed(ctx, bedID, userID)
	if err != nil {
		return nil, err
	}

	bed, err := s.rooms.SetBedOccupied(ctx, bedID, *req.IsOccupied)
	if err != nil {
		return nil, s.reject(userID, "Bed not updated", err)
	}

	s.changed(ctx, room.PropertyID, gateway.TableBeds, gateway.EventUpdate, bed)
	return bed, nil
}

// DeleteBed removes a bed.
func (s *Service) DeleteBed(ctx context.Context, userID, bedID uuid.UUID) error {
	bed, room, err := s.ownedBed(ctx, bedID, userID)
	if err != nil {
		return err
	}
	if err := s.rooms.DeleteBed(ctx, bedID); err != nil {
		return s.reject(userID, "Bed not deleted", err)
	}

	s.changed(ctx, room.PropertyID, gateway.TableBeds, gateway.EventDelete, bed)
	return nil
}

// PropertyStats returns the aggregated statistics of propertyID. Results are
// cached until the TTL passes or the property's inventory changes.
func (s *Service) PropertyStats(ctx context.Context, propertyID uuid.UUID) (occupancy.PropertyStats, error) {
	key := propertyID.String()
	if cached, ok := s.stats.Get(key); ok {
		return cached.(occupancy.PropertyStats), nil
	}

	s.mu.Lock()
	version := s.versions[propertyID]
	s.mu.Unlock()

	property, err := s.property(ctx, propertyID)
	if err != nil {
		return occupancy.PropertyStats{}, err
	}
	stats := occupancy.AggregateProperty(*property)

	s.mu.Lock()
	if s.versions[propertyID] == version {
		s.stats.Set(key, stats, cache.DefaultExpiration)
	}
	s.mu.Unlock()
	return stats, nil
}

// RoomStats returns the per-room breakdown of propertyID.
func (s *Service) RoomStats(ctx context.Context, propertyID uuid.UUID) ([]occupancy.RoomStats, error) {
	property, err := s.property(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return occupancy.RoomBreakdowns(*property), nil
}

// Portfolio totals the statistics of every property agentID lists.
func (s *Service) Portfolio(ctx context.Context, agentID uuid.UUID) (occupancy.PortfolioStats, error) {
	if agentID == uuid.Nil {
		return occupancy.PortfolioStats{}, &apperr.AuthenticationError{}
	}
	properties, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) ([]models.Property, error) {
		return s.properties.ListByAgent(ctx, agentID)
	}, s.retry)
	if err != nil {
		return occupancy.PortfolioStats{}, err
	}
	return occupancy.Summarize(properties), nil
}

func (s *Service) property(ctx context.Context, propertyID uuid.UUID) (*models.Property, error) {
	return resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (*models.Property, error) {
		return s.properties.GetWithRooms(ctx, propertyID)
	}, s.retry)
}

func (s *Service) authorizeProperty(ctx context.Context, propertyID, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return &apperr.AuthenticationError{}
	}
	owner, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (uuid.UUID, error) {
		return s.properties.Owner(ctx, propertyID)
	}, s.retry)
	if err != nil {
		return err
	}
	if owner != userID {
		return &apperr.PermissionError{Message: "only the listing agent can change this property"}
	}
	return nil
}

func (s *Service) ownedRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	if userID == uuid.Nil {
		return nil, &apperr.AuthenticationError{}
	}
	room, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (*models.Room, error) {
		return s.rooms.GetRoom(ctx, roomID)
	}, s.retry)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeProperty(ctx, room.PropertyID, userID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) ownedBed(ctx context.Context, bedID, userID uuid.UUID) (*models.Bed, *models.Room, error) {
	if userID == uuid.Nil {
		return nil, nil, &apperr.AuthenticationError{}
	}
	bed, err := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (*models.Bed, error) {
		return s.rooms.GetBed(ctx, bedID)
	}, s.retry)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.ownedRoom(ctx, bed.RoomID, userID)
	if err != nil {
		return nil, nil, err
	}
	return bed, room, nil
}

// check runs struct-tag validation and converts the first failure into a
// ValidationError.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation(fe.Field(), "%s %s", fe.Field(), describe(fe))
	}
	return apperr.Validation("", "%v", err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

// reject tells the user why a change was refused and passes err on.
func (s *Service) reject(userID uuid.UUID, title string, err error) error {
	s.bus.Error(userID, title, apperr.UserMessage(err))
	return err
}

// changed drops cached statistics for propertyID and announces the change.
func (s *Service) changed(ctx context.Context, propertyID uuid.UUID, table string, typ gateway.EventType, record any) {
	s.mu.Lock()
	s.versions[propertyID]++
	s.stats.Delete(propertyID.String())
	s.mu.Unlock()

	if s.feed == nil {
		return
	}
	evt, err := gateway.NewChangeEvent(table, typ, record)
	if err == nil {
		err = s.feed.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Warn("failed to publish inventory change", zap.String("table", table), zap.Error(err))
	}
}
