package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/apperr"
	"github.com/padhub/backend/internal/gateway"
	"github.com/padhub/backend/internal/models"
	"github.com/padhub/backend/internal/notify"
	"github.com/padhub/backend/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps properties, rooms and beds in memory and enforces the
// same constraints as the database.
type fakeStore struct {
	mu         sync.Mutex
	properties map[uuid.UUID]*models.Property
	rooms      map[uuid.UUID]*models.Room
	beds       map[uuid.UUID]*models.Bed
	getCalls   int

	// afterGet, when set, runs once after the next GetWithRooms snapshot.
	afterGet func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		properties: make(map[uuid.UUID]*models.Property),
		rooms:      make(map[uuid.UUID]*models.Room),
		beds:       make(map[uuid.UUID]*models.Bed),
	}
}

func (f *fakeStore) Owner(_ context.Context, propertyID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.properties[propertyID]
	if !ok {
		return uuid.Nil, &apperr.NotFoundError{Resource: "property"}
	}
	return p.AgentID, nil
}

func (f *fakeStore) GetWithRooms(_ context.Context, propertyID uuid.UUID) (*models.Property, error) {
	p, err := f.snapshot(propertyID)

	f.mu.Lock()
	hook := f.afterGet
	f.afterGet = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return p, err
}

func (f *fakeStore) snapshot(propertyID uuid.UUID) (*models.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.properties[propertyID]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "property"}
	}
	out := *p
	out.Rooms = nil
	for _, r := range f.rooms {
		if r.PropertyID != propertyID {
			continue
		}
		room := *r
		room.Beds = f.bedsOfLocked(r.ID)
		out.Rooms = append(out.Rooms, room)
	}
	return &out, nil
}

func (f *fakeStore) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Property, error) {
	f.mu.Lock()
	var ids []uuid.UUID
	for id, p := range f.properties {
		if p.AgentID == agentID {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()

	var out []models.Property
	for _, id := range ids {
		p, err := f.GetWithRooms(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) CreateRoom(_ context.Context, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.properties[room.PropertyID]; !ok {
		return &apperr.NotFoundError{Resource: "property"}
	}
	room.ID = uuid.New()
	room.CreatedAt = time.Now()
	stored := *room
	f.rooms[room.ID] = &stored
	return nil
}

func (f *fakeStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "room"}
	}
	out := *r
	return &out, nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; !ok {
		return &apperr.NotFoundError{Resource: "room"}
	}
	for bedID, b := range f.beds {
		if b.RoomID == id {
			delete(f.beds, bedID)
		}
	}
	delete(f.rooms, id)
	return nil
}

func (f *fakeStore) ListBeds(_ context.Context, roomID uuid.UUID) ([]models.Bed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bedsOfLocked(roomID), nil
}

func (f *fakeStore) bedsOfLocked(roomID uuid.UUID) []models.Bed {
	out := []models.Bed{}
	for _, b := range f.beds {
		if b.RoomID == roomID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedNumber < out[j].BedNumber })
	return out
}

func (f *fakeStore) CreateBed(_ context.Context, bed *models.Bed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[bed.RoomID]
	if !ok {
		return &apperr.NotFoundError{Resource: "room"}
	}
	existing := f.bedsOfLocked(bed.RoomID)
	if len(existing) >= room.Capacity {
		return &apperr.CapacityError{RoomID: room.ID, Capacity: room.Capacity}
	}
	for _, b := range existing {
		if b.BedNumber == bed.BedNumber {
			return &apperr.ConflictError{Message: fmt.Sprintf("bed number %d already exists in this room", bed.BedNumber)}
		}
	}
	bed.ID = uuid.New()
	bed.CreatedAt = time.Now()
	stored := *bed
	f.beds[bed.ID] = &stored
	return nil
}

func (f *fakeStore) GetBed(_ context.Context, id uuid.UUID) (*models.Bed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.beds[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "bed"}
	}
	out := *b
	return &out, nil
}

func (f *fakeStore) SetBedOccupied(_ context.Context, id uuid.UUID, occupied bool) (*models.Bed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.beds[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "bed"}
	}
	b.IsOccupied = occupied
	out := *b
	return &out, nil
}

func (f *fakeStore) DeleteBed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.beds[id]; !ok {
		return &apperr.NotFoundError{Resource: "bed"}
	}
	delete(f.beds, id)
	return nil
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	feed     *gateway.MemoryFeed
	bus      *notify.Bus
	agent    uuid.UUID
	property uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	feed := gateway.NewMemoryFeed(nil)
	bus := notify.NewBus()
	agent := uuid.New()
	propertyID := uuid.New()
	store.properties[propertyID] = &models.Property{
		ID:      propertyID,
		AgentID: agent,
		Title:   "Campus View",
		Amenities: map[string]any{
			"utilities": map[string]any{"internet": true},
		},
	}

	retry := resilience.Options{MaxRetries: 1, Sleep: func(context.Context, time.Duration) error { return nil }}
	return &fixture{
		svc:      NewService(store, store, feed, time.Minute, retry, bus, nil),
		store:    store,
		feed:     feed,
		bus:      bus,
		agent:    agent,
		property: propertyID,
	}
}

func (fx *fixture) addRoom(t *testing.T, capacity int, price float64) *models.Room {
	t.Helper()
	room, err := fx.svc.AddRoom(context.Background(), fx.agent, fx.property, models.CreateRoomRequest{
		Name:        "Room",
		Type:        models.RoomDouble,
		PricePerBed: price,
		Capacity:    capacity,
	})
	require.NoError(t, err)
	return room
}

func TestAddRoom(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 2, 250)

	assert.NotEqual(t, uuid.Nil, room.ID)
	assert.True(t, room.IsAvailable)
	assert.Equal(t, fx.property, room.PropertyID)
}

func TestAddRoom_Validation(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name  string
		req   models.CreateRoomRequest
		field string
	}{
		{"missing name", models.CreateRoomRequest{Type: models.RoomSingle, Capacity: 1}, "name"},
		{"bad type", models.CreateRoomRequest{Name: "A", Type: "suite", Capacity: 1}, "type"},
		{"capacity too large", models.CreateRoomRequest{Name: "A", Type: models.RoomQuad, Capacity: 11}, "capacity"},
		{"capacity zero", models.CreateRoomRequest{Name: "A", Type: models.RoomQuad}, "capacity"},
		{"negative price", models.CreateRoomRequest{Name: "A", Type: models.RoomSingle, Capacity: 1, PricePerBed: -1}, "price_per_bed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.AddRoom(context.Background(), fx.agent, fx.property, tt.req)

			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Empty(t, fx.store.rooms)
}

func TestAddRoom_OnlyOwningAgent(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.AddRoom(context.Background(), uuid.New(), fx.property, models.CreateRoomRequest{
		Name: "A", Type: models.RoomSingle, Capacity: 1,
	})
	var permErr *apperr.PermissionError
	assert.ErrorAs(t, err, &permErr)

	_, err = fx.svc.AddRoom(context.Background(), uuid.Nil, fx.property, models.CreateRoomRequest{
		Name: "A", Type: models.RoomSingle, Capacity: 1,
	})
	var authErr *apperr.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestAddBed_CapacityInvariant(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 2, 100)
	ctx := context.Background()

	var notices []notify.Notification
	fx.bus.Subscribe(func(n notify.Notification) { notices = append(notices, n) })

	for n := 1; n <= 2; n++ {
		_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: n})
		require.NoError(t, err)
	}

	_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 3})
	var capErr *apperr.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Capacity)

	beds, _ := fx.store.ListBeds(ctx, room.ID)
	assert.Len(t, beds, 2)
	require.Len(t, notices, 3)
	assert.Equal(t, notify.LevelSuccess, notices[0].Level)
	assert.Equal(t, "bed 1 added to Room", notices[0].Message)
	assert.Equal(t, notify.LevelError, notices[2].Level)
	assert.Equal(t, "room has reached its capacity of 2 beds", notices[2].Message)
}

func TestAddBed_DuplicateNumber(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 3, 100)
	ctx := context.Background()

	_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
	require.NoError(t, err)

	_, err = fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
	var conflict *apperr.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 0})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "bed_number", ve.Field)
}

func TestPropertyStats_CachedAndInvalidated(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 5, 300)
	ctx := context.Background()

	var bedIDs []uuid.UUID
	for n := 1; n <= 5; n++ {
		bed, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: n})
		require.NoError(t, err)
		bedIDs = append(bedIDs, bed.ID)
	}
	occupied := true
	for _, id := range bedIDs[:4] {
		_, err := fx.svc.SetBedOccupied(ctx, fx.agent, id, models.UpdateBedRequest{IsOccupied: &occupied})
		require.NoError(t, err)
	}

	stats, err := fx.svc.PropertyStats(ctx, fx.property)
	require.NoError(t, err)
	assert.Equal(t, 80, stats.OccupancyRate)
	assert.Equal(t, 1, stats.AvailableBeds)
	assert.Equal(t, 300.0, stats.MinimumPrice)
	assert.True(t, stats.Amenities.Internet)

	calls := fx.store.getCalls
	_, err = fx.svc.PropertyStats(ctx, fx.property)
	require.NoError(t, err)
	assert.Equal(t, calls, fx.store.getCalls)

	require.NoError(t, fx.svc.DeleteBed(ctx, fx.agent, bedIDs[4]))
	stats, err = fx.svc.PropertyStats(ctx, fx.property)
	require.NoError(t, err)
	assert.Equal(t, calls+1, fx.store.getCalls)
	assert.Equal(t, 100, stats.OccupancyRate)
}

func TestPropertyStats_ChangeDuringLoadIsNotCached(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 2, 100)
	ctx := context.Background()

	fx.store.afterGet = func() {
		_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
		require.NoError(t, err)
	}
	stale, err := fx.svc.PropertyStats(ctx, fx.property)
	require.NoError(t, err)
	assert.Equal(t, 0, stale.TotalBeds)

	fresh, err := fx.svc.PropertyStats(ctx, fx.property)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalBeds)
}

func TestPropertyStats_NoRooms(t *testing.T) {
	fx := newFixture(t)

	stats, err := fx.svc.PropertyStats(context.Background(), fx.property)
	require.NoError(t, err)
	assert.Zero(t, stats.MinimumPrice)
	assert.Zero(t, stats.OccupancyRate)
}

func TestDeleteRoom_RemovesBeds(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 2, 100)
	ctx := context.Background()
	_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
	require.NoError(t, err)

	var events []gateway.ChangeEvent
	_, err = fx.feed.Subscribe("test", gateway.TableFilter{Table: gateway.TableRooms}, func(e gateway.ChangeEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeleteRoom(ctx, fx.agent, room.ID))
	assert.Empty(t, fx.store.rooms)
	assert.Empty(t, fx.store.beds)
	require.Len(t, events, 1)
	assert.Equal(t, gateway.EventDelete, events[0].Type)
}

func TestSetBedOccupied_RequiresFlag(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 1, 100)
	bed, err := fx.svc.AddBed(context.Background(), fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
	require.NoError(t, err)

	_, err = fx.svc.SetBedOccupied(context.Background(), fx.agent, bed.ID, models.UpdateBedRequest{})
	assert.True(t, apperr.IsValidation(err))
}

func TestRoomStatsAndPortfolio(t *testing.T) {
	fx := newFixture(t)
	room := fx.addRoom(t, 4, 120)
	ctx := context.Background()
	_, err := fx.svc.AddBed(ctx, fx.agent, room.ID, models.CreateBedRequest{BedNumber: 1})
	require.NoError(t, err)

	rooms, err := fx.svc.RoomStats(ctx, fx.property)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 25.0, rooms[0].CapacityUtilization)

	portfolio, err := fx.svc.Portfolio(ctx, fx.agent)
	require.NoError(t, err)
	assert.Equal(t, 1, portfolio.Properties)
	assert.Equal(t, 1, portfolio.TotalBeds)
	assert.Equal(t, 120.0, portfolio.MinimumPrice)
}
