package app

import (
	"context"
	"fmt"
	"time"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// ResolveRoom derives a room's status from its lease set at the given
// instant. Maintenance overrides everything; otherwise the room is
// occupied iff any active lease has moved in by `at` and either has no
// move-out date or moves out strictly after `at`. A move-out exactly at
// `at` leaves the room available: the checkout day itself is free.
//
// Overlapping active leases are an upstream invariant violation; the
// loop still answers occupied, so a double-leased room is never offered.
func ResolveRoom(room domain.Room, at time.Time) domain.RoomStatus {
	if room.Maintenance {
		return domain.StatusMaintenance
	}
	for _, l := range room.Leases {
		if leaseOccupies(l, at) {
			return domain.StatusOccupied
		}
	}
	return domain.StatusAvailable
}

func leaseOccupies(l domain.Lease, at time.Time) bool {
	if !l.Active || l.MoveIn.After(at) {
		return false
	}
	return l.MoveOut == nil || l.MoveOut.After(at)
}

// occupiedUntil picks the latest move-out among occupying leases; nil
// when one of them is open-ended.
func occupiedUntil(room domain.Room, at time.Time) *time.Time {
	var until *time.Time
	for _, l := range room.Leases {
		if !leaseOccupies(l, at) {
			continue
		}
		if l.MoveOut == nil {
			return nil
		}
		if until == nil || l.MoveOut.After(*until) {
			until = l.MoveOut
		}
	}
	return until
}

// AvailabilityService answers "which rooms can be booked right now".
// Room lists are cached per property so one wizard session costs at most
// one round-trip to the lease ledger per property.
type AvailabilityService struct {
	repo     domain.RentalRepository
	cache    domain.Cache
	cacheTTL time.Duration
	clock    func() time.Time
}

func NewAvailabilityService(r domain.RentalRepository, c domain.Cache, ttl time.Duration) *AvailabilityService {
	return &AvailabilityService{repo: r, cache: c, cacheTTL: ttl, clock: time.Now}
}

func roomsKey(propertyID int64) string { return fmt.Sprintf("rooms:%d", propertyID) }

// Rooms lists a property's rooms with status derived at call time.
// Leases are cached, statuses are not: a cached room list re-derives
// against the current clock on every call.
func (s *AvailabilityService) Rooms(ctx context.Context, propertyID int64) ([]domain.RoomView, error) {
	rooms, err := s.roomsWithLeases(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	at := s.clock()
	out := make([]domain.RoomView, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, domain.RoomView{
			ID:            rm.ID,
			PropertyID:    rm.PropertyID,
			Number:        rm.Number,
			Floor:         rm.Floor,
			MonthlyRent:   rm.MonthlyRent,
			Status:        ResolveRoom(rm, at),
			OccupiedUntil: occupiedUntil(rm, at),
		})
	}
	return out, nil
}

// Properties lists published properties annotated with live room counts.
func (s *AvailabilityService) Properties(ctx context.Context) ([]domain.PropertyView, error) {
	props, err := s.repo.ListPublishedProperties(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PropertyView, 0, len(props))
	for _, p := range props {
		views, err := s.Rooms(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		avail := 0
		for _, v := range views {
			if v.Status == domain.StatusAvailable {
				avail++
			}
		}
		out = append(out, domain.PropertyView{
			ID:             p.ID,
			Name:           p.Name,
			Address:        p.Address,
			City:           p.City,
			AvailableRooms: avail,
			TotalRooms:     len(views),
		})
	}
	return out, nil
}

// Invalidate drops the cached room list after upstream lease churn.
func (s *AvailabilityService) Invalidate(ctx context.Context, propertyID int64) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, roomsKey(propertyID))
	}
}

func (s *AvailabilityService) roomsWithLeases(ctx context.Context, propertyID int64) ([]domain.Room, error) {
	key := roomsKey(propertyID)
	var cached []domain.Room
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}
	rooms, err := s.repo.ListRoomsForProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, rooms, int(s.cacheTTL.Seconds()))
	}
	return rooms, nil
}
