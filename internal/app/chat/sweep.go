/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Sweep, the process-wide periodic task that reconciles
rooms nobody is connected to anymore against their stale presence keys and
purges them. It runs on its own lifecycle: started at process init, stopped
at shutdown.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
)

// Occupier answers the live occupancy question for a room. The hub
// implements it; a cluster-aware transport adapter can be substituted.
type Occupier interface {
	Occupancy(roomID string) int
}

// Sweep periodically purges presence state of rooms with zero occupancy.
// It is safe to run concurrently with normal traffic: a room that fills
// again between the occupancy check and the purge loses its fresh members'
// keys, an accepted best-effort race that the next join repairs.
type Sweep struct {
	presence *Presence
	occupier Occupier
	interval time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewSweep constructs a Sweep over the given presence tracker and occupancy
// source.
func NewSweep(presence *Presence, occupier Occupier, interval time.Duration) *Sweep {
	return &Sweep{
		presence: presence,
		occupier: occupier,
		interval: interval,
		stop:     make(chan struct{}),
		logger:   logx.Logger().With().Str("component", "Sweep").Logger(),
	}
}

// Start launches the sweep loop.
func (s *Sweep) Start() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().Dur("interval", s.interval).Msg("Cleanup sweep started.")

		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stop:
				s.logger.Info().Msg("Cleanup sweep stopped.")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweep) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunOnce performs a single reconciliation pass: every tracked room with
// zero live occupancy has its members' presence keys and its membership
// set purged. Failures affect only the room at hand.
func (s *Sweep) RunOnce(ctx context.Context) {
	rooms, err := s.presence.TrackedRooms(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Listing tracked rooms failed.")
		return
	}

	for _, roomID := range rooms {
		if s.occupier.Occupancy(roomID) > 0 {
			continue
		}

		if err := s.presence.PurgeRoom(ctx, roomID); err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Msg("Purging room failed.")
		}
	}
}
