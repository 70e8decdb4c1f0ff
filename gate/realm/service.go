// Package realm gates new logins against capacity and operator-initiated
// maintenance or shutdown windows, and broadcasts realm state to every
// connected game server whenever it changes.
package realm

import (
	"sync"
	"time"

	"github.com/helrift/gate/gate/event"
	"github.com/helrift/gate/gate/notify"
	"github.com/helrift/gate/gate/presence"
	"go.uber.org/zap"
)

// MsgStateUpdated is the push type for realm state changes.
const MsgStateUpdated = "realm.state.updated"

// Operation kinds.
const (
	OpShutdown    = "shutdown"
	OpMaintenance = "maintenance"
)

// Operation is one active operator action. At most one shutdown exists at a
// time; scheduling a new one replaces the old.
type Operation struct {
	Kind      string     `json:"kind"`
	At        *time.Time `json:"at,omitempty"` // shutdown only
	Message   string     `json:"message"`
	By        string     `json:"by"`
	CreatedAt time.Time  `json:"createdAt"`
}

// State is the realm.state.updated payload.
type State struct {
	DenyNewLogins     bool    `json:"denyNewLogins"`
	DenyNewJoins      bool    `json:"denyNewJoins"`
	ShutdownAtUnixUtc *int64  `json:"shutdownAtUnixUtc"`
	RealmMessage      *string `json:"realmMessage"`
}

// Service is the admission controller. The head-count is seeded once from
// the presence directory and then adjusted by ±1 per transition, never by
// re-scanning.
type Service struct {
	mu         sync.Mutex
	headCount  int
	maxPlayers int
	ops        []Operation

	fanout notify.Sender
	logger *zap.Logger
}

// NewService creates the controller with the given capacity limit.
func NewService(maxPlayers int, fanout notify.Sender, logger *zap.Logger) *Service {
	return &Service{maxPlayers: maxPlayers, fanout: fanout, logger: logger}
}

// Start seeds the head-count from the directory's current snapshot and
// subscribes to subsequent transitions.
func (s *Service) Start(bus *event.Bus, dir *presence.Directory) {
	s.mu.Lock()
	s.headCount = dir.Count()
	s.mu.Unlock()

	bus.SubscribePresence("realm-headcount", func(ev event.PresenceEvent) {
		s.mu.Lock()
		if ev.Online {
			s.headCount++
		} else if s.headCount > 0 {
			s.headCount--
		}
		s.mu.Unlock()
	})
}

// HeadCount returns the current online head-count.
func (s *Service) HeadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headCount
}

// IsLoginAllowed reports whether a new login may proceed: no maintenance or
// shutdown active, and head-count below capacity.
func (s *Service) IsLoginAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops) == 0 && s.headCount < s.maxPlayers
}

// GetState returns the current realm state snapshot.
func (s *Service) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Service) stateLocked() State {
	st := State{
		DenyNewJoins:  len(s.ops) > 0,
		DenyNewLogins: len(s.ops) > 0 || s.headCount >= s.maxPlayers,
	}
	for _, op := range s.ops {
		if op.Message != "" && st.RealmMessage == nil {
			msg := op.Message
			st.RealmMessage = &msg
		}
		if op.Kind == OpShutdown && op.At != nil {
			at := op.At.UTC().Unix()
			st.ShutdownAtUnixUtc = &at
		}
	}
	return st
}

// Operations returns a copy of the active operation list.
func (s *Service) Operations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// ScheduleShutdown schedules (or reschedules) a realm shutdown `in` from now.
// Any existing shutdown operation is replaced.
func (s *Service) ScheduleShutdown(in time.Duration, message, by string) State {
	at := time.Now().UTC().Add(in)

	s.mu.Lock()
	kept := s.ops[:0]
	for _, op := range s.ops {
		if op.Kind != OpShutdown {
			kept = append(kept, op)
		}
	}
	s.ops = append(kept, Operation{
		Kind:      OpShutdown,
		At:        &at,
		Message:   message,
		By:        by,
		CreatedAt: time.Now().UTC(),
	})
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Warn("realm shutdown scheduled",
		zap.Time("at", at), zap.String("by", by))
	s.fanout.BroadcastAll(MsgStateUpdated, st)
	return st
}

// EnableMaintenance blocks new logins and joins until ClearAll.
func (s *Service) EnableMaintenance(message, by string) State {
	s.mu.Lock()
	already := false
	for _, op := range s.ops {
		if op.Kind == OpMaintenance {
			already = true
			break
		}
	}
	if !already {
		s.ops = append(s.ops, Operation{
			Kind:      OpMaintenance,
			Message:   message,
			By:        by,
			CreatedAt: time.Now().UTC(),
		})
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Warn("realm maintenance enabled", zap.String("by", by))
	s.fanout.BroadcastAll(MsgStateUpdated, st)
	return st
}

// ClearAll removes every active operation and reopens the realm.
func (s *Service) ClearAll() State {
	s.mu.Lock()
	s.ops = nil
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("realm operations cleared")
	s.fanout.BroadcastAll(MsgStateUpdated, st)
	return st
}

// ExpireShutdown removes the shutdown operation once its scheduled time has
// passed, reopening the realm without operator intervention. Reports whether
// an operation was removed; a shutdown that was rescheduled to a later time
// in the meantime is left alone.
func (s *Service) ExpireShutdown() bool {
	now := time.Now().UTC()

	s.mu.Lock()
	kept := s.ops[:0]
	removed := false
	for _, op := range s.ops {
		if op.Kind == OpShutdown && op.At != nil && !op.At.After(now) {
			removed = true
			continue
		}
		kept = append(kept, op)
	}
	s.ops = kept
	st := s.stateLocked()
	s.mu.Unlock()

	if removed {
		s.logger.Info("realm shutdown window elapsed, reopening")
		s.fanout.BroadcastAll(MsgStateUpdated, st)
	}
	return removed
}

// BroadcastState re-pushes the current state to every connection. Used by the
// periodic heartbeat task.
func (s *Service) BroadcastState() {
	s.fanout.BroadcastAll(MsgStateUpdated, s.GetState())
}
