package party

import (
	"github.com/helrift/gate/gate/notify"
	"github.com/helrift/gate/gate/presence"
	"go.uber.org/zap"
)

// XPEvent is one raw "experience earned" event reported by a game server.
type XPEvent struct {
	EventID           string  `json:"eventId"`
	PartyID           string  `json:"partyId"`
	EarnerCharacterID string  `json:"earnerCharacterId"`
	BaseXP            int64   `json:"baseXp"`
	SourceX           float64 `json:"sourceX"`
	SourceY           float64 `json:"sourceY"`
	SourceZ           float64 `json:"sourceZ"`
}

// XPDelta is one computed per-character experience share.
type XPDelta struct {
	EventID     string `json:"eventId"`
	CharacterID string `json:"characterId"`
	BaseXPShare int64  `json:"baseXpShare"`
}

type experiencePayload struct {
	PartyID    string    `json:"partyId"`
	SourceX    float64   `json:"sourceX"`
	SourceY    float64   `json:"sourceY"`
	SourceZ    float64   `json:"sourceZ"`
	ShareRange float64   `json:"shareRange"`
	Recipients []string  `json:"recipients"`
	Deltas     []XPDelta `json:"deltas"`
}

// Splitter turns raw XP events into per-character deltas split evenly across
// the earning party's currently-online members, then pushes one
// party.experience message per involved server.
type Splitter struct {
	parties  *Coordinator
	presence *presence.Directory
	fanout   notify.Sender

	shareRange        float64
	remainderToEarner bool
	logger            *zap.Logger
}

// NewSplitter creates a Splitter. shareRange is forwarded verbatim in every
// payload so game servers can apply their own distance cutoff.
func NewSplitter(parties *Coordinator, presence *presence.Directory, fanout notify.Sender, shareRange float64, remainderToEarner bool, logger *zap.Logger) *Splitter {
	return &Splitter{
		parties:           parties,
		presence:          presence,
		fanout:            fanout,
		shareRange:        shareRange,
		remainderToEarner: remainderToEarner,
		logger:            logger,
	}
}

// ProcessBatch splits each event across the party's online members. Offline
// members are excluded from the split entirely; an event whose party is gone,
// that has no online members, or whose delta set filters down to empty is
// dropped silently.
func (s *Splitter) ProcessBatch(events []XPEvent) {
	for _, ev := range events {
		s.process(ev)
	}
}

func (s *Splitter) process(ev XPEvent) {
	if ev.BaseXP <= 0 {
		return
	}
	p, ok := s.parties.GetByID(ev.PartyID)
	if !ok {
		s.logger.Debug("xp event for unknown party dropped",
			zap.String("event_id", ev.EventID),
			zap.String("party_id", ev.PartyID))
		return
	}

	online := s.presence.GetByIDs(p.MemberIDs())
	if len(online) == 0 {
		return
	}

	share := ev.BaseXP / int64(len(online))
	remainder := ev.BaseXP - share*int64(len(online))

	byServer := make(map[string][]string)
	deltas := make([]XPDelta, 0, len(online))
	for _, op := range online {
		amount := share
		if s.remainderToEarner && op.CharacterID == ev.EarnerCharacterID {
			amount += remainder
		}
		if amount <= 0 {
			continue
		}
		deltas = append(deltas, XPDelta{
			EventID:     ev.EventID,
			CharacterID: op.CharacterID,
			BaseXPShare: amount,
		})
		byServer[op.ServerID] = append(byServer[op.ServerID], op.CharacterID)
	}
	if len(deltas) == 0 {
		return
	}

	deltaFor := make(map[string]XPDelta, len(deltas))
	for _, d := range deltas {
		deltaFor[d.CharacterID] = d
	}

	recipients := make([]string, 0, len(deltas))
	for _, d := range deltas {
		recipients = append(recipients, d.CharacterID)
	}

	s.fanout.Broadcast(recipients, "party.experience", func(serverID string, serverRecipients []string) interface{} {
		serverDeltas := make([]XPDelta, 0, len(serverRecipients))
		for _, id := range serverRecipients {
			if d, ok := deltaFor[id]; ok {
				serverDeltas = append(serverDeltas, d)
			}
		}
		return experiencePayload{
			PartyID:    ev.PartyID,
			SourceX:    ev.SourceX,
			SourceY:    ev.SourceY,
			SourceZ:    ev.SourceZ,
			ShareRange: s.shareRange,
			Recipients: serverRecipients,
			Deltas:     serverDeltas,
		}
	})
}
