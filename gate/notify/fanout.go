// Package notify is the outbound push layer: it resolves recipients to live
// game-server connections and delivers envelopes, and hosts the bus
// subscribers that turn presence and party transitions into pushes.
package notify

import (
	"github.com/helrift/gate/gate/conn"
	"github.com/helrift/gate/gate/presence"
	"go.uber.org/zap"
)

// Sender is the push surface consumed by the services that broadcast.
// Fanout is the production implementation.
type Sender interface {
	Broadcast(recipients []string, msgType string, build func(serverID string, serverRecipients []string) interface{})
	BroadcastPayload(recipients []string, msgType string, payload interface{})
	BroadcastAll(msgType string, payload interface{})
}

// Fanout is the single choke point for every push to game servers. Party
// state, friend presence, friend requests, XP deltas and chat all go through
// Broadcast; realm state goes through BroadcastAll.
type Fanout struct {
	presence *presence.Directory
	registry *conn.Registry
	logger   *zap.Logger
}

// NewFanout wires the fan-out over the presence directory and the connection
// registry.
func NewFanout(presence *presence.Directory, registry *conn.Registry, logger *zap.Logger) *Fanout {
	return &Fanout{presence: presence, registry: registry, logger: logger}
}

// Broadcast resolves presence for the recipient character ids, discards the
// offline ones, groups the rest by server and sends one envelope per server.
// build receives the server id and the subset of recipients on that server so
// the payload can be scoped per connection. A missing connection or a send
// failure is logged and skipped; it never aborts delivery to other servers.
func (f *Fanout) Broadcast(recipients []string, msgType string, build func(serverID string, serverRecipients []string) interface{}) {
	if len(recipients) == 0 {
		return
	}
	byServer := make(map[string][]string)
	for _, p := range f.presence.GetByIDs(recipients) {
		byServer[p.ServerID] = append(byServer[p.ServerID], p.CharacterID)
	}
	for serverID, ids := range byServer {
		g := f.registry.Get(serverID)
		if g == nil || g.IsClosed() {
			f.logger.Warn("no open connection for push, skipping",
				zap.String("server_id", serverID),
				zap.String("type", msgType),
				zap.Int("recipients", len(ids)))
			continue
		}
		g.Send(msgType, build(serverID, ids))
	}
}

// BroadcastPayload is Broadcast with a fixed payload for every server.
func (f *Fanout) BroadcastPayload(recipients []string, msgType string, payload interface{}) {
	f.Broadcast(recipients, msgType, func(string, []string) interface{} { return payload })
}

// BroadcastAll sends one envelope to every registered connection, regardless
// of presence. Used for realm state updates.
func (f *Fanout) BroadcastAll(msgType string, payload interface{}) {
	for serverID, g := range f.registry.GetAll() {
		if g.IsClosed() {
			f.logger.Debug("skipping closed connection in broadcast",
				zap.String("server_id", serverID),
				zap.String("type", msgType))
			continue
		}
		g.Send(msgType, payload)
	}
}
