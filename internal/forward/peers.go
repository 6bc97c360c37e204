package forward

import (
	"edgekvm/internal/protocol"
	"edgekvm/internal/session"
)

// Peers is the pipeline's view of the session table. It holds no sessions
// itself and resolves every send by ID.
type Peers interface {
	Send(id session.ID, m protocol.Message) error
	Ready() []session.ID
}

// ManagerPeers adapts a session manager
type ManagerPeers struct {
	Manager *session.Manager
}

func (p ManagerPeers) Send(id session.ID, m protocol.Message) error {
	s, ok := p.Manager.Lookup(id)
	if !ok {
		return session.ErrNotFound
	}
	return s.Send(m)
}

func (p ManagerPeers) Ready() []session.ID {
	var ids []session.ID
	for _, s := range p.Manager.Sessions() {
		if s.Ready() {
			ids = append(ids, s.ID())
		}
	}
	return ids
}
