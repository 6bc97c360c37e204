package control

import (
	"time"

	"edgekvm/internal/geometry"
	"edgekvm/internal/session"
)

// Candidate is a peer that could receive input
type Candidate struct {
	ID          session.ID
	Screen      geometry.Screen
	ActiveSince time.Time
}

// SelectTarget picks the peer for a crossed edge.
//
// With a layout, only the peer whose screen name is mapped to the edge
// qualifies; edges missing from a non-empty layout lead nowhere. Without a
// layout, the peer whose handshake completed first wins. Ties on either rule
// go to the earlier handshake, then the lower ID.
func SelectTarget(edge geometry.Edge, candidates []Candidate, layout map[geometry.Edge]string) (Candidate, bool) {
	var name string
	if len(layout) > 0 {
		n, ok := layout[edge]
		if !ok || n == "" {
			return Candidate{}, false
		}
		name = n
	}

	var best Candidate
	found := false
	for _, c := range candidates {
		if !c.Screen.Valid() {
			continue
		}
		if name != "" && c.Screen.Name() != name {
			continue
		}
		if !found || earlier(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func earlier(a, b Candidate) bool {
	if !a.ActiveSince.Equal(b.ActiveSince) {
		return a.ActiveSince.Before(b.ActiveSince)
	}
	return a.ID < b.ID
}
