package forward

import (
	"context"
	"log"
	"time"

	"edgekvm/internal/protocol"
	"edgekvm/internal/session"
)

// HandleClipboard takes text received from peer: it is written to the
// local clipboard and relayed to every other ready peer, repeated text
// included. The text is recorded so the watcher does not publish it again.
func (p *Pipeline) HandleClipboard(from session.ID, text string) {
	if text == "" {
		return
	}
	p.remember(text)
	if p.clip != nil {
		if err := p.clip.Write(text); err != nil {
			p.errs.Add(1)
			log.Printf("Forward: clipboard write failed: %v", err)
		}
	}
	p.broadcast(from, text)
}

// PublishClipboard sends locally copied text to every ready peer
func (p *Pipeline) PublishClipboard(text string) {
	if !p.remember(text) {
		return
	}
	p.broadcast("", text)
}

// remember records text as the last seen clipboard and reports whether
// it is new.
func (p *Pipeline) remember(text string) bool {
	p.clipMu.Lock()
	defer p.clipMu.Unlock()
	if text == "" || text == p.lastClip {
		return false
	}
	p.lastClip = text
	return true
}

func (p *Pipeline) broadcast(except session.ID, text string) {
	msg := protocol.Clipboard{Text: text}
	for _, id := range p.peers.Ready() {
		if id == except {
			continue
		}
		if err := p.peers.Send(id, msg); err != nil {
			p.errs.Add(1)
			log.Printf("Forward: clipboard to %s failed: %v", id, err)
			continue
		}
		p.clipboard.Add(1)
	}
	if p.Verbose {
		log.Printf("Forward: clipboard relayed (%d bytes)", len(text))
	}
}

// WatchClipboard polls the local clipboard and publishes changes until ctx
// ends. Whatever is on the clipboard at start is not published.
func (p *Pipeline) WatchClipboard(ctx context.Context, interval time.Duration) {
	if p.clip == nil {
		return
	}
	if text, err := p.clip.Read(); err == nil {
		p.remember(text)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		text, err := p.clip.Read()
		if err != nil {
			if !failing {
				log.Printf("Forward: clipboard read failed: %v", err)
				failing = true
			}
			continue
		}
		failing = false
		p.PublishClipboard(text)
	}
}
