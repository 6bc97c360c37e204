// Package api provides the HTTP status and control API and the peer listener.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"edgekvm/internal/config"
	"edgekvm/internal/control"
	"edgekvm/internal/network"
	"edgekvm/internal/session"
	"edgekvm/internal/switcher"
)

// Server provides HTTP API for status and manual control
type Server struct {
	configMgr *config.Manager
	switcher  *switcher.Switcher
	token     string
	events    *EventHub
}

// NewServer creates a new API server
func NewServer(configMgr *config.Manager, sw *switcher.Switcher) *Server {
	s := &Server{
		configMgr: configMgr,
		switcher:  sw,
		token:     configMgr.Get().General.APIToken,
		events:    newEventHub(),
	}
	sw.OnStatus(s.events.Publish)
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/control/take", s.handleTake)
	mux.HandleFunc("POST /api/control/release", s.handleRelease)
	mux.HandleFunc("POST /api/peers/connect", s.handleConnect)
	mux.HandleFunc("POST /api/peers/{id}/reconnect", s.handleReconnect)
	mux.HandleFunc("POST /api/peers/{id}/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /api/discover", s.handleDiscover)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	return s.authMiddleware(recoverMiddleware(mux))
}

// PeerHandler accepts session connections on /ws
func PeerHandler(sessions *session.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(network.WSPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := network.Upgrade(w, r)
		if err != nil {
			log.Printf("API: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		if _, err := sessions.Accept(conn); err != nil {
			log.Printf("API: rejected session from %s: %v", r.RemoteAddr, err)
			conn.Close()
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return recoverMiddleware(mux)
}

// Serve listens on IPv4 port and serves h until ctx is cancelled
func Serve(ctx context.Context, port int, h http.Handler) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Printf("API: listening on %s", addr)

	server := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// recoverMiddleware prevents panics from crashing the whole server
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("API: panic serving %s: %v", r.URL.Path, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the API token on /api routes if one is configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			if r.Header.Get("Authorization") != "Bearer "+s.token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, switcher.ErrNotController):
		return http.StatusForbidden
	case errors.Is(err, control.ErrTransitioning),
		errors.Is(err, control.ErrNotLocal),
		errors.Is(err, control.ErrNotOwned),
		errors.Is(err, control.ErrNoSession),
		errors.Is(err, switcher.ErrDriven),
		errors.Is(err, switcher.ErrNoPeer),
		errors.Is(err, switcher.ErrDegraded),
		errors.Is(err, session.ErrInbound),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleTake handles POST /api/control/take[?peer=<id>]
func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	peer := session.ID(r.URL.Query().Get("peer"))
	log.Printf("API: take control (peer=%q) from %s", peer, r.RemoteAddr)
	if err := s.switcher.TakeControl(peer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleRelease handles POST /api/control/release
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	log.Printf("API: return control from %s", r.RemoteAddr)
	if err := s.switcher.ReturnControl(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleConnect handles POST /api/peers/connect?addr=<host:port>
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		http.Error(w, "Missing addr parameter", http.StatusBadRequest)
		return
	}
	sess, err := s.switcher.Connect(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// handleReconnect handles POST /api/peers/{id}/reconnect
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := session.ID(r.PathValue("id"))
	if err := s.switcher.Reconnect(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting", "id": string(id)})
}

// handleDisconnect handles POST /api/peers/{id}/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := session.ID(r.PathValue("id"))
	if err := s.switcher.Disconnect(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected", "id": string(id)})
}

// handleDiscover handles GET /api/discover - scans LAN for edgekvm instances
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	port := s.configMgr.Get().General.APIPort
	log.Printf("API: Starting LAN scan on port %d", port)

	peers, err := network.ScanLAN(r.Context(), port)
	if err != nil {
		log.Printf("API: Scan error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("API: Found %d instance(s) on LAN", len(peers))
	writeJSON(w, http.StatusOK, peers)
}

// handleConfig handles GET /api/config with the token redacted
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := *s.configMgr.Get()
	if cfg.General.APIToken != "" {
		cfg.General.APIToken = "********"
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Close disconnects event subscribers
func (s *Server) Close() {
	s.events.Close()
}
