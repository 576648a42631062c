// Package webhook receives payment events pushed by the wallet node and keeps
// the node's address subscriptions in sync with open sessions.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/temikng/email-attestation-bot/internal/ledger"
)

// EventHandler consumes one batch of payment units.
type EventHandler func(ctx context.Context, units []ledger.PaymentUnit)

// Server handles incoming event pushes from the wallet node.
type Server struct {
	onObserved  EventHandler
	onConfirmed EventHandler
	log         *slog.Logger

	server *http.Server
}

func NewServer(onObserved, onConfirmed EventHandler, log *slog.Logger) *Server {
	return &Server{
		onObserved:  onObserved,
		onConfirmed: onConfirmed,
		log:         log,
	}
}

// Start starts the webhook server. Blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/webhook/", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting webhook server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload ledger.EventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.log.Warn("invalid webhook payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if len(payload.Units) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.log.Debug("webhook received",
		"event_type", payload.EventType,
		"units", len(payload.Units),
	)

	switch payload.EventType {
	case ledger.EventPaymentsObserved:
		go s.onObserved(context.Background(), payload.Units)
	case ledger.EventPaymentsConfirmed:
		go s.onConfirmed(context.Background(), payload.Units)
	default:
		s.log.Warn("unknown event type", "event_type", payload.EventType)
	}

	w.WriteHeader(http.StatusOK)
}
