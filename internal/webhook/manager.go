package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/temikng/email-attestation-bot/internal/storage"
)

// Subscriber registers addresses for event pushes with the wallet node.
type Subscriber interface {
	SubscribeAddresses(ctx context.Context, endpoint string, addresses []string) error
}

// Manager keeps the wallet node subscribed to every receiving address we have
// handed out, so payments to them reach the webhook server.
type Manager struct {
	storage  *storage.Storage
	node     Subscriber
	endpoint string
	log      *slog.Logger

	mu         sync.Mutex
	subscribed map[string]bool
}

func NewManager(store *storage.Storage, node Subscriber, endpoint string, log *slog.Logger) *Manager {
	return &Manager{
		storage:    store,
		node:       node,
		endpoint:   endpoint,
		log:        log,
		subscribed: make(map[string]bool),
	}
}

// SyncLoop periodically re-registers receiving addresses. Runs an immediate
// sync so addresses issued before a restart are covered right away.
func (m *Manager) SyncLoop(ctx context.Context, interval time.Duration) {
	if m.endpoint == "" {
		m.log.Warn("webhook endpoint not set, skipping subscription sync")
		return
	}

	if err := m.sync(ctx); err != nil {
		m.log.Error("sync subscriptions", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("subscription sync loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sync(ctx); err != nil {
				m.log.Error("sync subscriptions", "error", err)
			}
		}
	}
}

func (m *Manager) sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addresses, err := m.storage.ListReceivingAddresses()
	if err != nil {
		return err
	}

	var toAdd []string
	for _, addr := range addresses {
		if !m.subscribed[addr] {
			toAdd = append(toAdd, addr)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	if err := m.node.SubscribeAddresses(ctx, m.endpoint, toAdd); err != nil {
		return err
	}
	for _, addr := range toAdd {
		m.subscribed[addr] = true
	}
	m.log.Info("subscribed receiving addresses", "count", len(toAdd))
	return nil
}
