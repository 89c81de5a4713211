package app

import (
	"context"
	"log/slog"
	"sync"

	"fhe-quiz-client/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Bootstrap sequences actor connection, encryption-subsystem readiness and
// the one-shot data hydration. Concurrent initialization attempts collapse
// into a single flight; a failed attempt drops back to Disconnected so a
// reconnect can retry.
type Bootstrap struct {
	enc      Encryptor
	notifier *Notifier
	logger   *slog.Logger
	sf       singleflight.Group

	mu    sync.RWMutex
	state domain.BootstrapState
	actor string
}

func NewBootstrap(enc Encryptor, notifier *Notifier, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{
		enc:      enc,
		notifier: notifier,
		logger:   logger,
		state:    domain.StateDisconnected,
	}
}

// State returns the machine's current state.
func (b *Bootstrap) State() domain.BootstrapState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Actor returns the connected actor address, empty when disconnected.
func (b *Bootstrap) Actor() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.actor
}

// Connected reports whether an actor session is available.
func (b *Bootstrap) Connected() bool {
	return b.Actor() != ""
}

// Ready reports whether write/verify orchestration may run.
func (b *Bootstrap) Ready() bool {
	return b.State() == domain.StateReady
}

// Connect registers the actor and initializes the encryption subsystem.
// Duplicate concurrent calls share one initialization attempt.
func (b *Bootstrap) Connect(ctx context.Context, actor string) error {
	b.mu.Lock()
	b.actor = actor
	alreadyReady := b.state == domain.StateReady
	if !alreadyReady {
		b.state = domain.StateEncryptionInitializing
	}
	b.mu.Unlock()

	if alreadyReady {
		return nil
	}

	_, err, _ := b.sf.Do("encryption-init", func() (interface{}, error) {
		return nil, b.enc.Initialize(ctx)
	})
	if err != nil {
		b.mu.Lock()
		b.state = domain.StateDisconnected
		b.mu.Unlock()
		b.logger.Error("encryption subsystem initialization failed", "err", err)
		b.notifier.Show(domain.PhaseError, "FHE initialization failed")
		return err
	}

	b.mu.Lock()
	// The actor may have disconnected while initialization was in flight.
	if b.actor != "" {
		b.state = domain.StateReady
	}
	b.mu.Unlock()
	b.logger.Info("encryption subsystem ready", "actor", actor)
	return nil
}

// Disconnect drops the actor session and gates orchestration again.
func (b *Bootstrap) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actor = ""
	b.state = domain.StateDisconnected
}
