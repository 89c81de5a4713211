package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fhe-quiz-client/internal/domain"
	"github.com/google/uuid"
)

// Client is the orchestration core of the quiz application. It sequences
// session bootstrap, the encrypted write path, the verification path and the
// transient status notifications over the two external collaborators: the
// ledger gateway and the encryption service.
type Client struct {
	read      ReadGateway
	write     WriteGateway
	enc       Encryptor
	mirror    *Mirror
	notifier  *Notifier
	bootstrap *Bootstrap
	inflight  *inflightGuard
	logger    *slog.Logger

	clock    func() time.Time
	answerID func() string

	mu        sync.RWMutex
	contextID string
}

func NewClient(read ReadGateway, write WriteGateway, enc Encryptor, notifier *Notifier, logger *slog.Logger) *Client {
	return newClient(read, write, enc, notifier, logger, time.Now, uuid.NewString)
}

// NewClientWithClock is test-only for deterministic record ids and timestamps.
func NewClientWithClock(read ReadGateway, write WriteGateway, enc Encryptor, notifier *Notifier, logger *slog.Logger, now func() time.Time, answerID func() string) *Client {
	return newClient(read, write, enc, notifier, logger, now, answerID)
}

func newClient(read ReadGateway, write WriteGateway, enc Encryptor, notifier *Notifier, logger *slog.Logger, now func() time.Time, answerID func() string) *Client {
	return &Client{
		read:      read,
		write:     write,
		enc:       enc,
		mirror:    newMirrorWithClock(logger, now),
		notifier:  notifier,
		bootstrap: NewBootstrap(enc, notifier, logger),
		inflight:  newInflightGuard(),
		logger:    logger,
		clock:     now,
		answerID:  answerID,
	}
}

// Connect registers the actor session, runs the one-shot hydration pass and
// initializes the encryption subsystem. Hydration runs regardless of
// encryption readiness so the quiz listing can render while initialization
// finishes; write and verify stay gated on Ready.
func (c *Client) Connect(ctx context.Context, actor string) error {
	if err := c.hydrateAndResolveContext(ctx); err != nil {
		c.logger.Error("initial data load failed", "err", err)
	}
	return c.bootstrap.Connect(ctx, actor)
}

// Disconnect performs a full session reset: orchestration is gated again and
// the local selections and history are cleared.
func (c *Client) Disconnect() {
	c.bootstrap.Disconnect()
	c.mirror.Reset()
}

func (c *Client) hydrateAndResolveContext(ctx context.Context) error {
	if err := c.mirror.Hydrate(ctx, c.read); err != nil {
		return err
	}
	addr, err := c.read.Address(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.contextID = addr
	c.mu.Unlock()
	return nil
}

// ContextID is the deployment identifier resolved from the gateway at
// connect time; the encryption service scopes ciphertexts to it.
func (c *Client) ContextID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextID
}

// Refresh re-hydrates the mirror wholesale from the remote store.
func (c *Client) Refresh(ctx context.Context) error {
	if err := c.mirror.Hydrate(ctx, c.read); err != nil {
		c.notifier.Show(domain.PhaseError, "Failed to load data")
		return err
	}
	return nil
}

// CheckAvailability probes the remote encryption support and reports the
// result through the status slot.
func (c *Client) CheckAvailability(ctx context.Context) error {
	ok, err := c.read.IsAvailable(ctx)
	if err != nil || !ok {
		c.notifier.Show(domain.PhaseError, "Availability check failed")
		return err
	}
	c.notifier.Show(domain.PhaseSuccess, "FHE system is available")
	return nil
}

// requireReady enforces the write/verify preconditions with user feedback.
func (c *Client) requireReady() error {
	if !c.bootstrap.Connected() {
		c.notifier.Show(domain.PhaseError, "Please connect wallet first")
		return domain.ErrNotConnected
	}
	if !c.bootstrap.Ready() {
		c.notifier.Show(domain.PhaseError, "Encryption system is still initializing")
		return domain.ErrEncryptionNotReady
	}
	return nil
}

// Quizzes returns the mirrored quiz collection.
func (c *Client) Quizzes() []domain.QuizEntity { return c.mirror.Quizzes() }

// Quiz returns the mirrored entity for id.
func (c *Client) Quiz(id int64) (domain.QuizEntity, bool) { return c.mirror.Quiz(id) }

// Selections returns the local answer selections per quiz.
func (c *Client) Selections() map[int64]int { return c.mirror.Selections() }

// History returns the append-only submission log.
func (c *Client) History() []domain.HistoryEntry { return c.mirror.History() }

// Stats summarizes the mirror for the presentation layer.
func (c *Client) Stats() domain.Stats { return c.mirror.Stats() }

// Status returns the current transient notification.
func (c *Client) Status() domain.TransactionStatus { return c.notifier.Current() }

// SubscribeStatus streams status changes; cancel must be called.
func (c *Client) SubscribeStatus() (<-chan domain.TransactionStatus, func()) {
	return c.notifier.Subscribe()
}

// State exposes the bootstrap machine's state.
func (c *Client) State() domain.BootstrapState { return c.bootstrap.State() }
