package app

import (
	"context"
	"fmt"

	"fhe-quiz-client/internal/domain"
)

// VerifyAnswer resolves the quiz record's opaque encrypted-value handle,
// obtains a decryption proof and submits it on-chain through the
// service-provided callback. The remote store is the authority on whether
// the record becomes verified; the mirror only reflects it after the
// subsequent hydration.
func (c *Client) VerifyAnswer(ctx context.Context, quizID int64) error {
	// Verification without a session is a silent no-op, matching the
	// presentation layer's expectation that the button does nothing.
	if !c.bootstrap.Connected() {
		return domain.ErrNotConnected
	}
	if !c.bootstrap.Ready() {
		return domain.ErrEncryptionNotReady
	}
	release, err := c.inflight.acquire("verify", quizID)
	if err != nil {
		return err
	}
	defer release()

	c.notifier.Show(domain.PhasePending, "Verifying answer with FHE...")

	recordID := fmt.Sprintf("%s%d", quizIDPrefix, quizID)
	handle, err := c.read.EncryptedValueHandle(ctx, recordID)
	if err != nil {
		c.failVerify(err)
		return err
	}

	err = c.enc.RequestDecryptionProof(ctx, []string{handle}, c.ContextID(), func(clearValues, proof []byte) (PendingTx, error) {
		return c.write.VerifyDecryption(ctx, recordID, clearValues, proof)
	})
	if err != nil {
		c.failVerify(err)
		return err
	}

	if err := c.mirror.Hydrate(ctx, c.read); err != nil {
		c.logger.Warn("hydration after verification failed", "err", err)
	}
	c.notifier.Show(domain.PhaseSuccess, "Answer verified successfully!")
	return nil
}

func (c *Client) failVerify(err error) {
	c.notifier.Show(domain.PhaseError, "Verification failed: "+err.Error())
}
