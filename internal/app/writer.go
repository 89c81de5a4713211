package app

import (
	"context"
	"fmt"

	"fhe-quiz-client/internal/domain"
)

// NewQuiz is the create-quiz intent payload. Option labels are client-side
// constants and never reach the remote store.
type NewQuiz struct {
	Question      string `json:"question"`
	CorrectAnswer int    `json:"correctAnswer"`
}

// CreateQuiz runs the encrypt-then-submit-then-confirm protocol for a new
// quiz record. The plaintext never reaches the gateway before encryption
// succeeded; the mirror is only touched after the write reached finality.
func (c *Client) CreateQuiz(ctx context.Context, input NewQuiz) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	release, err := c.inflight.acquire("create", 0)
	if err != nil {
		return err
	}
	defer release()

	c.notifier.Show(domain.PhasePending, "Creating quiz with FHE encryption...")

	payload, err := c.enc.Encrypt(ctx, c.ContextID(), c.bootstrap.Actor(), int64(input.CorrectAnswer))
	if err != nil {
		c.failWrite(fmt.Errorf("encrypt correct answer: %w", err))
		return err
	}

	recordID := fmt.Sprintf("%s%d", quizIDPrefix, c.clock().UnixMilli())
	c.notifier.Show(domain.PhasePending, "Waiting for transaction confirmation...")

	tx, err := c.write.CreateRecord(ctx, domain.RecordWrite{
		ID:             recordID,
		Label:          input.Question,
		Ciphertext:     payload.Ciphertext,
		Proof:          payload.Proof,
		PlaintextValue: int64(input.CorrectAnswer),
		ParentRef:      0,
		Kind:           domain.KindQuizQuestion,
	})
	if err != nil {
		c.failWrite(err)
		return err
	}
	if err := tx.Wait(ctx); err != nil {
		c.failWrite(err)
		return err
	}

	if err := c.mirror.Hydrate(ctx, c.read); err != nil {
		c.logger.Warn("hydration after create failed", "err", err)
		c.mirror.UpsertAfterCreate(domain.QuizEntity{
			ID:            c.clock().UnixMilli(),
			Question:      input.Question,
			Options:       domain.OptionLabels,
			CorrectAnswer: input.CorrectAnswer,
			Creator:       c.bootstrap.Actor(),
			Timestamp:     c.clock().Unix(),
			PublicValue1:  int64(input.CorrectAnswer),
		})
	}
	c.notifier.Show(domain.PhaseSuccess, "Quiz created successfully!")
	return nil
}

// SubmitAnswer encrypts and submits the chosen option for a quiz. The local
// selection and history entry are recorded only after finality.
func (c *Client) SubmitAnswer(ctx context.Context, quizID int64, answer int) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	release, err := c.inflight.acquire("submit", quizID)
	if err != nil {
		return err
	}
	defer release()

	c.notifier.Show(domain.PhasePending, "Encrypting answer with FHE...")

	payload, err := c.enc.Encrypt(ctx, c.ContextID(), c.bootstrap.Actor(), int64(answer))
	if err != nil {
		c.failWrite(fmt.Errorf("encrypt answer: %w", err))
		return err
	}

	c.notifier.Show(domain.PhasePending, "Submitting encrypted answer...")

	tx, err := c.write.CreateRecord(ctx, domain.RecordWrite{
		ID:             "answer-" + c.answerID(),
		Label:          fmt.Sprintf("Answer for %s%d", quizIDPrefix, quizID),
		Ciphertext:     payload.Ciphertext,
		Proof:          payload.Proof,
		PlaintextValue: int64(answer),
		ParentRef:      quizID,
		Kind:           domain.KindUserAnswer,
	})
	if err != nil {
		c.failWrite(err)
		return err
	}
	if err := tx.Wait(ctx); err != nil {
		c.failWrite(err)
		return err
	}

	c.mirror.RecordSubmission(quizID, answer)
	c.notifier.Show(domain.PhaseSuccess, "Answer submitted successfully!")
	return nil
}

// failWrite maps a write-path failure onto the status slot, distinguishing a
// signing rejection from generic submission failures.
func (c *Client) failWrite(err error) {
	if domain.IsUserDeclined(err) {
		c.notifier.Show(domain.PhaseError, "Transaction rejected by user")
		return
	}
	c.notifier.Show(domain.PhaseError, "Submission failed: "+err.Error())
}
