package app_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opLog records the order of external calls so ordering invariants can be
// asserted.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

type fakeLedger struct {
	log *opLog

	mu      sync.Mutex
	order   []string
	records map[string]domain.RecordData

	idsErr       error
	fetchErr     map[string]error
	createErr    error
	waitErr      error
	enteredWrite chan struct{}
	blockWrite   chan struct{}
}

func newFakeLedger(log *opLog) *fakeLedger {
	return &fakeLedger{
		log:      log,
		records:  make(map[string]domain.RecordData),
		fetchErr: make(map[string]error),
	}
}

func (f *fakeLedger) seed(id string, data domain.RecordData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, id)
	f.records[id] = data
}

func (f *fakeLedger) AllRecordIDs(context.Context) ([]string, error) {
	if f.idsErr != nil {
		return nil, f.idsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out, nil
}

func (f *fakeLedger) RecordData(_ context.Context, id string) (domain.RecordData, error) {
	if err, ok := f.fetchErr[id]; ok {
		return domain.RecordData{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.records[id]
	if !ok {
		return domain.RecordData{}, domain.ErrRecordNotFound
	}
	return data, nil
}

func (f *fakeLedger) EncryptedValueHandle(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return "", domain.ErrRecordNotFound
	}
	return "handle-" + id, nil
}

func (f *fakeLedger) Address(context.Context) (string, error) {
	return "0xdeadbeef", nil
}

func (f *fakeLedger) IsAvailable(context.Context) (bool, error) {
	return true, nil
}

func (f *fakeLedger) CreateRecord(_ context.Context, rec domain.RecordWrite) (app.PendingTx, error) {
	f.log.add("createRecord")
	if f.enteredWrite != nil {
		select {
		case f.enteredWrite <- struct{}{}:
		default:
		}
	}
	if f.blockWrite != nil {
		<-f.blockWrite
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.order = append(f.order, rec.ID)
	f.records[rec.ID] = domain.RecordData{
		Name:         rec.Label,
		Creator:      "0xabc",
		Timestamp:    1700000000,
		PublicValue1: rec.PlaintextValue,
		PublicValue2: rec.ParentRef,
	}
	f.mu.Unlock()
	return fakeTx{err: f.waitErr}, nil
}

func (f *fakeLedger) VerifyDecryption(_ context.Context, id string, clearValues, _ []byte) (app.PendingTx, error) {
	f.log.add("verifyDecryption")
	if len(clearValues) < 8 {
		return nil, errors.New("short clear values")
	}
	value := int64(binary.BigEndian.Uint64(clearValues[:8]))
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	data.IsVerified = true
	data.DecryptedValue = value
	f.records[id] = data
	return fakeTx{}, nil
}

type fakeTx struct{ err error }

func (t fakeTx) Wait(context.Context) error { return t.err }

type fakeEncryptor struct {
	log        *opLog
	initCalls  atomic.Int32
	initDelay  time.Duration
	initErr    error
	encryptErr error
	proofErr   error
	clearValue int64
}

func (e *fakeEncryptor) Initialize(context.Context) error {
	e.initCalls.Add(1)
	if e.initDelay > 0 {
		time.Sleep(e.initDelay)
	}
	return e.initErr
}

func (e *fakeEncryptor) Encrypt(_ context.Context, _, _ string, value int64) (domain.EncryptedPayload, error) {
	e.log.add("encrypt")
	if e.encryptErr != nil {
		return domain.EncryptedPayload{}, e.encryptErr
	}
	return domain.EncryptedPayload{
		Ciphertext: []byte(fmt.Sprintf("ct-%d", value)),
		Proof:      []byte("input-proof"),
	}, nil
}

func (e *fakeEncryptor) RequestDecryptionProof(ctx context.Context, _ []string, _ string, submit app.SubmitProofFunc) error {
	if e.proofErr != nil {
		return e.proofErr
	}
	clear := make([]byte, 8)
	binary.BigEndian.PutUint64(clear, uint64(e.clearValue))
	tx, err := submit(clear, []byte("decryption-proof"))
	if err != nil {
		return err
	}
	return tx.Wait(ctx)
}

type testEnv struct {
	client   *app.Client
	ledger   *fakeLedger
	enc      *fakeEncryptor
	notifier *app.Notifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := &opLog{}
	ledger := newFakeLedger(log)
	enc := &fakeEncryptor{log: log, clearValue: 1}
	notifier := app.NewNotifierWithDelays(20*time.Millisecond, 30*time.Millisecond)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.UnixMilli(1750000000000)
	answerSeq := 0
	client := app.NewClientWithClock(ledger, ledger, enc, notifier, logger,
		func() time.Time { return now },
		func() string {
			answerSeq++
			return fmt.Sprintf("fixed-%d", answerSeq)
		},
	)
	return &testEnv{client: client, ledger: ledger, enc: enc, notifier: notifier, now: now}
}

func (env *testEnv) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, env.client.Connect(context.Background(), "0xabc"))
	require.Equal(t, domain.StateReady, env.client.State())
}

func TestCreateQuizRequiresWallet(t *testing.T) {
	env := newTestEnv(t)

	err := env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q1", CorrectAnswer: 1})
	require.ErrorIs(t, err, domain.ErrNotConnected)

	status := env.client.Status()
	assert.True(t, status.Visible)
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Contains(t, status.Message, "connect wallet")
	assert.NotContains(t, env.ledger.log.snapshot(), "createRecord")
}

func TestEncryptBeforeSubmitOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	require.NoError(t, env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q1", CorrectAnswer: 2}))

	ops := env.ledger.log.snapshot()
	require.Contains(t, ops, "encrypt")
	require.Contains(t, ops, "createRecord")
	encryptAt, createAt := -1, -1
	for i, op := range ops {
		if op == "encrypt" && encryptAt == -1 {
			encryptAt = i
		}
		if op == "createRecord" && createAt == -1 {
			createAt = i
		}
	}
	assert.Less(t, encryptAt, createAt, "plaintext must be encrypted before any gateway write")
}

func TestSubmitAnswerEncryptFailureLeavesMirrorUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.enc.encryptErr = errors.New("simulated fault")

	err := env.client.SubmitAnswer(context.Background(), 7, 2)
	require.Error(t, err)

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	_, selected := env.client.Selections()[7]
	assert.False(t, selected)
	assert.Empty(t, env.client.History())
	assert.NotContains(t, env.ledger.log.snapshot(), "createRecord")
}

func TestCreateQuizSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	require.NoError(t, env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q1", CorrectAnswer: 1}))

	quizzes := env.client.Quizzes()
	require.Len(t, quizzes, 1)
	assert.Equal(t, "Q1", quizzes[0].Question)
	assert.Equal(t, env.now.UnixMilli(), quizzes[0].ID)
	assert.Equal(t, domain.OptionLabels, quizzes[0].Options)

	status := env.client.Status()
	require.Equal(t, domain.PhaseSuccess, status.Phase)

	time.Sleep(80 * time.Millisecond)
	assert.False(t, env.client.Status().Visible, "success notification must auto-clear")
}

func TestSubmitAnswerRecordsSelectionAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	before := len(env.client.History())
	require.NoError(t, env.client.SubmitAnswer(context.Background(), 7, 2))

	assert.Equal(t, 2, env.client.Selections()[7])
	history := env.client.History()
	require.Len(t, history, before+1)
	assert.Equal(t, int64(7), history[0].QuizID)
	assert.Equal(t, 2, history[0].Answer)
	assert.Equal(t, "submitted", history[0].Status)
}

func TestPartialHydrationSkipsBadRecord(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.seed("quiz-1", domain.RecordData{Name: "first"})
	env.ledger.seed("quiz-2", domain.RecordData{Name: "second"})
	env.ledger.seed("quiz-3", domain.RecordData{Name: "third"})
	env.ledger.fetchErr["quiz-2"] = errors.New("simulated fetch failure")

	require.NoError(t, env.client.Refresh(context.Background()))

	quizzes := env.client.Quizzes()
	require.Len(t, quizzes, 2)
	assert.Equal(t, "first", quizzes[0].Question)
	assert.Equal(t, "third", quizzes[1].Question)
}

func TestHydrationFallbackIDForMalformedRecord(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.seed("answer-xyz", domain.RecordData{Name: "Answer for quiz-1"})

	require.NoError(t, env.client.Refresh(context.Background()))

	quizzes := env.client.Quizzes()
	require.Len(t, quizzes, 1)
	assert.Equal(t, env.now.UnixMilli(), quizzes[0].ID, "malformed ids fall back to the clock instead of dropping the record")
}

func TestRefreshIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.seed("quiz-1", domain.RecordData{Name: "first", PublicValue1: 1})
	env.ledger.seed("quiz-2", domain.RecordData{Name: "second", PublicValue1: 3})

	require.NoError(t, env.client.Refresh(context.Background()))
	first := env.client.Quizzes()
	require.NoError(t, env.client.Refresh(context.Background()))
	second := env.client.Quizzes()

	assert.Equal(t, first, second)
}

func TestCreateQuizFallsBackToLocalUpsert(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.idsErr = errors.New("enumeration down")

	require.NoError(t, env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q1", CorrectAnswer: 1}))

	quizzes := env.client.Quizzes()
	require.Len(t, quizzes, 1, "confirmed quiz must appear even when re-hydration fails")
	assert.Equal(t, "Q1", quizzes[0].Question)
	assert.Equal(t, domain.PhaseSuccess, env.client.Status().Phase)
}

func TestRefreshFailureNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.idsErr = errors.New("gateway down")

	require.Error(t, env.client.Refresh(context.Background()))

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Equal(t, "Failed to load data", status.Message)
}

func TestUserDeclinedMapsToFriendlyMessage(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.createErr = errors.New("rpc: user rejected transaction (code 4001)")

	err := env.client.SubmitAnswer(context.Background(), 1, 0)
	require.Error(t, err)

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Equal(t, "Transaction rejected by user", status.Message)
	assert.Empty(t, env.client.History())
}

func TestWriteFailureMapsToSubmissionFailed(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.waitErr = errors.New("timeout awaiting finality")

	err := env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q", CorrectAnswer: 0})
	require.Error(t, err)

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Contains(t, status.Message, "Submission failed:")
}

func TestVerifyAnswerSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.seed("quiz-42", domain.RecordData{Name: "The question", PublicValue1: 1})
	env.enc.clearValue = 1

	require.NoError(t, env.client.VerifyAnswer(context.Background(), 42))

	quiz, ok := env.client.Quiz(42)
	require.True(t, ok)
	assert.True(t, quiz.Verified)
	assert.Equal(t, int64(1), quiz.DecryptedValue)
	assert.Equal(t, domain.PhaseSuccess, env.client.Status().Phase)
}

func TestVerifyAnswerFailureLeavesMirrorUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.seed("quiz-42", domain.RecordData{Name: "The question"})
	require.NoError(t, env.client.Refresh(context.Background()))
	env.enc.proofErr = errors.New("relayer unavailable")

	err := env.client.VerifyAnswer(context.Background(), 42)
	require.Error(t, err)

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Contains(t, status.Message, "Verification failed:")
	quiz, ok := env.client.Quiz(42)
	require.True(t, ok)
	assert.False(t, quiz.Verified)
}

func TestVerifyWithoutWalletIsSilentNoop(t *testing.T) {
	env := newTestEnv(t)

	err := env.client.VerifyAnswer(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotConnected)
	assert.False(t, env.client.Status().Visible)
}

func TestDuplicateSubmitRejectedWhileInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.enteredWrite = make(chan struct{}, 1)
	env.ledger.blockWrite = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- env.client.SubmitAnswer(context.Background(), 5, 1)
	}()
	<-env.ledger.enteredWrite

	err := env.client.SubmitAnswer(context.Background(), 5, 3)
	require.ErrorIs(t, err, domain.ErrAlreadyInProgress)

	close(env.ledger.blockWrite)
	require.NoError(t, <-done)
	assert.Equal(t, 1, env.client.Selections()[5], "only the first submission may land")
	assert.Len(t, env.client.History(), 1)
}

func TestBootstrapInitializationSingleFlight(t *testing.T) {
	env := newTestEnv(t)
	env.enc.initDelay = 30 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = env.client.Connect(context.Background(), "0xabc")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), env.enc.initCalls.Load(), "concurrent connects must share one initialization attempt")
	assert.Equal(t, domain.StateReady, env.client.State())
}

func TestBootstrapInitializationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.enc.initErr = errors.New("sdk bundle failed to load")

	err := env.client.Connect(context.Background(), "0xabc")
	require.Error(t, err)

	assert.Equal(t, domain.StateDisconnected, env.client.State())
	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Contains(t, status.Message, "FHE initialization failed")

	// A retry after the transient failure recovers.
	env.enc.initErr = nil
	require.NoError(t, env.client.Connect(context.Background(), "0xabc"))
	assert.Equal(t, domain.StateReady, env.client.State())
}

func TestWriteBeforeReadyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.enc.initErr = errors.New("sdk bundle failed to load")
	_ = env.client.Connect(context.Background(), "0xabc")

	err := env.client.CreateQuiz(context.Background(), app.NewQuiz{Question: "Q", CorrectAnswer: 0})
	require.ErrorIs(t, err, domain.ErrEncryptionNotReady)

	status := env.client.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.NotContains(t, env.ledger.log.snapshot(), "createRecord")
}

func TestDisconnectResetsSession(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	require.NoError(t, env.client.SubmitAnswer(context.Background(), 3, 1))

	env.client.Disconnect()

	assert.Equal(t, domain.StateDisconnected, env.client.State())
	assert.Empty(t, env.client.Selections())
	assert.Empty(t, env.client.History())
}

func TestCheckAvailability(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.client.CheckAvailability(context.Background()))

	status := env.client.Status()
	assert.Equal(t, domain.PhaseSuccess, status.Phase)
	assert.Contains(t, status.Message, "available")
}

func TestStatsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.seed("quiz-1", domain.RecordData{Name: "q", IsVerified: true})
	require.NoError(t, env.client.Refresh(context.Background()))
	require.NoError(t, env.client.SubmitAnswer(context.Background(), 1, 0))

	stats := env.client.Stats()
	assert.Equal(t, 1, stats.VerifiedCount)
	assert.Equal(t, 1, stats.Submissions)
	assert.GreaterOrEqual(t, stats.TotalQuizzes, 1)
}
