package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
	"fhe-quiz-client/internal/infra/fhe"
)

// Ledger is an in-memory implementation of the read and write gateway ports,
// useful for tests and demos. Writes reach finality immediately; insertion
// order of record ids is preserved like the remote store's enumeration.
type Ledger struct {
	address string
	clock   func() time.Time

	mu      sync.RWMutex
	signer  string
	order   []string
	records map[string]*record
}

type record struct {
	data       domain.RecordData
	ciphertext []byte
	proof      []byte
	parent     int64
	kind       domain.RecordKind
}

func NewLedger(address string) *Ledger {
	return NewLedgerWithClock(address, time.Now)
}

// NewLedgerWithClock allows deterministic record timestamps in tests.
func NewLedgerWithClock(address string, now func() time.Time) *Ledger {
	return &Ledger{
		address: address,
		clock:   now,
		records: make(map[string]*record),
	}
}

// SetSigner attaches the signing identity used as creator on writes.
func (l *Ledger) SetSigner(actor string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signer = actor
}

func (l *Ledger) AllRecordIDs(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out, nil
}

func (l *Ledger) RecordData(_ context.Context, id string) (domain.RecordData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return domain.RecordData{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return rec.data, nil
}

func (l *Ledger) EncryptedValueHandle(_ context.Context, id string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return fhe.EncodeHandle(rec.ciphertext), nil
}

func (l *Ledger) Address(_ context.Context) (string, error) {
	return l.address, nil
}

func (l *Ledger) IsAvailable(_ context.Context) (bool, error) {
	return true, nil
}

func (l *Ledger) CreateRecord(_ context.Context, rec domain.RecordWrite) (app.PendingTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.ID]; exists {
		return nil, fmt.Errorf("record %s already exists", rec.ID)
	}
	l.records[rec.ID] = &record{
		data: domain.RecordData{
			Name:         rec.Label,
			Creator:      l.signer,
			Timestamp:    l.clock().Unix(),
			PublicValue1: rec.PlaintextValue,
			PublicValue2: rec.ParentRef,
		},
		ciphertext: rec.Ciphertext,
		proof:      rec.Proof,
		parent:     rec.ParentRef,
		kind:       rec.Kind,
	}
	l.order = append(l.order, rec.ID)
	return doneTx{}, nil
}

func (l *Ledger) VerifyDecryption(_ context.Context, id string, clearValues, _ []byte) (app.PendingTx, error) {
	values, err := fhe.DecodeClearValues(clearValues)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty clear value set")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	rec.data.IsVerified = true
	rec.data.DecryptedValue = values[0]
	return doneTx{}, nil
}

// doneTx is a finality signal for writes that complete synchronously.
type doneTx struct{ err error }

func (t doneTx) Wait(_ context.Context) error { return t.err }
