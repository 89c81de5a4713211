package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
	"fhe-quiz-client/internal/infra/fhe"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Ledger persists records in a Postgres table, the durable counterpart of
// the Redis backend. Enumeration order follows insertion order (seq column).
type Ledger struct {
	pool    *pgxpool.Pool
	address string
	clock   func() time.Time

	mu     sync.RWMutex
	signer string
}

func NewLedger(pool *pgxpool.Pool, address string) *Ledger {
	return &Ledger{pool: pool, address: address, clock: time.Now}
}

// SetSigner attaches the signing identity used as creator on writes.
func (l *Ledger) SetSigner(actor string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signer = actor
}

func (l *Ledger) currentSigner() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.signer
}

func (l *Ledger) AllRecordIDs(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT id FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *Ledger) RecordData(ctx context.Context, id string) (domain.RecordData, error) {
	var data domain.RecordData
	err := l.pool.QueryRow(ctx,
		`SELECT name, creator, created_at, public_value1, public_value2, verified, decrypted_value
		 FROM records WHERE id=$1`, id).
		Scan(&data.Name, &data.Creator, &data.Timestamp, &data.PublicValue1,
			&data.PublicValue2, &data.IsVerified, &data.DecryptedValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecordData{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	if err != nil {
		return domain.RecordData{}, fmt.Errorf("load record: %w", err)
	}
	return data, nil
}

func (l *Ledger) EncryptedValueHandle(ctx context.Context, id string) (string, error) {
	var ciphertext []byte
	err := l.pool.QueryRow(ctx, `SELECT ciphertext FROM records WHERE id=$1`, id).Scan(&ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return fhe.EncodeHandle(ciphertext), nil
}

func (l *Ledger) Address(_ context.Context) (string, error) {
	return l.address, nil
}

func (l *Ledger) IsAvailable(ctx context.Context) (bool, error) {
	if err := l.pool.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) CreateRecord(ctx context.Context, rec domain.RecordWrite) (app.PendingTx, error) {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO records (id, name, creator, created_at, public_value1, public_value2, ciphertext, proof, parent_ref, kind)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Label, l.currentSigner(), l.clock().Unix(),
		rec.PlaintextValue, rec.ParentRef, rec.Ciphertext, rec.Proof,
		rec.ParentRef, rec.Kind.String())
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("record %s already exists", rec.ID)
	}
	return doneTx{}, nil
}

func (l *Ledger) VerifyDecryption(ctx context.Context, id string, clearValues, _ []byte) (app.PendingTx, error) {
	values, err := fhe.DecodeClearValues(clearValues)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty clear value set")
	}

	tag, err := l.pool.Exec(ctx,
		`UPDATE records SET verified=TRUE, decrypted_value=$2 WHERE id=$1`, id, values[0])
	if err != nil {
		return nil, fmt.Errorf("verify decryption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return doneTx{}, nil
}

type doneTx struct{ err error }

func (t doneTx) Wait(_ context.Context) error { return t.err }
