package redis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
	"fhe-quiz-client/internal/infra/fhe"
	"github.com/redis/go-redis/v9"
)

// Ledger is a Redis-backed implementation of the gateway ports. Records live
// in one hash per id plus a list preserving enumeration order. It serves as
// a shared dev ledger: several client processes pointed at the same Redis
// see the same records.
type Ledger struct {
	client  *redis.Client
	address string
	clock   func() time.Time

	mu     sync.RWMutex
	signer string
}

func NewLedger(client *redis.Client, address string) *Ledger {
	return &Ledger{client: client, address: address, clock: time.Now}
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
	return l.client.LRange(ctx, l.idsKey(), 0, -1).Result()
}

func (l *Ledger) RecordData(ctx context.Context, id string) (domain.RecordData, error) {
	fields, err := l.client.HGetAll(ctx, l.recordKey(id)).Result()
	if err != nil {
		return domain.RecordData{}, err
	}
	if len(fields) == 0 {
		return domain.RecordData{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return domain.RecordData{
		Name:           fields["name"],
		Creator:        fields["creator"],
		Timestamp:      parseInt(fields["timestamp"]),
		PublicValue1:   parseInt(fields["public1"]),
		PublicValue2:   parseInt(fields["public2"]),
		IsVerified:     fields["verified"] == "1",
		DecryptedValue: parseInt(fields["decrypted"]),
	}, nil
}

func (l *Ledger) EncryptedValueHandle(ctx context.Context, id string) (string, error) {
	raw, err := l.client.HGet(ctx, l.recordKey(id), "ciphertext").Result()
	if err == redis.Nil {
		return "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	if err != nil {
		return "", err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("corrupt ciphertext for %s: %w", id, err)
	}
	return fhe.EncodeHandle(ciphertext), nil
}

func (l *Ledger) Address(_ context.Context) (string, error) {
	return l.address, nil
}

func (l *Ledger) IsAvailable(ctx context.Context) (bool, error) {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) CreateRecord(ctx context.Context, rec domain.RecordWrite) (app.PendingTx, error) {
	exists, err := l.client.Exists(ctx, l.recordKey(rec.ID)).Result()
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("record %s already exists", rec.ID)
	}

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, l.recordKey(rec.ID), map[string]interface{}{
		"name":       rec.Label,
		"creator":    l.currentSigner(),
		"timestamp":  l.clock().Unix(),
		"public1":    rec.PlaintextValue,
		"public2":    rec.ParentRef,
		"verified":   "0",
		"decrypted":  "0",
		"ciphertext": base64.StdEncoding.EncodeToString(rec.Ciphertext),
		"proof":      base64.StdEncoding.EncodeToString(rec.Proof),
		"kind":       rec.Kind.String(),
		"parent":     rec.ParentRef,
	})
	pipe.RPush(ctx, l.idsKey(), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
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

	exists, err := l.client.Exists(ctx, l.recordKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}

	err = l.client.HSet(ctx, l.recordKey(id), map[string]interface{}{
		"verified":  "1",
		"decrypted": values[0],
	}).Err()
	if err != nil {
		return nil, err
	}
	return doneTx{}, nil
}

func (l *Ledger) recordKey(id string) string {
	return "ledger:record:" + id
}

func (l *Ledger) idsKey() string {
	return "ledger:records"
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

type doneTx struct{ err error }

func (t doneTx) Wait(_ context.Context) error { return t.err }
