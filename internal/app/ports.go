package app

import (
	"context"

	"fhe-quiz-client/internal/domain"
)

// PendingTx is the finality signal of a submitted ledger write. Wait blocks
// until the write is durable and visible to subsequent reads.
type PendingTx interface {
	Wait(ctx context.Context) error
}

// ReadGateway is the public, unsigned read surface of the remote store.
type ReadGateway interface {
	AllRecordIDs(ctx context.Context) ([]string, error)
	RecordData(ctx context.Context, id string) (domain.RecordData, error)
	// EncryptedValueHandle returns an opaque reference to a record's encrypted
	// value, resolvable only through the encryption service's proof protocol.
	EncryptedValueHandle(ctx context.Context, id string) (string, error)
	Address(ctx context.Context) (string, error)
	IsAvailable(ctx context.Context) (bool, error)
}

// WriteGateway is the signed write surface of the remote store.
type WriteGateway interface {
	CreateRecord(ctx context.Context, rec domain.RecordWrite) (PendingTx, error)
	VerifyDecryption(ctx context.Context, id string, clearValues, proof []byte) (PendingTx, error)
}

// SubmitProofFunc performs the on-chain verify-decryption write for the
// service-produced clear-value encoding and decryption proof.
type SubmitProofFunc func(clearValues, proof []byte) (PendingTx, error)

// Encryptor is the opaque encryption service. Initialize may be called
// repeatedly but concurrent calls must be guarded by the caller.
// RequestDecryptionProof invokes submit once a proof is obtained and awaits
// the returned transaction's finality before returning.
type Encryptor interface {
	Initialize(ctx context.Context) error
	Encrypt(ctx context.Context, contextID, actor string, value int64) (domain.EncryptedPayload, error)
	RequestDecryptionProof(ctx context.Context, handles []string, contextID string, submit SubmitProofFunc) error
}
