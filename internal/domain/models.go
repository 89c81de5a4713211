package domain

import "time"

// RecordKind is the closed set of record purposes stored on the ledger.
type RecordKind int

const (
	KindQuizQuestion RecordKind = iota
	KindUserAnswer
)

// String returns the wire label the remote store expects for the kind tag.
func (k RecordKind) String() string {
	switch k {
	case KindUserAnswer:
		return "User Answer"
	default:
		return "Quiz Question"
	}
}

// ParseRecordKind maps a stored kind tag back to its RecordKind.
func ParseRecordKind(tag string) RecordKind {
	if tag == "User Answer" {
		return KindUserAnswer
	}
	return KindQuizQuestion
}

// OptionLabels are the four display options shown for every quiz. They are
// client-side constants; the remote store never carries option text.
var OptionLabels = [4]string{"Option A", "Option B", "Option C", "Option D"}

// QuizEntity is the client-side mirror of a ledger record.
type QuizEntity struct {
	ID             int64     `json:"id"`
	Question       string    `json:"question"`
	Options        [4]string `json:"options"`
	CorrectAnswer  int       `json:"correctAnswer"`
	Creator        string    `json:"creator"`
	Timestamp      int64     `json:"timestamp"`
	PublicValue1   int64     `json:"publicValue1"`
	PublicValue2   int64     `json:"publicValue2"`
	Verified       bool      `json:"verified"`
	DecryptedValue int64     `json:"decryptedValue"`
}

// RecordData is the public field set of a single ledger record.
type RecordData struct {
	Name           string
	Creator        string
	Timestamp      int64
	PublicValue1   int64
	PublicValue2   int64
	IsVerified     bool
	DecryptedValue int64
}

// RecordWrite carries everything the signed create-record call needs.
// PlaintextValue rides alongside the ciphertext; see DESIGN.md on the trust
// model of the remote store.
type RecordWrite struct {
	ID             string
	Label          string
	Ciphertext     []byte
	Proof          []byte
	PlaintextValue int64
	ParentRef      int64
	Kind           RecordKind
}

// EncryptedPayload is the result of encrypting a single value.
type EncryptedPayload struct {
	Ciphertext []byte
	Proof      []byte
}

// HistoryEntry is one append-only submission log record. Entries are never
// mutated after creation.
type HistoryEntry struct {
	QuizID    int64     `json:"quizId"`
	Answer    int       `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// StatusPhase describes the lifecycle of the most recent remote operation.
type StatusPhase string

const (
	PhasePending StatusPhase = "pending"
	PhaseSuccess StatusPhase = "success"
	PhaseError   StatusPhase = "error"
)

// TransactionStatus is the single-slot transient notification value.
// Seq increases monotonically with every Show; auto-clear checks it so a
// stale timer cannot blank a newer message.
type TransactionStatus struct {
	Visible bool        `json:"visible"`
	Phase   StatusPhase `json:"phase"`
	Message string      `json:"message"`
	Seq     uint64      `json:"seq"`
}

// BootstrapState gates orchestration: no write or verify may start before
// the machine reaches StateReady.
type BootstrapState int

const (
	StateDisconnected BootstrapState = iota
	StateEncryptionInitializing
	StateReady
)

func (s BootstrapState) String() string {
	switch s {
	case StateEncryptionInitializing:
		return "encryption-initializing"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Stats is the snapshot the presentation layer renders in its stats bar.
type Stats struct {
	TotalQuizzes  int `json:"totalQuizzes"`
	VerifiedCount int `json:"verifiedCount"`
	Submissions   int `json:"submissions"`
}
