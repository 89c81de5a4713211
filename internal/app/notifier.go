package app

import (
	"sync"
	"time"

	"fhe-quiz-client/internal/domain"
)

const (
	defaultSuccessClear = 2 * time.Second
	defaultErrorClear   = 3 * time.Second
)

// Notifier is the single-slot transient status publisher. Show replaces the
// current notification (last-write-wins, no queue); terminal phases schedule
// an auto-clear that re-checks the sequence number so a stale timer never
// blanks a newer message.
type Notifier struct {
	successClear time.Duration
	errorClear   time.Duration

	mu          sync.Mutex
	seq         uint64
	current     domain.TransactionStatus
	subscribers map[chan domain.TransactionStatus]struct{}
}

func NewNotifier() *Notifier {
	return NewNotifierWithDelays(defaultSuccessClear, defaultErrorClear)
}

// NewNotifierWithDelays allows short auto-clear delays in tests.
func NewNotifierWithDelays(successClear, errorClear time.Duration) *Notifier {
	return &Notifier{
		successClear: successClear,
		errorClear:   errorClear,
		subscribers:  make(map[chan domain.TransactionStatus]struct{}),
	}
}

// Show publishes a notification, clobbering whatever is currently visible.
func (n *Notifier) Show(phase domain.StatusPhase, message string) {
	n.mu.Lock()
	n.seq++
	seq := n.seq
	n.current = domain.TransactionStatus{
		Visible: true,
		Phase:   phase,
		Message: message,
		Seq:     seq,
	}
	n.broadcastLocked()
	n.mu.Unlock()

	var clear time.Duration
	switch phase {
	case domain.PhaseSuccess:
		clear = n.successClear
	case domain.PhaseError:
		clear = n.errorClear
	default:
		return
	}
	time.AfterFunc(clear, func() { n.hideIfCurrent(seq) })
}

// Hide clears the slot unconditionally.
func (n *Notifier) Hide() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	n.current = domain.TransactionStatus{Seq: n.seq}
	n.broadcastLocked()
}

// hideIfCurrent clears the slot only if no newer Show happened since seq.
func (n *Notifier) hideIfCurrent(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current.Seq != seq {
		return
	}
	n.seq++
	n.current = domain.TransactionStatus{Seq: n.seq}
	n.broadcastLocked()
}

// Current returns the status slot as of now.
func (n *Notifier) Current() domain.TransactionStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Subscribe returns a channel receiving every status change, starting with
// the current value. The caller must invoke cancel to avoid leaks.
func (n *Notifier) Subscribe() (<-chan domain.TransactionStatus, func()) {
	ch := make(chan domain.TransactionStatus, 8)

	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	initial := n.current
	n.mu.Unlock()

	ch <- initial

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subscribers[ch]; ok {
			delete(n.subscribers, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *Notifier) broadcastLocked() {
	for ch := range n.subscribers {
		select {
		case ch <- n.current:
		default:
			// Drop the stale update so a slow subscriber cannot block Show.
			select {
			case <-ch:
			default:
			}
			ch <- n.current
		}
	}
}
