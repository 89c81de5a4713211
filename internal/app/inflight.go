package app

import (
	"sync"

	"fhe-quiz-client/internal/domain"
)

// inflightGuard holds one token per (action, target) pair so a duplicate
// intent cannot race a still-running one for the same target.
type inflightGuard struct {
	mu     sync.Mutex
	tokens map[inflightKey]struct{}
}

type inflightKey struct {
	action string
	target int64
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{tokens: make(map[inflightKey]struct{})}
}

// acquire takes the token for (action, target) or fails with
// ErrAlreadyInProgress. The caller must release on every exit path.
func (g *inflightGuard) acquire(action string, target int64) (func(), error) {
	key := inflightKey{action: action, target: target}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.tokens[key]; busy {
		return nil, domain.ErrAlreadyInProgress
	}
	g.tokens[key] = struct{}{}
	release := func() {
		g.mu.Lock()
		delete(g.tokens, key)
		g.mu.Unlock()
	}
	return release, nil
}
