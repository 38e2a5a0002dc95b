package services

import "sync"

// RuleLocks serializes work on the same rule within the process. Scheduled
// runs, manual triggers and backfills all take the rule's lock before reading
// its occurrences, so their checks and appends do not interleave.
type RuleLocks struct {
	mu    sync.Mutex
	locks map[int64]*ruleLock
}

type ruleLock struct {
	mu   sync.Mutex
	refs int
}

func NewRuleLocks() *RuleLocks {
	return &RuleLocks{locks: make(map[int64]*ruleLock)}
}

// Lock blocks until the rule's lock is held and returns the release func.
func (l *RuleLocks) Lock(ruleID int64) func() {
	l.mu.Lock()
	rl, ok := l.locks[ruleID]
	if !ok {
		rl = &ruleLock{}
		l.locks[ruleID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, ruleID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of rules currently locked or waited on.
func (l *RuleLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
