// Package poolnum implements a bounded multiset of 16-bit identifiers,
// handed out via borrow-any / borrow-specific / return. It backs IPv4 port and ICMP identifier allocation in internal/pool4.
//
// The allocator is a fixed-size circular array that doubles as its own
// freelist: get_any/get move a value out of the "available" arc, return
// writes it back. No auxiliary bitmap is kept cost given count <= 2^16).
package poolnum

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/nat64io/natd/internal/natstate"
)

// Pool is a concurrency-safe circular buffer of borrowable uint16 values.
//
// next is the index of the next value get_any will hand out. returned is
// the index the next Return will write to. When next == returned the pool
// is either completely empty or completely full; nextIsAhead disambiguates
// the two.
type Pool struct {
	mu   sync.Mutex
	arr  []uint16
	next uint16
	ret  uint16
	// nextIsAhead is true once next has lapped returned at least once
	// since the pool was last full, i.e. the pool is drained.
	nextIsAhead bool
}

// New allocates a Pool sampling [min, max] by stride: min, min+stride, ...
// The array order is a seeded random permutation of the sampled values so
// that ports are not handed out in ascending order, a known side channel
// for port-prediction attacks. rngSeed is caller-supplied so tests and
// callers needing reproducible allocation order can pin it.
func New(min, max, stride uint16, rngSeed uint64) (*Pool, error) {
	if stride == 0 || min > max {
		return nil, fmt.Errorf("poolnum.New(min=%d, max=%d, stride=%d): %w", min, max, stride, natstate.ErrInvalidArg)
	}

	count := (int(max)-int(min))/int(stride) + 1
	arr := make([]uint16, count)
	for i := range arr {
		arr[i] = min + uint16(i)*stride
	}

	rng := rand.New(rand.NewPCG(rngSeed, rngSeed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(arr), func(i, j int) { arr[i], arr[j] = arr[j], arr[i] })

	return &Pool{arr: arr}, nil
}

// NewUnshuffled builds a Pool over values in the given array order, with no
// randomization. Exported for tests that need a deterministic slot layout;
// production callers should use New.
func NewUnshuffled(values []uint16) *Pool {
	arr := make([]uint16, len(values))
	copy(arr, values)
	return &Pool{arr: arr}
}

// Count returns the total number of distinct identifiers the pool spans.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.arr)
}

// isEmptyLocked reports whether no identifiers are currently borrowable.
// next has lapped returned once since the pool was last full.
func (p *Pool) isEmptyLocked() bool {
	return p.next == p.ret && p.nextIsAhead
}

// isFullLocked reports whether every identifier is currently borrowable
// (none are out on loan) -- the state immediately after New.
func (p *Pool) isFullLocked() bool {
	return p.next == p.ret && !p.nextIsAhead
}

func (p *Pool) advanceNextLocked() {
	p.next++
	if int(p.next) == len(p.arr) {
		p.next = 0
	}
	if p.next == p.ret {
		p.nextIsAhead = true
	}
}

// GetAny borrows an arbitrary identifier from the pool. Returns
// natstate.ErrExhausted if none remain.
func (p *Pool) GetAny() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isEmptyLocked() {
		return 0, fmt.Errorf("poolnum.GetAny: %w", natstate.ErrExhausted)
	}

	v := p.arr[p.next]
	p.advanceNextLocked()
	return v, nil
}

// Get borrows a specific value out of the available arc (the region
// spanning from next forward to returned). It is O(count): the array is
// linearly scanned for value, and if found, the slot is swapped with
// array[next] before next is advanced -- this preserves the multiset
// invariant without a separate index. Returns natstate.ErrNotFound if
// value is not currently available.
func (p *Pool) Get(value uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isEmptyLocked() {
		return fmt.Errorf("poolnum.Get(%d): %w", value, natstate.ErrNotFound)
	}

	idx, ok := p.findAvailableLocked(value)
	if !ok {
		return fmt.Errorf("poolnum.Get(%d): %w", value, natstate.ErrNotFound)
	}

	p.arr[idx] = p.arr[p.next]
	p.arr[p.next] = value
	p.advanceNextLocked()
	return nil
}

// findAvailableLocked scans the available arc -- the arc from next forward
// to returned -- for value, returning its array index.
func (p *Pool) findAvailableLocked(value uint16) (int, bool) {
	n := len(p.arr)

	available := n
	if !p.isFullLocked() {
		available = (int(p.ret) - int(p.next) + n) % n
	}

	for i := 0; i < available; i++ {
		idx := (int(p.next) + i) % n
		if p.arr[idx] == value {
			return idx, true
		}
	}
	return 0, false
}

// Return gives value back to the pool. No check verifies value was
// previously borrowed from this pool -- the caller is responsible for that.
// Returns natstate.ErrOverflow if the pool is already full.
func (p *Pool) Return(value uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isFullLocked() {
		return fmt.Errorf("poolnum.Return(%d): %w", value, natstate.ErrOverflow)
	}

	p.arr[p.ret] = value
	p.ret++
	if int(p.ret) == len(p.arr) {
		p.ret = 0
	}
	if p.ret == p.next {
		p.nextIsAhead = false
	}
	return nil
}
