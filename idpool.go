package probez

import (
	"sync"
	"sync/atomic"
)

// IDPool keeps a buffer of pre-generated span IDs so the hot enter path
// does not pay for crypto/rand.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	misses  atomic.Uint64
	once    sync.Once
}

// NewIDPool creates a pool holding up to capacity IDs and starts its refill
// goroutine.
func NewIDPool(capacity int, factory func() string) *IDPool {
	if capacity <= 0 {
		capacity = 1
	}
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled ID, or generates one inline when the pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		p.misses.Add(1)
		return p.factory()
	}
}

// Misses returns how many Get calls found the pool empty.
func (p *IDPool) Misses() uint64 {
	return p.misses.Load()
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. IDs already pooled remain available.
// Safe to call more than once.
func (p *IDPool) Close() {
	p.once.Do(func() {
		close(p.stopCh)
	})
}
