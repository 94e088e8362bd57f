package server

import (
	"sync"
)

// task is a unit of work submitted to a WorkerPool — in practice, "run one
// session's life from accept to close".
type task func()

// poolItem is what actually travels through the task queue: either real
// work, or an exit sentinel used by Resize to shed a worker.
type poolItem struct {
	fn   task
	exit bool
}

// WorkerPool is a pool of goroutines draining an unbounded task queue,
// structured the same way as Queue: a slice guarded by a mutex and
// condition variable rather than a buffered channel, so Submit never blocks
// regardless of how many tasks are outstanding. Its size can change at
// runtime via Resize, driven by THREAD_POOL_SIZE.
type WorkerPool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	tasks    []poolItem
	closed   bool
	started  bool
	size     int
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers. Workers
// don't start running until Start is called.
func NewWorkerPool(size int) *WorkerPool {
	p := &WorkerPool{size: size}
	p.notEmpty = sync.NewCond(&p.mu)
	return p
}

// Start launches the pool's current set of worker goroutines.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	p.started = true
	n := p.size
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		item, ok := p.dequeue()
		if !ok || item.exit {
			return
		}
		item.fn()
	}
}

func (p *WorkerPool) dequeue() (poolItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.tasks) == 0 && !p.closed {
		p.notEmpty.Wait()
	}
	if len(p.tasks) == 0 {
		return poolItem{}, false
	}
	t := p.tasks[0]
	p.tasks = p.tasks[1:]
	return t, true
}

// Submit enqueues t for execution by the next free worker. It never blocks:
// the queue grows as needed. Submit on a stopped pool is a no-op.
func (p *WorkerPool) Submit(t task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.tasks = append(p.tasks, poolItem{fn: t})
	p.notEmpty.Signal()
}

// QueueLen reports the number of tasks waiting for a free worker.
func (p *WorkerPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Resize changes the pool's worker count to size (clamped to at least 1).
// Called before Start, it just changes how many workers Start launches.
// Called after Start, growing spawns new workers immediately; shrinking
// queues exit sentinels ahead of any pending work so idle workers pick them
// up before any new session task does.
func (p *WorkerPool) Resize(size int) {
	if size < 1 {
		size = 1
	}

	p.mu.Lock()
	delta := size - p.size
	p.size = size
	started := p.started
	if started && delta < 0 {
		pills := make([]poolItem, -delta)
		for i := range pills {
			pills[i] = poolItem{exit: true}
		}
		p.tasks = append(pills, p.tasks...)
	}
	p.mu.Unlock()

	if !started {
		return
	}
	if delta < 0 {
		p.notEmpty.Broadcast()
		return
	}
	for i := 0; i < delta; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop wakes every worker so it can observe closure and exit, then waits for
// all of them to return. Tasks still queued when Stop is called are run by
// the workers before they exit; only Submit calls made after Stop are ignored.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.notEmpty.Broadcast()
	p.wg.Wait()
}
