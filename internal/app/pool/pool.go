// Package pool runs extraction tasks on a fixed set of workers behind
// an unbounded in-memory queue, so ingestion never blocks on slow
// processing.
package pool

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/app/extract"
)

// ProcessFunc replays one dump and computes its features.
type ProcessFunc func(extract.DumpInfo) (*extract.Output, error)

// Result reports one finished task. Err is set when processing failed;
// Task always carries the original submission so callers can persist
// the raw dump regardless.
type Result struct {
	Task   extract.DumpInfo
	Output *extract.Output
	Err    error
}

// Pool is a fixed-size worker pool with an unbounded FIFO queue.
// Submit never blocks; results arrive on Results in completion order.
type Pool struct {
	process ProcessFunc
	results chan Result

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []extract.DumpInfo
	closed bool

	wg sync.WaitGroup
}

// DefaultWorkerCount leaves headroom for the ingestion goroutines.
func DefaultWorkerCount() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// New starts workers goroutines processing submitted tasks with fn.
func New(workers int, fn ProcessFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		process: fn,
		results: make(chan Result),
	}
	p.cond = sync.NewCond(&p.mu)

	log.Info().Str("module", "pool").Int("workers", workers).Msg("starting worker pool")
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task. It never blocks. Tasks submitted after Stop
// are dropped.
func (p *Pool) Submit(task extract.DumpInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Warn().Str("module", "pool").Str("clientId", task.ClientID).Msg("task submitted after shutdown, dropping")
		return
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Results delivers one Result per submitted task. The channel closes
// after Stop once all queued tasks have drained.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stop prevents further submissions, waits for queued tasks to finish
// and closes the results channel.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.results <- p.run(id, task)
	}
}

// next pops the oldest queued task, blocking until one is available or
// the pool is stopped with an empty queue.
func (p *Pool) next() (extract.DumpInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			return extract.DumpInfo{}, false
		}
		p.cond.Wait()
	}
	task := p.queue[0]
	p.queue = p.queue[1:]
	return task, true
}

// run executes one task, converting worker panics into task errors so
// a poisonous dump cannot take the worker down.
func (p *Pool) run(id int, task extract.DumpInfo) (res Result) {
	res.Task = task
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "pool").Int("worker", id).Str("clientId", task.ClientID).Interface("panic", r).Msg("task panicked")
			res.Err = newPanicError(r)
			res.Output = nil
		}
	}()
	res.Output, res.Err = p.process(task)
	return res
}
