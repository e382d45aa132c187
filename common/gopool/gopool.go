// Package gopool runs short tasks on a bounded set of reusable goroutines.
package gopool

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Pool is a fixed size worker pool whose tasks can be waited for.
type Pool struct {
	pool *ants.Pool
	wg   sync.WaitGroup
}

// New creates a pool of size workers. Submit blocks while all workers are busy.
func New(size int) (*Pool, error) {
	p, err := ants.NewPool(size, ants.WithExpiryDuration(5*time.Second))
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

func (p *Pool) Submit(task func()) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
	}
	return err
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Release waits for running tasks and closes the pool.
func (p *Pool) Release() {
	p.Wait()
	p.pool.Release()
}
