package utils

import (
	"context"
	"sync"
	"time"
)

var (
	activePage = "active"
)

// RoutineBook bounds the number of routines that may hold a page at the same
// time. Each routine books a page under a unique key and frees it when done.
type RoutineBook struct {
	sync.Mutex
	pages         map[string]string
	freeSpaceChan chan struct{}
	size          int64
}

func NewRoutineBook(size int) *RoutineBook {
	if size <= 0 {
		size = 1
	}
	r := &RoutineBook{
		pages:         make(map[string]string, size), // contains a list of keys identifying routines
		freeSpaceChan: make(chan struct{}, size),     // one token per free page
		size:          int64(size),
	}
	r.Init()
	return r
}

func (r *RoutineBook) Init() {
	for i := 0; i < int(r.size); i++ {
		r.freeSpaceChan <- struct{}{}
	}
}

// Acquire blocks until a page is free or the context is done.
func (r *RoutineBook) Acquire(ctx context.Context, key string) error {
	ticker := time.NewTicker(AcquireWaitIntervalLog)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			log.Warnf("still waiting to acquire page %s (%d/%d pages active)", key, r.ActivePages(), r.size)
		case <-r.freeSpaceChan:
			r.Set(key, activePage)
			return nil
		}
	}
}

func (r *RoutineBook) FreePage(key string) {
	r.Lock()
	defer r.Unlock()
	_, ok := r.pages[key]
	// If the key exists
	if ok {
		delete(r.pages, key)
		r.freeSpaceChan <- struct{}{}
	}
}

func (r *RoutineBook) Set(key string, value string) {
	r.Lock()
	defer r.Unlock()
	r.pages[key] = value // book page
}

func (r *RoutineBook) ActivePages() int {
	r.Lock()
	defer r.Unlock()
	return len(r.pages)
}

func (r *RoutineBook) NumFreePages() int {
	r.Lock()
	defer r.Unlock()
	return int(r.size) - len(r.pages)
}

func (r *RoutineBook) Size() int {
	return int(r.size)
}
