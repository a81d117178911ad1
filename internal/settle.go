package internal

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is the settled result of one task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Task is a unit of work for SettleAll.
type Task[T any] func(ctx context.Context) (T, error)

// SettleAll runs every task and waits for all of them. At most limit tasks
// run at once (limit <= 0 means no bound). A failing or panicking task
// never cancels or skips the others; outcomes are returned in task order.
// Tasks not yet started when ctx is done settle with ctx.Err().
func SettleAll[T any](ctx context.Context, limit int, tasks ...Task[T]) []Outcome[T] {
	out := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return out
	}
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			continue
		}
		// select picks at random when a slot is free and ctx is already done.
		if err := ctx.Err(); err != nil {
			<-sem
			out[i].Err = err
			continue
		}
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					out[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			out[i].Value, out[i].Err = task(ctx)
		}(i, task)
	}
	wg.Wait()
	return out
}
