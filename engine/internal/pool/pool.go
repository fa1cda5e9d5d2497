package pool

import (
	"context"
	"sync"

	"sitemirror/engine/models"
)

// Run fans items out to workers goroutines, each invoking work for one item
// at a time. Items are enqueued in caller order and taken FIFO, but may
// complete out of order. The producer never blocks: the queue holds the whole
// batch. A canceled context stops the producer, lets in-flight work observe
// the signal, and discards whatever is still queued; Run then returns
// ctx.Err().
func Run(ctx context.Context, items []string, workers int, work func(ctx context.Context, item string)) error {
	if workers <= 0 {
		return models.ErrInvalidConcurrency
	}
	if len(items) == 0 {
		return ctx.Err()
	}

	queue := make(chan string, len(items))
	go func() {
		defer close(queue)
		for _, item := range items {
			select {
			case queue <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case item, ok := <-queue:
					if !ok {
						return
					}
					work(ctx, item)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
