package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// forEach runs task for 0..n-1 on at most concurrency workers and logs the
// progress of stage. The first failing task cancels the remaining ones and
// its error is returned.
func (p *Pipeline) forEach(ctx context.Context, stage string, n int, task func(context.Context, int) error) error {
	if n == 0 {
		return nil
	}
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobsCh := make(chan int)
	progressCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(p.cfg.Concurrency, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobsCh {
				if taskCtx.Err() != nil {
					continue
				}
				if err := task(taskCtx, i); err != nil {
					fail(err)
					continue
				}
				progressCh <- 1
			}
		}()
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var done float64
		start := time.Now()
		for k := range progressCh {
			done += float64(k)
			percent := fmt.Sprintf("%.2f%%", 100*done/float64(n))
			duration := time.Since(start).Round(1 * time.Second)
			p.logger.Info("progress", "stage", stage, "done", percent, "in", duration)
		}
	}()

feed:
	for i := 0; i < n; i++ {
		select {
		case jobsCh <- i:
		case <-taskCtx.Done():
			break feed
		}
	}
	close(jobsCh)
	wg.Wait()
	close(progressCh)
	<-progressDone

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
