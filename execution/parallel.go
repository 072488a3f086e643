package execution

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunParallel runs n clones of p at the same time, each on its own goroutine. fn receives the clone index and an
// initialized clone to drive with Next; the clone is closed when fn returns. The first error cancels the context
// of the other runs and is returned. p itself is not run.
func RunParallel(ctx context.Context, p *Pipeline, n int, fn func(i int, run *Pipeline) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		run := p.Clone()
		g.Go(func() error {
			if err := run.Init(gctx); err != nil {
				return err
			}
			err := fn(i, run)
			closeErr := run.Close()
			if err != nil {
				return err
			}
			return closeErr
		})
	}
	return g.Wait()
}
