package layout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Settle runs every wait concurrently and returns once each one has
// finished. A failed wait still counts as settled; its error is reported at
// its index and never stops the others.
func Settle(ctx context.Context, waits ...func(context.Context) error) []error {
	errs := make([]error, len(waits))
	var g errgroup.Group
	for i, wait := range waits {
		g.Go(func() error {
			errs[i] = wait(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
