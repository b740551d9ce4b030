// Package service runs long-lived components side by side.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Service is a component that runs until its context is cancelled.
type Service interface {
	Name() string
	Run(context.Context) error
}

// Group runs services together. The first failure cancels the rest.
type Group []Service

// Run starts every service and blocks until ctx is cancelled or one of them
// fails, then waits for all of them to return. Failures are aggregated and
// prefixed with the failing service's name.
func (g Group) Run(ctx context.Context) error {
	if len(g) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	for _, s := range g {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
				cancel()
			}
		}()
	}

	<-runCtx.Done()
	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
