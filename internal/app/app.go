package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Runner is a background component living until ctx is done
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	runners []Runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

func NewApp(log logger.Logger, httpSrv HTTPServer, runners ...Runner) *App {
	return &App{
		log:     log,
		httpSrv: httpSrv,
		runners: runners,
		errCh:   make(chan error, len(runners)+1),
	}
}

// Start launches the http server and every runner; failures are reported on Errors
func (a *App) Start(ctx context.Context) error {
	if a.cancel != nil {
		return errors.New("app already started")
	}
	a.log.Debug("App started begin...")

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.httpSrv != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.httpSrv.ListenAndServe(); err != nil {
				a.errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	for _, r := range a.runners {
		a.wg.Add(1)
		go func(r Runner) {
			defer a.wg.Done()
			if err := r.Run(runCtx); err != nil {
				a.errCh <- fmt.Errorf("%s: %w", r.Name, err)
			}
		}(r)
		a.log.Infof("Runner %s started", r.Name)
	}

	a.log.Info("App started")
	return nil
}

func (a *App) Errors() <-chan error {
	return a.errCh
}

// Shutdown stops the http server first, then the runners, and waits for them within ctx
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	var errs []error
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("runners did not stop: %w", ctx.Err()))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
