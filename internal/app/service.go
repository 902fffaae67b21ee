package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fxHistory/config"
	"fxHistory/internal/adapters/logger"
	"fxHistory/internal/domain"
	"fxHistory/internal/history"
	"fxHistory/internal/ports"
)

const (
	// maxParallelSymbols bounds the symbols synchronized at the same time.
	maxParallelSymbols = 4
	// maxClockSkew is the difference to the feed's clock above which a warning is logged.
	maxClockSkew = 5 * time.Second
)

// SyncService keeps the history files of the configured symbols up to date with a bar source.
type SyncService struct {
	cfg      *config.Config
	logger   ports.Logger
	registry *history.Registry
	source   ports.BarSource
	feed     string
	runs     ports.SyncRunRepository   // optional
	archive  ports.MinuteBarRepository // optional, receives fetched bars
	metrics  ports.SyncMetrics

	now func() time.Time
}

// Deps collects the collaborators of a SyncService.
type Deps struct {
	Logger   ports.Logger
	Registry *history.Registry
	Source   ports.BarSource
	Feed     string
	Runs     ports.SyncRunRepository
	Archive  ports.MinuteBarRepository
	Metrics  ports.SyncMetrics
}

// NewSyncService creates a new application service instance.
func NewSyncService(cfg *config.Config, deps Deps) (*SyncService, error) {
	// Validate dependencies
	if cfg == nil || deps.Logger == nil || deps.Registry == nil || deps.Source == nil {
		return nil, fmt.Errorf("missing required dependencies for SyncService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("configuration Symbols must not be empty")
	}
	if cfg.InitialLookback <= 0 {
		return nil, fmt.Errorf("configuration InitialLookback must be positive")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &SyncService{
		cfg:      cfg,
		logger:   deps.Logger,
		registry: deps.Registry,
		source:   deps.Source,
		feed:     deps.Feed,
		runs:     deps.Runs,
		archive:  deps.Archive,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Start runs a sync pass immediately and then every SyncInterval until the context is canceled or a
// shutdown signal arrives. With a zero interval it returns after the first pass. All series are closed
// before Start returns.
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Sync Service...", map[string]interface{}{
		"symbols":  len(s.cfg.Symbols),
		"feed":     s.feed,
		"interval": s.cfg.SyncInterval.String(),
	})

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	defer s.registry.CloseAll(context.Background())

	if err := s.CheckFeed(ctx); err != nil {
		return err
	}

	err := s.RunOnce(ctx)
	if s.cfg.SyncInterval <= 0 {
		s.logger.Info(ctx, "Sync Service stopped.")
		return err
	}
	if err != nil {
		s.logger.Error(ctx, err, "Sync pass finished with errors")
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, Sync Service stopped.")
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, err, "Sync pass finished with errors")
			}
		}
	}
}

// CheckFeed checks that a remote bar source is reachable before syncing. Sources without a FeedChecker pass. An
// unreachable feed yields ports.ErrFeedUnavailable; a clock differing from the local one by more than
// maxClockSkew is only logged, since the current minute cutoff uses the local clock.
func (s *SyncService) CheckFeed(ctx context.Context) error {
	checker, ok := s.source.(ports.FeedChecker)
	if !ok {
		return nil
	}
	if err := checker.Ping(ctx); err != nil {
		return fmt.Errorf("feed %s: %w: %w", s.feed, ports.ErrFeedUnavailable, err)
	}
	serverTime, err := checker.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("feed %s server time: %w: %w", s.feed, ports.ErrFeedUnavailable, err)
	}
	if skew := serverTime.Sub(s.now()); skew > maxClockSkew || skew < -maxClockSkew {
		s.logger.Warn(ctx, "Local clock differs from the feed server", map[string]interface{}{
			"feed": s.feed,
			"skew": skew.String(),
		})
	}
	return nil
}

// RunOnce synchronizes every configured symbol once. Symbols are processed concurrently; the failure of
// one symbol does not stop the others. The returned error joins all symbol failures.
func (s *SyncService) RunOnce(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(maxParallelSymbols)
	for _, spec := range s.cfg.Symbols {
		g.Go(func() error {
			if _, err := s.SyncSymbol(ctx, spec); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// SyncSymbol brings the history of one symbol up to date. Bars the feed returns at or before the newest
// stored minute bar replace the stored ones (Synchronize), newer bars are appended to every timeframe.
// The run is journaled when a run repository is configured.
func (s *SyncService) SyncSymbol(ctx context.Context, spec config.SymbolSpec) (*ports.SyncRun, error) {
	started := s.now()
	run := &ports.SyncRun{
		ID:        newRunID(started),
		Symbol:    spec.Name,
		Feed:      s.feed,
		StartedAt: started,
	}
	ctx = logger.ContextWithRunID(ctx, run.ID)

	err := s.syncSymbol(ctx, spec, run)
	run.FinishedAt = s.now()

	status := "ok"
	if err != nil {
		status = "error"
		run.Error = err.Error()
		s.logger.Error(ctx, err, "Symbol sync failed", map[string]interface{}{"symbol": spec.Name})
	} else {
		s.logger.Info(ctx, "Symbol synchronized", map[string]interface{}{
			"symbol":       spec.Name,
			"appended":     run.Appended,
			"synchronized": run.Synchronized,
			"lastSync":     run.LastSyncTime,
		})
	}
	s.metrics.SyncRunFinished(spec.Name, status, run.FinishedAt.Sub(started))

	if s.runs != nil {
		// The journal outlives a canceled pass.
		if jerr := s.runs.CreateSyncRun(context.WithoutCancel(ctx), run); jerr != nil {
			s.logger.Error(ctx, jerr, "Failed to record sync run", map[string]interface{}{"symbol": spec.Name})
			err = errors.Join(err, jerr)
		}
	}
	if err != nil {
		return run, fmt.Errorf("sync %s: %w", spec.Name, err)
	}
	return run, nil
}

func (s *SyncService) syncSymbol(ctx context.Context, spec config.SymbolSpec, run *ports.SyncRun) error {
	series, err := s.registry.GetOrCreate(spec.Name, spec.Digits, s.cfg.HistoryDir)
	if err != nil {
		return err
	}
	last, err := series.LastBarTime(domain.M1)
	if err != nil {
		return err
	}

	now := domain.M1.OpenTime(s.cfg.TimeBase.FromUTC(s.now()))
	var from int64
	if last == 0 {
		from = now - int64(s.cfg.InitialLookback/time.Second)
	} else {
		from = max(0, last-int64(s.cfg.SyncOverlap/time.Second))
	}
	// The current minute is still forming.
	to := now
	if from >= to {
		run.LastSyncTime, err = series.LastSyncTime()
		return err
	}

	bars, err := s.source.MinuteBars(ctx, spec.Name, from, to)
	if err != nil {
		return err
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })

	if s.archive != nil && len(bars) > 0 {
		if _, err := s.archive.SaveMinuteBars(ctx, spec.Name, bars); err != nil {
			s.logger.Warn(ctx, "Failed to archive minute bars", map[string]interface{}{
				"symbol": spec.Name,
				"error":  err.Error(),
			})
		}
	}

	split := 0
	if last > 0 {
		split = sort.Search(len(bars), func(i int) bool { return bars[i].Time > last })
	}
	overlap, newer := bars[:split], bars[split:]

	if len(overlap) > 0 {
		if err := series.Synchronize(overlap); err != nil {
			return err
		}
		run.Synchronized = len(overlap)
	}
	if len(newer) > 0 {
		if err := series.AppendBars(newer); err != nil {
			return err
		}
		run.Appended = len(newer)
	}

	run.LastSyncTime, err = series.LastSyncTime()
	return err
}

// LastRun returns the newest journaled run of a symbol, nil without a run repository.
func (s *SyncService) LastRun(ctx context.Context, symbol string) (*ports.SyncRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.LastSyncRun(ctx, symbol)
}
