package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/fxt"
	"fxHistory/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/cenkalti/backoff/v4"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxLimit is the largest page the klines endpoint returns.
	maxLimit = 1500
)

// klineFetcher loads one page of klines with open time in [start, end] (milliseconds).
type klineFetcher func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error)

// Client implements ports.BarSource and ports.FeedChecker with Binance USDⓈ-M futures 1m klines.
type Client struct {
	fetch                klineFetcher
	ping                 func(ctx context.Context) error
	serverTime           func(ctx context.Context) (int64, error)
	logger               ports.Logger
	base                 fxt.TimeBase
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	TimeBase             fxt.TimeBase  // Time base of the produced bars
	ReconnectDelay       time.Duration // First retry delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max retries of a failed request
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	c := newClient(cfg, func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(start).
			EndTime(end).
			Limit(limit).
			Do(ctx)
	})
	c.ping = func(ctx context.Context) error { return client.NewPingService().Do(ctx) }
	c.serverTime = func(ctx context.Context) (int64, error) { return client.NewServerTimeService().Do(ctx) }
	return c, nil
}

func newClient(cfg Config, fetch klineFetcher) *Client {
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Client{
		fetch:                fetch,
		logger:               cfg.Logger,
		base:                 cfg.TimeBase,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Invalid signature or API key
			mappedErr = ports.ErrConfigurationError
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// retryable reports whether a mapped error may succeed on a later attempt.
func retryable(err error) bool {
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrTimeout) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrUnknown)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if c.ping == nil {
		return fmt.Errorf("%s: %w", op, ports.ErrFeedUnavailable)
	}
	if err := c.ping(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	if c.serverTime == nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, ports.ErrFeedUnavailable)
	}
	serverTimeMs, err := c.serverTime(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// MinuteBars returns the 1m klines of a symbol with from <= time < to as bars. Times are in the
// configured time base.
func (c *Client) MinuteBars(ctx context.Context, symbol string, from, to int64) ([]domain.Bar, error) {
	if to <= from {
		return nil, nil
	}
	start := c.base.ToUTC(from)
	end := c.base.ToUTC(to).Add(-time.Millisecond)

	bars, err := c.GetKlinesRange(ctx, symbol, "1m", start, end)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Time >= from && b.Time < to {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetKlinesRange fetches all klines for a symbol/interval with open time between start and end.
// Klines without trades are skipped, a bar needs a positive tick count.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	op := "GetKlinesRange"
	var all []domain.Bar
	from := start.UnixMilli()

	for {
		klines, err := c.fetchPage(ctx, symbol, interval, from, end.UnixMilli())
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			if bk.TradeNum <= 0 {
				continue
			}
			b, err := translateBinanceKline(bk, c.base)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			all = append(all, b)
		}
		last := klines[len(klines)-1]
		from = last.CloseTime + 1
		if from > end.UnixMilli() || len(klines) < maxLimit {
			break
		}
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "bars": len(all)})
	return all, nil
}

// fetchPage loads one page, retrying transient failures with exponential backoff.
func (c *Client) fetchPage(ctx context.Context, symbol, interval string, start, end int64) ([]*futures.Kline, error) {
	op := "GetKlines"
	var klines []*futures.Kline

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectDelay
	bo.MaxInterval = 30 * c.reconnectDelay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxReconnectAttempts)), ctx)

	operation := func() error {
		res, err := c.fetch(ctx, symbol, interval, start, end, maxLimit)
		if err != nil {
			mapped := c.handleError(ctx, err, op)
			if !retryable(mapped) || ctx.Err() != nil {
				return backoff.Permanent(mapped)
			}
			return mapped
		}
		klines = res
		return nil
	}
	notify := func(err error, delay time.Duration) {
		c.logger.Warn(ctx, "Retrying kline request", map[string]interface{}{
			"symbol": symbol,
			"delay":  delay.String(),
			"error":  err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		}
		return nil, err
	}
	return klines, nil
}

// translateBinanceKline converts a kline to a bar. The base asset volume is rounded and capped at
// domain.MaxCounter, the largest volume a history record holds.
func translateBinanceKline(bk *futures.Kline, base fxt.TimeBase) (domain.Bar, error) {
	if bk == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Bar{
		Time:   base.FromUTC(time.UnixMilli(bk.OpenTime)),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cls,
		Ticks:  bk.TradeNum,
		Volume: min(int64(math.Round(vol)), domain.MaxCounter),
	}, nil
}
