package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bracketbot/internal/gateway/exchange"
	"bracketbot/internal/gateway/notifier"
	"bracketbot/internal/logger"
	"bracketbot/internal/pkg/quantize"

	"github.com/shopspring/decimal"
)

// ErrNoOrderPlaced means every placement attempt failed.
var ErrNoOrderPlaced = errors.New("no order placed")

// EntryOrder is a stop-limit entry: triggers at StopPrice, rests at LimitPrice.
type EntryOrder struct {
	Symbol     string
	Side       exchange.Side
	Qty        decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
}

// OrderPlacer submits stop-limit entries with bounded retries.
type OrderPlacer struct {
	gw          exchange.Gateway
	specs       SpecSource
	notify      *notifier.BestEffort
	msgs        formatter
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PlaceStopEntry returns the exchange order id of the first accepted attempt.
func (p *OrderPlacer) PlaceStopEntry(ctx context.Context, o EntryOrder) (int64, error) {
	spec := lookupSpec(p.specs, o.Symbol)
	req := exchange.OrderRequest{
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        exchange.OrderTypeStop,
		TimeInForce: exchange.TimeInForceGTC,
		Quantity:    quantize.Decimal(o.Qty, spec.StepSize),
		StopPrice:   quantize.Decimal(o.StopPrice, spec.TickSize),
		Price:       quantize.Decimal(o.LimitPrice, spec.TickSize),
	}
	o.Qty, o.StopPrice, o.LimitPrice = req.Quantity, req.StopPrice, req.Price

	attempts := p.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		id, err := p.gw.PlaceOrder(ctx, req)
		if err == nil && id == 0 {
			err = exchange.ErrMissingOrderID
		}
		if err == nil {
			logger.Infof("entry placed symbol=%s side=%s qty=%s stop=%s limit=%s id=%d",
				o.Symbol, o.Side, o.Qty, o.StopPrice, o.LimitPrice, id)
			p.notify.Send(p.msgs.entryPlaced(o, id))
			return id, nil
		}
		lastErr = err
		logger.Warnf("entry attempt %d/%d failed symbol=%s: %v", attempt, attempts, o.Symbol, err)
		if attempt == attempts {
			break
		}
		p.notify.Send(p.msgs.entryAttemptFailed(o, attempt, attempts, err))
		// callers hold the engine lock: state readers and jobs wait out
		// at most (attempts-1) * retryDelay.
		if serr := p.sleep(ctx, p.retryDelay); serr != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", err, serr)
			break
		}
	}
	p.notify.Send(p.msgs.entryFailed(o, attempts, lastErr))
	return 0, fmt.Errorf("%w: %w", ErrNoOrderPlaced, lastErr)
}
