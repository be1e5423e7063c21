// internal/agent/settle.go
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/kanakapalli/nova-act/api/schemas"
	"github.com/kanakapalli/nova-act/internal/config"
)

// SettlePolicy waits for dynamic content before a page is read.
type SettlePolicy interface {
	Settle(ctx context.Context, session schemas.BrowserSession) error
}

// FixedDelay sleeps for a flat duration.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) Settle(ctx context.Context, _ schemas.BrowserSession) error {
	return sleepCtx(ctx, f.Delay)
}

// PollUntilStable re-reads the body text every Interval until two consecutive
// reads agree or Timeout elapses. Reaching the timeout is not an error: pages with
// constantly changing content (clocks, tickers) are read as they are.
type PollUntilStable struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (p PollUntilStable) Settle(ctx context.Context, session schemas.BrowserSession) error {
	deadline := time.Now().Add(p.Timeout)
	prev, prevErr := session.BodyText(ctx)
	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, p.Interval); err != nil {
			return err
		}
		cur, err := session.BodyText(ctx)
		if err == nil && prevErr == nil && cur == prev {
			return nil
		}
		prev, prevErr = cur, err
	}
	return nil
}

// NewSettlePolicy builds the policy named in cfg.
func NewSettlePolicy(cfg config.SettleConfig) (SettlePolicy, error) {
	switch cfg.Policy {
	case config.SettleFixed:
		return FixedDelay{Delay: cfg.Delay}, nil
	case config.SettlePoll:
		return PollUntilStable{Interval: cfg.PollInterval, Timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown settle policy %q", cfg.Policy)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
