// cmd/quorum-guard/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/avivl/quorum-guard/internal/domain"
	"github.com/avivl/quorum-guard/internal/retry"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pointsFlags(name string, args []string) (string, int64, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	user := fs.StringP("user", "u", "", "user id")
	amount := fs.Int64P("amount", "a", 0, "number of points")
	if err := fs.Parse(args); err != nil {
		return "", 0, err
	}
	return *user, *amount, nil
}

func runCharge(ctx context.Context, app *App, args []string) error {
	user, amount, err := pointsFlags("charge", args)
	if err != nil {
		return err
	}
	b, err := app.points.ChargePoints(ctx, user, amount)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func runUse(ctx context.Context, app *App, args []string) error {
	user, amount, err := pointsFlags("use", args)
	if err != nil {
		return err
	}
	b, err := app.points.UsePoints(ctx, user, amount)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func runBalance(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("balance", pflag.ContinueOnError)
	user := fs.StringP("user", "u", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := app.points.GetBalance(ctx, *user)
	if err != nil {
		return err
	}
	return printJSON(b)
}

func runCreateCoupon(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("create-coupon", pflag.ContinueOnError)
	code := fs.String("code", "", "coupon code")
	total := fs.Int64("total", 0, "number of coupons available")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := app.coupons.CreateCoupon(ctx, *code, *total)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func runIssueCoupon(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("issue-coupon", pflag.ContinueOnError)
	code := fs.String("code", "", "coupon code")
	user := fs.StringP("user", "u", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	issue, err := app.coupons.IssueCoupon(ctx, *code, *user)
	if err != nil {
		return err
	}
	return printJSON(issue)
}

func runGetCoupon(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("coupon", pflag.ContinueOnError)
	code := fs.String("code", "", "coupon code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := app.coupons.GetCoupon(ctx, *code)
	if err != nil {
		return err
	}
	return printJSON(c)
}

func runClearLocks(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("clear-locks", pflag.ContinueOnError)
	pattern := fs.String("pattern", "lock:*", "glob pattern of lock keys to remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	admin, err := app.Admin()
	if err != nil {
		return err
	}
	n, err := admin.ClearAllLocks(ctx, *pattern)
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d locks\n", n)
	return nil
}

// stressReport counts outcomes of a stress run
type stressReport struct {
	Operation  string `json:"operation"`
	Requests   int    `json:"requests"`
	Committed  int64  `json:"committed"`
	Contention int64  `json:"contention"`
	Declined   int64  `json:"declined"`
	Failed     int64  `json:"failed"`
	Elapsed    string `json:"elapsed"`
	Final      any    `json:"final,omitempty"`
}

type outcomes struct {
	committed, contention, declined, failed atomic.Int64
}

func (o *outcomes) record(err error) {
	switch {
	case err == nil:
		o.committed.Add(1)
	case retry.IsContention(err):
		o.contention.Add(1)
	case domain.IsBusinessRule(err):
		o.declined.Add(1)
	default:
		o.failed.Add(1)
	}
}

// runStress fires concurrent requests at a single user or coupon and reports
// how many committed. With a correct coordinator the final state equals the
// starting state plus the committed deltas.
func runStress(ctx context.Context, app *App, args []string) error {
	fs := pflag.NewFlagSet("stress", pflag.ContinueOnError)
	op := fs.String("op", "charge", "operation: charge, use or issue")
	user := fs.StringP("user", "u", "stress-user", "user id for point operations")
	code := fs.String("code", "", "coupon code for issue, created when missing")
	total := fs.Int64("total", 10, "coupon quantity when the coupon is created")
	amount := fs.Int64P("amount", "a", 1, "points per request")
	requests := fs.IntP("requests", "n", 100, "number of requests")
	concurrency := fs.IntP("concurrency", "j", 16, "concurrent requests")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *requests <= 0 || *concurrency <= 0 {
		return errors.New("requests and concurrency must be positive")
	}

	var do func(ctx context.Context, i int) error
	switch *op {
	case "charge":
		do = func(ctx context.Context, _ int) error {
			_, err := app.points.ChargePoints(ctx, *user, *amount)
			return err
		}
	case "use":
		do = func(ctx context.Context, _ int) error {
			_, err := app.points.UsePoints(ctx, *user, *amount)
			return err
		}
	case "issue":
		if *code == "" {
			*code = "STRESS-" + uuid.NewString()[:8]
		}
		if _, err := app.coupons.CreateCoupon(ctx, *code, *total); err != nil && !errors.Is(err, domain.ErrCouponExists) {
			return err
		}
		do = func(ctx context.Context, i int) error {
			_, err := app.coupons.IssueCoupon(ctx, *code, fmt.Sprintf("stress-user-%d", i))
			return err
		}
	default:
		return fmt.Errorf("unknown operation %q", *op)
	}

	report := &stressReport{Operation: *op, Requests: *requests}
	var counts outcomes

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i := 0; i < *requests; i++ {
		i := i
		g.Go(func() error {
			counts.record(do(gctx, i))
			// only cancellation stops the run
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	report.Elapsed = time.Since(start).String()
	report.Committed = counts.committed.Load()
	report.Contention = counts.contention.Load()
	report.Declined = counts.declined.Load()
	report.Failed = counts.failed.Load()

	if *op == "issue" {
		c, err := app.coupons.GetCoupon(ctx, *code)
		if err != nil {
			return err
		}
		report.Final = c
	} else {
		b, err := app.points.GetBalance(ctx, *user)
		if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		report.Final = b
	}
	return printJSON(report)
}
