package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const batchSize = 500

// codeRule describes the discount to attach to a known coupon code.
type codeRule struct {
	discountType coupon.DiscountType
	value        string
}

var codeRules = map[string]codeRule{
	"FIFTYOFF": {discountType: coupon.DiscountPercentage, value: "50"},
	"SIXTYOFF": {discountType: coupon.DiscountPercentage, value: "60"},
	"GNULINUX": {discountType: coupon.DiscountPercentage, value: "15"},
	"OVER9000": {discountType: coupon.DiscountFixed, value: "9"},
	"HAPPYHRS": {discountType: coupon.DiscountPercentage, value: "18"},
}

var defaultRule = codeRule{discountType: coupon.DiscountPercentage, value: "10"}

type options struct {
	dataDir     string
	databaseURL string
	files       int
	capacity    uint
	usageLimit  int
	validFor    time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.files, "files", 3, "number of couponbaseN.gz files to scan")
	flag.UintVar(&opts.capacity, "capacity", 120_000_000, "expected number of codes per file")
	flag.IntVar(&opts.usageLimit, "usage-limit", 0, "usage limit for imported coupons (0 means unlimited)")
	flag.DurationVar(&opts.validFor, "valid-for", 0, "lifetime of imported coupons (0 means no expiry)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, opts); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, opts options) error {
	lg := zctx.From(ctx)

	files := make([]string, opts.files)
	for i := range opts.files {
		files[i] = filepath.Join(opts.dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	codes, err := scan(ctx, files, opts.capacity)
	if err != nil {
		return err
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.New(pool), codes, opts, time.Now().UTC())
}

// newCoupon builds the coupon stored for code.
func newCoupon(code string, opts options, now time.Time) (*coupon.Coupon, error) {
	rule, ok := codeRules[code]
	if !ok {
		rule = defaultRule
	}
	value, err := decimal.NewFromString(rule.value)
	if err != nil {
		return nil, errors.Wrapf(err, "parse discount value for code %s", code)
	}

	c := &coupon.Coupon{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  rule.discountType,
		DiscountValue: value,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if opts.usageLimit > 0 {
		limit := opts.usageLimit
		c.UsageLimit = &limit
	}
	if opts.validFor > 0 {
		expires := now.Add(opts.validFor)
		c.ExpiresAt = &expires
	}
	return c, nil
}

// writeCoupons upserts codes in batches, one transaction per batch.
func writeCoupons(ctx context.Context, st store.Store, codes []string, opts options, now time.Time) error {
	lg := zctx.From(ctx)

	for start := 0; start < len(codes); start += batchSize {
		batch := codes[start:min(start+batchSize, len(codes))]
		err := st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			for _, code := range batch {
				c, err := newCoupon(strings.ToUpper(code), opts, now)
				if err != nil {
					return err
				}
				if err := tx.PutCoupon(ctx, c); err != nil {
					return errors.Wrapf(err, "put coupon %s", code)
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "write batch")
		}
		lg.Info("Write progress",
			zap.Int("written", start+len(batch)),
			zap.Int("total", len(codes)),
		)
	}
	return nil
}
