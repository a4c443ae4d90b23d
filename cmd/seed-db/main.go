package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage/fixture"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/secret"
)

func main() {
	var (
		databaseURL  string
		fixtureFile  string
		apiKeyPepper string
		bcryptCost   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "db/seed/storefront.yaml", "path to the YAML fixture")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.IntVar(&bcryptCost, "bcrypt-cost", 0, "bcrypt cost for card secrets (0 uses the library default)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	opts := fixture.Options{
		Hasher: secret.NewHasher(bcryptCost),
		Pepper: []byte(apiKeyPepper),
	}
	if err := run(ctx, databaseURL, fixtureFile, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, databaseURL, fixtureFile string, opts fixture.Options) error {
	lg := zctx.From(ctx)

	lg.Info("Reading fixture", zap.String("path", fixtureFile))
	fx, err := fixture.Load(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "load fixture")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := fixture.Apply(ctx, postgres.New(pool), fx, opts); err != nil {
		return errors.Wrap(err, "apply fixture")
	}
	return nil
}
