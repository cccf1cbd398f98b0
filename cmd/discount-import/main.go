package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kopernik-pizza/internal/storage/postgres"
)

func main() {
	var (
		databaseURL    string
		defaultPercent string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&defaultPercent, "percent", "10", "percent off for lines that carry only a code")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: discount-import [flags] codes1.gz [codes2.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	percent, err := parsePercent(defaultPercent)
	if err != nil {
		slog.Error("invalid --percent", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), percent); err != nil {
		slog.Error("discount import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, percent decimal.Decimal) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("reading code files", slog.Int("files", len(files)))
	codes, err := readFiles(ctx, files, percent)
	if err != nil {
		return errors.Wrap(err, "read code files")
	}
	slog.Info("codes read", slog.Int("unique", len(codes)))
	if len(codes) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := importCodes(ctx, pool, codes)
	if err != nil {
		return errors.Wrap(err, "import codes")
	}
	slog.Info("import finished",
		slog.Int("copied", stats.Copied),
		slog.Int("upsert_candidates", stats.Checked),
		slog.Int64("upserted", stats.Upserted),
	)
	return nil
}
