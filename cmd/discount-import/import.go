package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	maxCodeLen     = 64
	bloomFPR       = 0.001
	minBloomSize   = 1024
	progressEvery  = 1_000_000
	upsertBatchLen = 1000
)

var hundred = decimal.NewFromInt(100)

// entry is one code line: `CODE` or `CODE,PERCENT`.
type entry struct {
	Code       string
	PercentOff decimal.Decimal
}

func parsePercent(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse percent %q", s)
	}
	if p.IsNegative() || p.GreaterThan(hundred) {
		return decimal.Zero, errors.Errorf("percent %s out of range [0, 100]", p)
	}
	return p, nil
}

// parseLine parses one line. Blank lines and # comments yield ok == false.
func parseLine(line string, defaultPercent decimal.Decimal) (e entry, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return e, false, nil
	}
	code, rawPercent, hasPercent := strings.Cut(line, ",")
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return e, false, errors.New("empty code")
	case len(code) > maxCodeLen:
		return e, false, errors.Errorf("code %q longer than %d bytes", code, maxCodeLen)
	case strings.ContainsAny(code, " \t"):
		return e, false, errors.Errorf("code %q contains whitespace", code)
	}

	e = entry{Code: code, PercentOff: defaultPercent}
	if hasPercent {
		if e.PercentOff, err = parsePercent(rawPercent); err != nil {
			return e, false, errors.Wrapf(err, "code %q", code)
		}
	}
	return e, true, nil
}

// readFiles reads every file concurrently. A code listed more than once
// keeps the first occurrence in argument order.
func readFiles(ctx context.Context, files []string, defaultPercent decimal.Decimal) ([]entry, error) {
	perFile := make([][]entry, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			entries, err := readFile(ctx, path, defaultPercent)
			if err != nil {
				return err
			}
			perFile[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []entry
	for _, entries := range perFile {
		for _, e := range entries {
			if _, dup := seen[e.Code]; dup {
				continue
			}
			seen[e.Code] = struct{}{}
			out = append(out, e)
		}
	}
	return out, nil
}

// readFile streams a gzip-compressed code list.
func readFile(ctx context.Context, path string, defaultPercent decimal.Decimal) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var (
		entries []entry
		lineNo  int
	)
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		e, ok, err := parseLine(scanner.Text(), defaultPercent)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if !ok {
			continue
		}
		entries = append(entries, e)
		if len(entries)%progressEvery == 0 {
			slog.Info("read progress", slog.String("file", path), slog.Int("codes", len(entries)))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("file read", slog.String("file", path), slog.Int("codes", len(entries)))
	return entries, nil
}

// split routes entries the filter has never seen to fresh (safe to COPY)
// and the rest to maybe (may already exist).
func split(filter *bloom.BloomFilter, entries []entry) (fresh, maybe []entry) {
	for _, e := range entries {
		if filter.TestString(e.Code) {
			maybe = append(maybe, e)
		} else {
			fresh = append(fresh, e)
		}
	}
	return fresh, maybe
}

type importStats struct {
	Copied   int
	Checked  int
	Upserted int64
}

// importCodes inserts new codes in one transaction. Existing codes, used or
// not, are left untouched.
func importCodes(ctx context.Context, pool *pgxpool.Pool, entries []entry) (importStats, error) {
	var stats importStats
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		// Keep concurrent imports from racing the COPY below.
		if _, err := tx.Exec(ctx, `LOCK TABLE discount_codes IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return errors.Wrap(err, "lock discount_codes")
		}

		filter, err := existingCodes(ctx, tx, len(entries))
		if err != nil {
			return err
		}
		fresh, maybe := split(filter, entries)
		slog.Info("codes routed", slog.Int("fresh", len(fresh)), slog.Int("maybe_existing", len(maybe)))

		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"discount_codes"},
			[]string{"code", "percent_off"},
			pgx.CopyFromSlice(len(fresh), func(i int) ([]any, error) {
				return []any{fresh[i].Code, fresh[i].PercentOff}, nil
			}),
		)
		if err != nil {
			return errors.Wrap(err, "copy fresh codes")
		}
		stats.Copied = int(copied)

		stats.Checked = len(maybe)
		for start := 0; start < len(maybe); start += upsertBatchLen {
			end := min(start+upsertBatchLen, len(maybe))
			n, err := upsertBatch(ctx, tx, maybe[start:end])
			if err != nil {
				return err
			}
			stats.Upserted += n
		}
		return nil
	})
	return stats, err
}

// existingCodes loads every stored code into a bloom filter sized for the
// table plus the incoming batch.
func existingCodes(ctx context.Context, tx pgx.Tx, incoming int) (*bloom.BloomFilter, error) {
	var total int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM discount_codes`).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count codes")
	}
	filter := bloom.NewWithEstimates(uint(max(total+int64(incoming), minBloomSize)), bloomFPR)

	rows, err := tx.Query(ctx, `SELECT code FROM discount_codes`)
	if err != nil {
		return nil, errors.Wrap(err, "query codes")
	}
	var code string
	if _, err := pgx.ForEachRow(rows, []any{&code}, func() error {
		filter.AddString(code)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "scan codes")
	}
	return filter, nil
}

func upsertBatch(ctx context.Context, tx pgx.Tx, entries []entry) (int64, error) {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO discount_codes (code, percent_off) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`,
			e.Code, e.PercentOff,
		)
	}
	br := tx.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, e := range entries {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "upsert code %s", e.Code)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
