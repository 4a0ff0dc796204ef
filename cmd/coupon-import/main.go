package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/repository"
)

const (
	maxCodeLen    = 64
	progressEvery = 100_000
)

type options struct {
	databaseURL string
	dataDir     string
	expected    uint
	fpr         float64
	workers     int

	kind      string
	discount  string
	quantity  int
	validFrom string
	validDays int
	recursive bool
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing *.gz code lists, one code per line")
	flag.UintVar(&opts.expected, "expected", 1_000_000, "expected number of codes, sizes the bloom filter")
	flag.Float64Var(&opts.fpr, "fpr", 0.0001, "bloom filter false positive rate")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent coupon inserts")
	flag.StringVar(&opts.kind, "type", string(coupon.TypePercent), "discount type: percent, currency or full")
	flag.StringVar(&opts.discount, "discount", "10", "discount value")
	flag.IntVar(&opts.quantity, "quantity", 1, "uses per coupon")
	flag.StringVar(&opts.validFrom, "valid-from", "", "start of validity, YYYY-MM-DD (default today)")
	flag.IntVar(&opts.validDays, "valid-days", 30, "days the coupons stay valid, 0 for no end")
	flag.BoolVar(&opts.recursive, "recursive", false, "allow combining with other discounts")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, opts options) error {
	tmpl, err := opts.template(time.Now())
	if err != nil {
		return errors.Wrap(err, "coupon template")
	}

	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", opts.dataDir)
	}

	slog.Info("reading code lists", slog.Int("files", len(files)))

	codes, stats, err := collectCodes(ctx, files, bloom.NewWithEstimates(opts.expected, opts.fpr))
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("codes collected",
		slog.Int("unique", len(codes)),
		slog.Uint64("duplicates", stats.duplicates),
		slog.Uint64("invalid", stats.invalid),
	)

	if len(codes) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	res, err := importCodes(ctx, coupon.NewService(repository.NewCouponRepository(pool)), codes, tmpl, opts.workers)
	if err != nil {
		return errors.Wrap(err, "import coupons")
	}

	slog.Info("coupons imported",
		slog.Int64("created", res.created),
		slog.Int64("existing", res.existing),
	)
	return nil
}

// template builds the coupon every imported code is created from.
func (o options) template(now time.Time) (coupon.Coupon, error) {
	discount, err := decimal.NewFromString(o.discount)
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "parse discount %q", o.discount)
	}

	from := now.UTC().Truncate(24 * time.Hour)
	if o.validFrom != "" {
		if from, err = time.Parse(time.DateOnly, o.validFrom); err != nil {
			return coupon.Coupon{}, errors.Wrapf(err, "parse valid-from %q", o.validFrom)
		}
	}

	c := coupon.Coupon{
		Type:      coupon.Type(o.kind),
		Discount:  discount,
		Quantity:  o.quantity,
		ValidFrom: from,
		Recursive: o.recursive,
	}
	if !c.Type.Valid() {
		return coupon.Coupon{}, errors.Errorf("unknown discount type %q", o.kind)
	}
	if o.validDays > 0 {
		until := from.AddDate(0, 0, o.validDays)
		c.ValidUntil = &until
	}
	return c, nil
}

type collectStats struct {
	duplicates uint64
	invalid    uint64
}

// collectCodes streams every file concurrently and returns the normalized
// codes, dropping duplicates across all files. A bloom filter hit can be a
// false positive, so hits are confirmed against the exact set.
func collectCodes(ctx context.Context, files []string, seen *bloom.BloomFilter) ([]string, collectStats, error) {
	var (
		stats collectStats
		codes []string
		exact = make(map[string]struct{})
		ch    = make(chan string, 1024)
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var n uint64
			err := streamGzFile(gctx, path, func(line string) error {
				code := coupon.NormalizeCode(line)
				if code == "" || strings.HasPrefix(code, "#") {
					return nil
				}
				if len(code) > maxCodeLen {
					atomic.AddUint64(&stats.invalid, 1)
					return nil
				}
				n++
				if n%progressEvery == 0 {
					slog.Info("read progress", slog.Int("file", i+1), slog.Uint64("codes", n))
				}
				select {
				case ch <- code:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read file %d", i+1)
			}
			slog.Info("file complete", slog.String("path", path), slog.Uint64("codes", n))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for code := range ch {
			if seen.TestOrAddString(code) {
				if _, dup := exact[code]; dup {
					stats.duplicates++
					continue
				}
			}
			exact[code] = struct{}{}
			codes = append(codes, code)
		}
	}()

	err := g.Wait()
	close(ch)
	<-done
	if err != nil {
		return nil, collectStats{}, err
	}
	return codes, stats, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// couponCreator is implemented by *coupon.Service.
type couponCreator interface {
	Create(ctx context.Context, c *coupon.Coupon) error
}

type importResult struct {
	created  int64
	existing int64
}

// importCodes creates one coupon per code from tmpl. Codes that already
// exist are counted and skipped.
func importCodes(ctx context.Context, svc couponCreator, codes []string, tmpl coupon.Coupon, workers int) (importResult, error) {
	var created, existing atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, code := range codes {
		g.Go(func() error {
			c := tmpl
			c.Code = code
			if err := svc.Create(gctx, &c); err != nil {
				if errors.Is(err, coupon.ErrCodeTaken) {
					existing.Add(1)
					return nil
				}
				return errors.Wrapf(err, "create coupon %s", code)
			}
			if n := created.Add(1); n%1000 == 0 {
				slog.Info("import progress", slog.Int64("created", n), slog.Int("total", len(codes)))
			}
			return nil
		})
	}

	err := g.Wait()
	return importResult{created: created.Load(), existing: existing.Load()}, err
}
