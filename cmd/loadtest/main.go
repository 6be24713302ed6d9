package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

type loadMode string

const (
	modeOrder     loadMode = "order"
	modeOrderRead loadMode = "order-read"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	productIDs    []int64
	quantity      int
	customerID    int64
	idempotency   bool
	allowConflict bool
	outputPath    string
}

// errScenariosFailed сигнализирует о неуспешных сценариях после печати отчёта.
var errScenariosFailed = errors.New("some scenarios failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "loadtest",
		Usage:  "generate order load against the commerce HTTP API",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://localhost:8080", Usage: "HTTP API base URL"},
			&cli.IntFlag{Name: "total", Value: 400, Usage: "total scenarios in count mode; with --duration only used when explicitly set"},
			&cli.DurationFlag{Name: "duration", Usage: "optional time-based run duration (e.g. 10m)"},
			&cli.IntFlag{Name: "concurrency", Value: 40, Usage: "number of concurrent workers"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-request timeout"},
			&cli.StringFlag{Name: "mode", Value: string(modeOrder), Usage: "load mode: order | order-read"},
			&cli.StringFlag{Name: "products", Value: "1", Usage: "comma-separated product ids, used round-robin"},
			&cli.IntFlag{Name: "quantity", Value: 1, Usage: "units per order line"},
			&cli.Int64Flag{Name: "customer", Usage: "customer id for orders (0 = anonymous)"},
			&cli.BoolFlag{Name: "idempotency", Value: true, Usage: "send a unique Idempotency-Key per order"},
			&cli.BoolFlag{Name: "allow-conflict", Usage: "count 409 (out of stock) as an expected outcome"},
			&cli.StringFlag{Name: "output", Usage: "optional JSON report output file path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromContext(c)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			_, err = run(c.Context, cfg, newHTTPClient(cfg), c.App.Writer)
			return err
		},
	}
}

func configFromContext(c *cli.Context) (config, error) {
	cfg := config{
		baseURL:       strings.TrimRight(strings.TrimSpace(c.String("addr")), "/"),
		total:         c.Int("total"),
		totalSet:      c.IsSet("total"),
		duration:      c.Duration("duration"),
		concurrency:   c.Int("concurrency"),
		timeout:       c.Duration("timeout"),
		quantity:      c.Int("quantity"),
		customerID:    c.Int64("customer"),
		idempotency:   c.Bool("idempotency"),
		allowConflict: c.Bool("allow-conflict"),
		outputPath:    c.String("output"),
	}

	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	cfg.productIDs, err = parseProductIDs(c.String("products"))
	if err != nil {
		return cfg, err
	}

	return cfg, validate(cfg)
}

func validate(cfg config) error {
	switch {
	case !strings.HasPrefix(cfg.baseURL, "http://") && !strings.HasPrefix(cfg.baseURL, "https://"):
		return fmt.Errorf("addr must be an http(s) URL, got %q", cfg.baseURL)
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return errors.New("quantity must be > 0")
	case cfg.customerID < 0:
		return errors.New("customer must be >= 0")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeOrder:
		return modeOrder, nil
	case modeOrderRead:
		return modeOrderRead, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func parseProductIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, chunk := range strings.Split(raw, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		id, err := strconv.ParseInt(chunk, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product id %q", chunk)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one product id is required")
	}
	return ids, nil
}

func newHTTPClient(cfg config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.concurrency
	transport.MaxIdleConnsPerHost = cfg.concurrency
	return &http.Client{Transport: transport}
}

// run гонит сценарии через пул воркеров, печатает отчёт и возвращает errScenariosFailed,
// если хотя бы один сценарий завершился ошибкой.
func run(ctx context.Context, cfg config, client *http.Client, out io.Writer) (report, error) {
	startedAt := time.Now()
	runner := &scenarioRunner{
		client: client,
		cfg:    cfg,
		runID:  fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
		col:    newCollector(),
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runner.run(ctx, index)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := runner.col.buildReport(startedAt, time.Since(startedAt))
	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}

	if result.FailedScenarios > 0 {
		return result, errScenariosFailed
	}
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}
