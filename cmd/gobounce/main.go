// Command gobounce debounces or throttles lines read from stdin.
//
// Every line is either "key<TAB>payload" or a bare payload (key "-").
// Lines are grouped by key and printed to stdout when the policy invokes,
// prefixed by the invocation time. At EOF pending lines are flushed,
// on SIGINT or SIGTERM they are dropped.
//
//	tail -f app.log | gobounce -mode throttle -wait 1s
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fabiofenoglio/gobounce"
)

const defaultKey = "-"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("gobounce: %v", err)
	}
}

type options struct {
	configPath  string
	policyName  string
	mode        string
	wait        time.Duration
	maxWait     time.Duration
	leading     bool
	trailing    bool
	verbose     bool
	metricsAddr string
	rate        float64
	burst       int

	// set holds the names of the flags given explicitly.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("gobounce", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to a policies YAML file (optional)")
	fs.StringVar(&o.policyName, "policy", "default", "Policy to use from the config file")
	fs.StringVar(&o.mode, "mode", string(gobounce.ModeDebounce), "debounce | throttle")
	fs.DurationVar(&o.wait, "wait", 250*time.Millisecond, "Wait window")
	fs.DurationVar(&o.maxWait, "max-wait", 0, "Maximum deferral while lines keep coming (0 = unbounded)")
	fs.BoolVar(&o.leading, "leading", false, "Print on the leading edge")
	fs.BoolVar(&o.trailing, "trailing", true, "Print on the trailing edge")
	fs.BoolVar(&o.verbose, "v", false, "Verbose logging to stderr")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (optional)")
	fs.Float64Var(&o.rate, "rate", 0, "Maximum printed lines per second across all keys (0 = unlimited)")
	fs.IntVar(&o.burst, "burst", 1, "Burst allowed by -rate")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		o.set[f.Name] = true
	})
	return o, nil
}

// policy returns the policy from the config file when one is given,
// otherwise the one described by the flags.
func (o *options) policy() (gobounce.Policy, error) {
	if o.configPath != "" {
		policies, err := gobounce.LoadPoliciesFromPath(o.configPath)
		if err != nil {
			return gobounce.Policy{}, err
		}
		p, ok := policies[o.policyName]
		if !ok {
			return gobounce.Policy{}, fmt.Errorf("policy %q not found in %s", o.policyName, o.configPath)
		}
		return p, nil
	}

	p := gobounce.Policy{
		Mode: gobounce.Mode(o.mode),
		Wait: o.wait,
	}
	if o.set["max-wait"] {
		p.MaxWait = &o.maxWait
	}
	if o.set["leading"] {
		p.Leading = &o.leading
	}
	if o.set["trailing"] {
		p.Trailing = &o.trailing
	}
	return p, p.Validate()
}

func splitLine(line string) (key, payload string) {
	key, payload, found := strings.Cut(line, "\t")
	if !found || strings.TrimSpace(key) == "" {
		return defaultKey, line
	}
	return key, payload
}

// errRateLimited is returned for the lines dropped by the -rate cap.
var errRateLimited = errors.New("output rate exceeded, line dropped")

type printer struct {
	lock    sync.Mutex
	out     io.Writer
	limiter *rate.Limiter
}

func (p *printer) emit(key, payload string) (string, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return "", errRateLimited
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	_, err := fmt.Fprintf(p.out, "%s\t%s\t%s\n", time.Now().Format("15:04:05.000"), key, payload)
	return payload, err
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	policy, err := opts.policy()
	if err != nil {
		return err
	}
	if opts.rate < 0 || opts.burst < 1 {
		return fmt.Errorf("invalid rate %v with burst %d", opts.rate, opts.burst)
	}

	groupOptions := []gobounce.Option{
		gobounce.WithSignal(ctx),
		gobounce.WithLogger(gobounce.NewSlogLogger(logger)),
		gobounce.WithName(opts.policyName),
		gobounce.WithErrorHandler(func(err error) {
			logger.Warn("line not printed", "err", err)
		}),
	}

	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := gobounce.NewMetrics(reg, "")
		if err != nil {
			return err
		}
		groupOptions = append(groupOptions, gobounce.WithMetrics(metrics))

		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	p := &printer{out: stdout}
	if opts.rate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.rate), opts.burst)
	}
	group, err := gobounce.NewGroupFromPolicy[string, string, string](p.emit, policy, groupOptions...)
	if err != nil {
		return err
	}
	defer group.Close()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, dropping pending lines")
			return nil

		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-scanErr:
				default:
				}
				if err != nil {
					return err
				}
				if err := group.FlushAll(); err != nil {
					logger.Warn("lines not printed", "err", err)
					if !errors.Is(err, errRateLimited) {
						return err
					}
				}
				return nil
			}

			key, payload := splitLine(line)
			if _, err := group.Call(key, payload); err != nil {
				logger.Warn("line not printed", "key", key, "err", err)
			}
		}
	}
}
