// Command packctl runs a standalone instance of the transaction
// packing core against synthetic traffic, for load-testing and manual
// inspection outside of a full validator. It wires the scheduler to a
// rate-limited synthetic transaction generator, a simulated bank-tile
// pool, structured logging, and a Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xinyijun/txpack/internal/bankrig"
	"github.com/xinyijun/txpack/pack"
	"github.com/xinyijun/txpack/txn/txntest"
)

func main() {
	app := &cli.App{
		Name:  "packctl",
		Usage: "run the transaction packing core against synthetic traffic",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file overriding defaults"},
			&cli.IntFlag{Name: "pack-depth", Value: 8192, Usage: "max pending transactions held at once"},
			&cli.IntFlag{Name: "bank-tiles", Value: 4, Usage: "number of simulated parallel bank tiles"},
			&cli.Float64Flag{Name: "vote-fraction", Value: 0.25, Usage: "fraction of each microblock's CU budget reserved for votes"},
			&cli.Uint64Flag{Name: "cus-per-bank", Value: 48_000_000, Usage: "compute-unit budget per microblock per bank tile"},
			&cli.IntFlag{Name: "microblocks", Value: 64, Usage: "microblocks to schedule per bank tile before exiting"},
			&cli.Float64Flag{Name: "ingest-rate", Value: 2000, Usage: "synthetic transactions admitted per second"},
			&cli.StringFlag{Name: "log-file", Usage: "path to a rotated log file; stderr if empty"},
			&cli.IntFlag{Name: "metrics-port", Value: 6060, Usage: "port to serve Prometheus metrics on; 0 disables"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "packctl:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	v := viper.New()
	v.SetConfigType("yaml")
	if cfgPath := c.String("config"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	get := func(flag string) int {
		if v.IsSet(flag) {
			return v.GetInt(flag)
		}
		return c.Int(flag)
	}
	getF := func(flag string) float64 {
		if v.IsSet(flag) {
			return v.GetFloat64(flag)
		}
		return c.Float64(flag)
	}
	getU := func(flag string) uint64 {
		if v.IsSet(flag) {
			return uint64(v.GetInt64(flag))
		}
		return c.Uint64(flag)
	}

	logger := setupLogger(c.String("log-file"))
	log.SetDefault(logger)

	lim := pack.Limits{
		MaxCostPerBlock:        48_000_000 * uint64(get("bank-tiles")),
		MaxVoteCostPerBlock:    12_000_000 * uint64(get("bank-tiles")),
		MaxWriteCostPerAcct:    12_000_000,
		MaxTxnPerMicroblock:    128,
		MaxMicroblocksPerBlock: 100_000,
		MaxDataBytesPerBlock:   1 << 30,
	}

	estimator := txntest.ConstantCostEstimator{Rewards: 5000, ComputeEst: 20_000, RequestedCUs: 200_000}
	p, err := pack.New(get("pack-depth"), get("bank-tiles"), lim,
		estimator, nil, rand.New(rand.NewSource(time.Now().UnixNano())),
		pack.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("constructing pack: %w", err)
	}

	if port := get("metrics-port"); port != 0 {
		go serveMetrics(port, p.MetricsRegistry(), logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(getF("ingest-rate")), int(getF("ingest-rate"))+1)
	go ingestSyntheticTraffic(ctx, p, limiter, logger)

	rig := bankrig.New(p, bankrig.ExecuteNoop{
		Rng:         rand.New(rand.NewSource(1)),
		MinFraction: 0.6,
	}, bankrig.Config{
		BankTileCnt:        get("bank-tiles"),
		CUsPerBank:         getU("cus-per-bank"),
		VoteFraction:       getF("vote-fraction"),
		MicroblocksPerBank: get("microblocks"),
	}, logger)

	logger.Info("packctl starting", "pack_depth", get("pack-depth"), "bank_tiles", get("bank-tiles"))
	if err := rig.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running bank rig: %w", err)
	}
	logger.Info("packctl finished")
	return nil
}

// ingestSyntheticTraffic admits randomly generated transactions at
// limiter's rate until ctx is cancelled, standing in for a real
// gossip/QUIC ingestion path (spec.md §1's Non-goals exclude
// transport, but packctl still needs something to admit).
func ingestSyntheticTraffic(ctx context.Context, p *pack.Pack, limiter *rate.Limiter, logger log.Logger) {
	var seq uint64
	pool := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		seq++
		a := pool[seq%uint64(len(pool))]
		b := pool[(seq+1)%uint64(len(pool))]
		isVote := seq%4 == 0
		builder := txntest.NewBuilder(seq).Writes(txntest.AddressFromLabel(a)).Reads(txntest.AddressFromLabel(b))
		if isVote {
			builder = builder.AsVote()
		}
		tx := builder.Build()
		slot := p.InsertInit()
		if _, _, ok := p.InsertFini(slot, tx, seq+100_000); !ok {
			continue
		}
		if seq%1000 == 0 {
			logger.Debug("ingested synthetic transaction", "seq", seq, "avail", p.AvailTxnCnt())
		}
	}
}

// setupLogger builds a leveled logger writing JSON to a rotated file
// when path is set, or colored terminal output to stderr otherwise -
// the same file-vs-terminal handler split as the teacher's own
// chain-logger setup, adapted to a package-level logger instead of a
// per-chain-aliased one.
func setupLogger(path string) log.Logger {
	logLevel := &slog.LevelVar{}
	logLevel.Set(slog.LevelInfo)

	var handler slog.Handler
	if path != "" {
		writer := &lumberjack.Logger{Filename: path, MaxSize: 100, MaxBackups: 5, MaxAge: 7, Compress: true}
		handler = log.JSONHandlerWithLevel(writer, logLevel)
	} else {
		useColor := isatty.IsTerminal(os.Stderr.Fd())
		out := colorable.NewColorableStderr()
		handler = log.NewTerminalHandlerWithLevel(out, logLevel, useColor)
	}
	return log.NewLogger(handler)
}

// serveMetrics exports reg - a Pack's own private registry, not
// metrics.DefaultRegistry - over HTTP: Pack registers its gauges,
// counters and histograms into a registry of its own rather than the
// global default so that multiple Packs in one process never collide
// on metric names, so the exporter must be pointed at that specific
// registry to surface anything.
func serveMetrics(port int, reg metrics.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		prometheus.Handler(reg).ServeHTTP(w, r)
	})
	addr := fmt.Sprintf(":%d", port)
	logger.Info("serving prometheus metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "err", err)
	}
}
