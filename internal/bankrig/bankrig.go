// Package bankrig simulates a fixed pool of parallel bank tiles
// executing the microblocks a pack.Pack schedules for them. It exists
// to exercise Pack concurrently from the outside the way a real
// validator's banking stage would, without pulling an actual
// execution engine into this repository: each simulated bank tile
// "runs" a microblock by calling an Executor, then reports the result
// back through Pack's completion API.
//
// Pack itself is not safe for concurrent calls. Rig serializes every
// call into Pack onto the goroutine that calls Run, dispatching each
// tile's execution work to its own goroutine via errgroup and waiting
// for it to finish before scheduling that tile's next microblock -
// concurrency across tiles, not against Pack itself.
package bankrig

import (
	"context"
	"math/rand"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/xinyijun/txpack/pack"
)

// Executor runs a scheduled transaction and reports how many compute
// units it actually consumed. Implementations model execution;
// ExecuteNoop is provided for tests and synthetic traffic.
type Executor interface {
	Execute(ctx context.Context, s pack.Scheduled) (executedCUs uint32, err error)
}

// ExecuteNoop reports rand-jittered compute usage between MinFraction
// and 1.0 of the scheduled estimate, simulating realistic rebates
// without running any real program.
type ExecuteNoop struct {
	Rng         *rand.Rand
	MinFraction float64
}

func (e ExecuteNoop) Execute(_ context.Context, s pack.Scheduled) (uint32, error) {
	min := e.MinFraction
	if min <= 0 {
		min = 1
	}
	frac := min + (1-min)*e.Rng.Float64()
	return uint32(float64(s.ComputeEst) * frac), nil
}

// Config bounds a Rig's scheduling behavior.
type Config struct {
	BankTileCnt        int
	CUsPerBank         uint64
	VoteFraction       float64
	MicroblocksPerBank int
}

// Rig drives cfg.BankTileCnt simulated bank tiles against a single
// Pack.
type Rig struct {
	p    *pack.Pack
	exec Executor
	cfg  Config
	log  log.Logger
}

// New constructs a Rig. The caller retains ownership of p and must not
// call any Pack method concurrently with Run.
func New(p *pack.Pack, exec Executor, cfg Config, logger log.Logger) *Rig {
	if logger == nil {
		logger = log.Root()
	}
	return &Rig{p: p, exec: exec, cfg: cfg, log: logger}
}

// Run drives every bank tile for up to cfg.MicroblocksPerBank rounds.
// A tile that receives an empty microblock is simply skipped for that
// round; Run stops early only after cfg.BankTileCnt+1 consecutive
// rounds in which no tile received anything. Each round executes every tile's
// microblock concurrently via an errgroup, then serially replays the
// resulting rebates and completions into Pack - the scheduling call
// itself also happens serially, round by round, since Pack is not
// safe for concurrent Schedule calls from multiple tiles either.
func (r *Rig) Run(ctx context.Context) error {
	emptyRounds := 0

	for round := 0; round < r.cfg.MicroblocksPerBank; round++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		scheduled := make([][]pack.Scheduled, r.cfg.BankTileCnt)
		anyScheduled := false
		for tile := 0; tile < r.cfg.BankTileCnt; tile++ {
			out := r.p.ScheduleNextMicroblock(tile, r.cfg.CUsPerBank, r.cfg.VoteFraction)
			if len(out) == 0 {
				continue
			}
			scheduled[tile] = out
			anyScheduled = true
		}
		if !anyScheduled {
			// A round can come up empty because every remaining pending
			// transaction conflicts with one still outstanding on another
			// tile; only give up once several rounds in a row find
			// nothing at all left to schedule.
			emptyRounds++
			if emptyRounds >= r.cfg.BankTileCnt+1 {
				break
			}
			continue
		}
		emptyRounds = 0

		executed := make([][]uint32, r.cfg.BankTileCnt)
		g, gctx := errgroup.WithContext(ctx)
		for tile := 0; tile < r.cfg.BankTileCnt; tile++ {
			tile := tile
			out := scheduled[tile]
			if len(out) == 0 {
				continue
			}
			executed[tile] = make([]uint32, len(out))
			g.Go(func() error {
				for i, s := range out {
					cus, err := r.exec.Execute(gctx, s)
					if err != nil {
						return err
					}
					executed[tile][i] = cus
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for tile := 0; tile < r.cfg.BankTileCnt; tile++ {
			out := scheduled[tile]
			for i, s := range out {
				// g.Wait() above already returned on the first execution
				// error, so every result reaching here succeeded.
				r.p.RebateCUs(s.Txn, s.ComputeEst, executed[tile][i], pack.FlagExecuteSuccess)
			}
			if len(out) > 0 {
				r.p.MicroblockComplete(tile)
				r.log.Debug("bank tile executed microblock", "bank_tile", tile, "txns", len(out))
			}
		}
	}
	return nil
}
