package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neketka/ecstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootCmd = &cobra.Command{
		Use:   "ecstress",
		Short: "Concurrency stress and invariant checker for the ecstore engine",
		Long: `ecstress interleaves batched creates and random deletes across worker
goroutines, lets the stores quiesce and compact, and then audits the
engine's identity invariants (id map bijection, deleted-bit counts,
live-entity accounting).`,
		RunE:    run,
		PreRunE: processConfig,
	}

	cfgPoolBlocks int
	cfgWorkers    int
	cfgDuration   time.Duration
	cfgMaxBatch   int
	cfgSeed       int64
	cfgMetrics    bool
	cfgVerbose    bool
)

func init() {
	rootCmd.Flags().Int("pool-blocks", 65536, "number of 4 KiB blocks in the pool")
	rootCmd.Flags().Int("workers", 8, "number of worker goroutines")
	rootCmd.Flags().Duration("duration", 5*time.Second, "how long to run the interleaved load")
	rootCmd.Flags().Int("max-batch", 1024, "maximum entities per create batch")
	rootCmd.Flags().Int64("seed", 1, "base RNG seed (workers derive their own)")
	rootCmd.Flags().Bool("metrics", false, "dump Prometheus metrics on exit")
	rootCmd.Flags().Bool("verbose", false, "enable debug logging")
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.SetEnvPrefix("ECSTRESS")
	viper.AutomaticEnv()

	cfgPoolBlocks = viper.GetInt("pool-blocks")
	cfgWorkers = viper.GetInt("workers")
	cfgDuration = viper.GetDuration("duration")
	cfgMaxBatch = viper.GetInt("max-batch")
	cfgSeed = viper.GetInt64("seed")
	cfgMetrics = viper.GetBool("metrics")
	cfgVerbose = viper.GetBool("verbose")
	return nil
}

// compA and compB mirror the two component shapes of the engine's
// end-to-end scenarios: one word and four words.
type compA struct {
	X uint64
}

type compB struct {
	X, Y, Z, W uint64
}

func run(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if cfgVerbose {
		level = slog.LevelDebug
	}
	logger := ecstore.NewTextLogger(level)

	pool, err := ecstore.NewPool(cfgPoolBlocks, logger.Logger)
	if err != nil {
		return err
	}

	collector := ecstore.NewVMMetricsCollector(nil)
	st, err := ecstore.New(
		ecstore.WithPool(pool),
		ecstore.WithLogger(logger),
		ecstore.WithMetrics(collector),
	)
	if err != nil {
		return err
	}

	aID, err := ecstore.Register[compA](st)
	if err != nil {
		return err
	}
	bID, err := ecstore.Register[compB](st)
	if err != nil {
		return err
	}

	archA := ecstore.NewArchetype(aID)
	archAB := ecstore.NewArchetype(aID, bID)

	var created, deleted atomic.Int64
	deadline := time.Now().Add(cfgDuration)

	var wg sync.WaitGroup
	errs := make(chan error, cfgWorkers)
	for w := 0; w < cfgWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfgSeed + int64(w)))
			arch := archA
			if w%2 == 1 {
				arch = archAB
			}

			var live []ecstore.ID
			for time.Now().Before(deadline) {
				k := 1 + rng.Intn(cfgMaxBatch)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				view, err := st.Create(ctx, arch, k)
				cancel()
				if err != nil {
					errs <- fmt.Errorf("create of %d entities failed (pool too small for this load?): %w", k, err)
					return
				}
				for it := view.Iter(); it.Next(); {
					ecstore.Get[compA](it).X = 51
					live = append(live, it.Entity())
				}
				view.Release()
				created.Add(int64(k))

				// Delete roughly half of what we created, at random.
				for i := 0; i < k/2 && len(live) > 0; i++ {
					j := rng.Intn(len(live))
					st.Delete(live[j])
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
					deleted.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		return err
	}

	// Deletes never trigger compaction themselves, so release one view
	// over every store to let each quiesce and compact the deletes issued
	// after the workers' last release. Then audit the invariants.
	st.RunQuery(ecstore.NewQuery()).Release()
	if err := st.CheckConsistency(); err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	wantLive := created.Load() - deleted.Load()
	gotLive := int64(st.LiveCount())
	if gotLive != wantLive {
		return fmt.Errorf("live count mismatch: created-deleted=%d, engine reports %d", wantLive, gotLive)
	}

	stats := pool.Stats()
	logger.Info("stress run passed",
		"created", created.Load(),
		"deleted", deleted.Load(),
		"live", gotLive,
		"pool_blocks", stats.BlockCount,
		"pool_in_use", stats.InUse,
		"pool_high_water", stats.HighWater,
	)

	if err := st.Close(); err != nil {
		return err
	}
	if err := pool.Close(); err != nil {
		return err
	}

	if cfgMetrics {
		collector.Set().WritePrometheus(os.Stdout)
	}
	return nil
}
