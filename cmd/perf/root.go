package perf

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/engine"
	"github.com/ValentinKolb/dSync/lib/session"
	"github.com/ValentinKolb/dSync/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd benchmarks the engine's hot paths
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the dSync engine",
		RunE:    run,
		PreRunE: processPerfConfig,
	}

	perfSkip     = make([]string, 0)
	perfPrefill  = 1000
	perfTextSize = 16
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. text,export)"))
	key = "prefill"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations to prefill the document with before measuring"))
	key = "text-size"
	PerfCmd.Flags().Int(key, 16, util.WrapString("Length of the text fragment inserted per text operation"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfPrefill = viper.GetInt("prefill")
	perfTextSize = viper.GetInt("text-size")
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the dSync engine")
	fmt.Println()
	fmt.Printf("Prefill: %d ops, text fragment: %d chars\n", perfPrefill, perfTextSize)
	fmt.Println()
	fmt.Println("starting benchmarks...")

	results := make(map[string]testing.BenchmarkResult)
	timers := make(map[string]gometrics.Timer)

	// latency timers are kept per benchmark so percentiles survive the
	// throughput-oriented BenchmarkResult
	bench := func(name string, fn func(b *testing.B, timer gometrics.Timer)) {
		if shouldSkip(name) {
			results[name] = testing.BenchmarkResult{}
			printResult(name, results[name], nil)
			return
		}
		timer := gometrics.NewTimer()
		result := testing.Benchmark(func(b *testing.B) { fn(b, timer) })
		results[name] = result
		timers[name] = timer
		printResult(name, result, timer)
	}

	fragment := strings.Repeat("x", perfTextSize)

	bench("text", func(b *testing.B, timer gometrics.Timer) {
		e, sessionID := newBenchEngine(b)
		rng := rand.New(rand.NewPCG(7, 7))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			_, err := e.ApplyOperation(sessionID, &store.TextInsert{Position: rng.IntN(i*perfTextSize + 1), Text: fragment})
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(text) - apply failed: %v", err)
			}
		}
	})

	bench("object", func(b *testing.B, timer gometrics.Timer) {
		e, sessionID := newBenchEngine(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			_, err := e.ApplyOperation(sessionID, &store.ObjectMove{
				ObjectID: fmt.Sprintf("obj-%d", i%256),
				X:        float64(i),
				Y:        float64(i),
			})
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(object) - apply failed: %v", err)
			}
		}
	})

	bench("table", func(b *testing.B, timer gometrics.Timer) {
		e, sessionID := newBenchEngine(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			_, err := e.ApplyOperation(sessionID, &store.TableUpdate{
				Table: "bench",
				Row:   fmt.Sprintf("r%d", i%100),
				Col:   fmt.Sprintf("c%d", i%10),
				Value: []byte("42"),
			})
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(table) - apply failed: %v", err)
			}
		}
	})

	bench("remote", func(b *testing.B, timer gometrics.Timer) {
		origin, sessionID := newBenchEngine(b)

		// pre-generate the update stream outside the measurement
		updates := make([]store.Update, b.N)
		for i := range updates {
			u, err := origin.ApplyOperation(sessionID, &store.TableUpdate{
				Table: "bench",
				Row:   fmt.Sprintf("r%d", i%100),
				Col:   "c",
				Value: []byte("42"),
			})
			if err != nil {
				b.Fatalf("prep failed: %v", err)
			}
			updates[i] = u
		}

		target := engine.NewDefault()
		b.Cleanup(target.Close)

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			err := target.ApplyRemoteUpdate(updates[i])
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(remote) - apply failed: %v", err)
			}
		}
	})

	bench("export", func(b *testing.B, timer gometrics.Timer) {
		e, sessionID := newBenchEngine(b)
		prefill(b, e, sessionID, fragment)

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			_, err := e.ExportState()
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(export) - export failed: %v", err)
			}
		}
	})

	bench("serialize", func(b *testing.B, timer gometrics.Timer) {
		e, sessionID := newBenchEngine(b)
		prefill(b, e, sessionID, fragment)

		snap, err := e.ExportState()
		if err != nil {
			b.Fatalf("export failed: %v", err)
		}
		s, err := util.GetSerializer()
		if err != nil {
			b.Fatalf("serializer: %v", err)
		}

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			start := time.Now()
			_, err := s.Serialize(snap)
			timer.UpdateSince(start)
			if err != nil {
				log.Printf("(serialize) - failed: %v", err)
			}
		}
	})

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// newBenchEngine creates an engine with one editing session.
func newBenchEngine(b *testing.B) (engine.ICollabEngine, string) {
	e := engine.NewDefault()
	b.Cleanup(e.Close)

	sess, err := e.StartSession("bench", "bench", session.Editor())
	if err != nil {
		b.Fatalf("start session failed: %v", err)
	}
	return e, sess.ID
}

// prefill loads a document with a mixed workload before measuring.
func prefill(b *testing.B, e engine.ICollabEngine, sessionID, fragment string) {
	rng := rand.New(rand.NewPCG(11, 11))
	for i := 0; i < perfPrefill; i++ {
		var op store.Operation
		switch i % 3 {
		case 0:
			op = &store.TextInsert{Position: rng.IntN(i*len(fragment)/3 + 1), Text: fragment}
		case 1:
			op = &store.ObjectCreate{ObjectID: fmt.Sprintf("obj-%d", i), ObjectType: "rect"}
		default:
			op = &store.TableInsert{Table: "bench", Row: fmt.Sprintf("r%d", i), Col: "c", Value: []byte("1")}
		}
		if _, err := e.ApplyOperation(sessionID, op); err != nil {
			b.Fatalf("prefill failed: %v", err)
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%12.0f ops/s%12s/op", test, opsPerSec, time.Duration(result.NsPerOp()))
	if timer != nil {
		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
		fmt.Printf("    p50 %-10s p95 %-10s p99 %-10s",
			time.Duration(int64(ps[0])), time.Duration(int64(ps[1])), time.Duration(int64(ps[2])))
	}
	fmt.Println()
}
