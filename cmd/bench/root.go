package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbordb/arbor/cmd/util"
	"github.com/arbordb/arbor/lib/engine"
)

var (
	eng *engine.Engine

	// BenchCmd benchmarks the engine operations
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the engine operations",
		Long:    "",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchKeyPrefix        = "__bench"
	benchLargeValueSizeKB = 100
	benchNumThreads       = 10
	benchKeySpread        = 100
	benchSkip             = make([]string, 0)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchLargeValueSizeKB = viper.GetInt("large-value-size")
	benchKeySpread = viper.GetInt("keys")
	benchNumThreads = viper.GetInt("threads")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	var err error
	eng, err = engine.New(util.GetEngineConfig())
	return err
}

func run(_ *cobra.Command, _ []string) error {
	defer func() {
		if err := eng.Close(); err != nil {
			log.Printf("error closing engine: %v\n", err)
		}
	}()

	cfg := util.GetEngineConfig()
	ctx := context.Background()

	fmt.Println("Benchmarking tool for the arbor engine")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d\n", benchNumThreads)
	fmt.Println()

	fmt.Println("starting benchmarks...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	setResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("set")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(set) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := eng.Set(ctx, getKey(counter), "test", nil); err != nil {
					log.Printf("(set) - error setting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["set"] = setResult
	printResult("set", setResult)

	setLargeValueResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set-large") {
			return
		}

		// prepare large value
		largeValue := strings.Repeat("abcdefgh", benchLargeValueSizeKB*1024/8)

		// prepare keys
		getKey, iter := getKeys("set-large")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(set-large) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := eng.Set(ctx, getKey(counter), largeValue, nil); err != nil {
					log.Printf("(set-large) - error setting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["set-large"] = setLargeValueResult
	printResult("set-large", setLargeValueResult)

	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("get")

		// set keys
		iter(func(k string) {
			if _, err := eng.Set(ctx, k, "test", nil); err != nil {
				log.Printf("(get) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(get) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := eng.Get(ctx, getKey(counter)); err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get"] = getResult
	printResult("get", getResult)

	deleteResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("delete")

		// set keys
		iter(func(k string) {
			if _, err := eng.Set(ctx, k, "test", nil); err != nil {
				log.Printf("(delete) - error setting key: %v\n", err)
			}
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := eng.Delete(ctx, getKey(counter)); err != nil {
					log.Printf("(delete) - error deleting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["delete"] = deleteResult
	printResult("delete", deleteResult)

	existsResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("exists") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("exists")

		// set keys
		iter(func(k string) {
			if _, err := eng.Set(ctx, k, "test", nil); err != nil {
				log.Printf("(exists) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(exists) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				eng.Exists(ctx, getKey(counter))
				counter++
			}
		})
	})

	results["exists"] = existsResult
	printResult("exists", existsResult)

	existsNotResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("exists-not") {
			return
		}

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := fmt.Sprintf("%s/exists-not-%d", benchKeyPrefix, counter%100)
				eng.Exists(ctx, key) // miss expected
				counter++
			}
		})
	})

	results["exists-not"] = existsNotResult
	printResult("exists-not", existsNotResult)

	queryResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("query") {
			return
		}

		// prepare keys
		_, iter := getKeys("query")

		// set objects the field index can serve
		i := 0
		iter(func(k string) {
			value := map[string]interface{}{"role": "bench", "n": i}
			i++
			if _, err := eng.Set(ctx, k, value, nil); err != nil {
				log.Printf("(query) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(query) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := eng.Query(ctx, map[string]interface{}{"role": "bench"}); err != nil {
					log.Printf("(query) - error querying: %v\n", err)
				}
			}
		})
	})

	results["query"] = queryResult
	printResult("query", queryResult)

	mixedUsageResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("mixed")

		// set keys
		iter(func(k string) {
			if _, err := eng.Set(ctx, k, "test", nil); err != nil {
				log.Printf("(mixed) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := eng.Delete(ctx, k); err != nil {
					log.Printf("(mixed) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				var err error
				key := getKey(counter)
				switch counter % 4 {
				case 0: // set
					_, err = eng.Set(ctx, key, "test", nil)
				case 1: // get
					_, err = eng.Get(ctx, key)
				case 2: // delete
					_, err = eng.Delete(ctx, key)
				case 3: // exists
					eng.Exists(ctx, key)
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
				}
				counter++
			}
		})
	})

	results["mixed"] = mixedUsageResult
	printResult("mixed", mixedUsageResult)

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, cfg); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, cfg engine.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Backend", "Cache", "WAL", "Compression", "Encryption",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			cfg.Backend,
			strconv.FormatBool(cfg.CacheEnabled),
			strconv.FormatBool(cfg.TransactionSupport),
			strconv.FormatBool(cfg.CompressionEnabled),
			strconv.FormatBool(cfg.EncryptionEnabled),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchLargeValueSizeKB),
			strconv.Itoa(benchKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}

	return nil
}
