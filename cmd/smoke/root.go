package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/cmd/util"
	"github.com/arbordb/arbor/lib/engine"
)

var (
	// SmokeCmd walks a fresh engine through its whole lifecycle
	SmokeCmd = &cobra.Command{
		Use:   "smoke",
		Short: "Run a lifecycle walkthrough against a fresh engine",
		Long: "Starts an engine with the configured options and walks it through " +
			"writes, reads, listings, queries, deletes, backups, and a health " +
			"check, printing the outcome of every step.",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runSmoke,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)
}

func runSmoke(_ *cobra.Command, _ []string) error {
	cfg := util.GetEngineConfig()

	fmt.Println("arbor engine smoke test")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			fmt.Printf("close failed: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	failed := 0

	step := func(name string, fn func() error) {
		start := time.Now()
		if err := fn(); err != nil {
			failed++
			fmt.Printf("  %-36s FAILED (%v)\n", name, err)
			return
		}
		fmt.Printf("  %-36s ok (%s)\n", name, time.Since(start).Round(time.Microsecond))
	}

	fmt.Println("Lifecycle:")

	step("store three user objects", func() error {
		users := []map[string]interface{}{
			{"name": "ada", "role": "admin", "level": 2},
			{"name": "brin", "role": "user", "level": 1},
			{"name": "cleo", "role": "user", "level": 2},
		}
		for _, u := range users {
			if _, err := e.Set(ctx, "user:"+u["name"].(string), u, nil); err != nil {
				return err
			}
		}
		return nil
	})

	step("store with a backup copy", func() error {
		_, err := e.Set(ctx, "config:site", map[string]interface{}{"theme": "dark"},
			&engine.SetOptions{Backup: true})
		return err
	})

	step("compress a large value", func() error {
		wr, err := e.Set(ctx, "blob", strings.Repeat("arbor grows rings ", 2048), nil)
		if err != nil {
			return err
		}
		if cfg.CompressionEnabled && !wr.Compressed {
			return fmt.Errorf("expected a compressed write, stored %d bytes", wr.Size)
		}
		return nil
	})

	step("read a value back", func() error {
		value, err := e.Get(ctx, "user:ada")
		if err != nil {
			return err
		}
		obj, ok := value.(map[string]interface{})
		if !ok || obj["name"] != "ada" {
			return fmt.Errorf("unexpected value %v", value)
		}
		return nil
	})

	step("overwrite bumps the version", func() error {
		wr, err := e.Set(ctx, "user:ada", map[string]interface{}{
			"name": "ada", "role": "admin", "level": 3,
		}, nil)
		if err != nil {
			return err
		}
		if wr.Version != 2 {
			return fmt.Errorf("version = %d, want 2", wr.Version)
		}
		return nil
	})

	step("check existence", func() error {
		if !e.Exists(ctx, "user:ada") {
			return fmt.Errorf("user:ada should exist")
		}
		if e.Exists(ctx, "user:nobody") {
			return fmt.Errorf("user:nobody should not exist")
		}
		return nil
	})

	step("list keys by pattern", func() error {
		keys, err := e.Keys(ctx, "user:*", nil)
		if err != nil {
			return err
		}
		if len(keys) != 3 {
			return fmt.Errorf("got %d user keys, want 3", len(keys))
		}
		return nil
	})

	step("query by field", func() error {
		results, err := e.Query(ctx, map[string]interface{}{"role": "user"})
		if err != nil {
			return err
		}
		if len(results) != 2 {
			return fmt.Errorf("got %d matches, want 2", len(results))
		}
		return nil
	})

	step("delete is idempotent", func() error {
		dr, err := e.Delete(ctx, "user:cleo")
		if err != nil {
			return err
		}
		if !dr.Existed {
			return fmt.Errorf("user:cleo should have existed")
		}
		if dr, err = e.Delete(ctx, "user:cleo"); err != nil {
			return err
		}
		if dr.Existed {
			return fmt.Errorf("second delete should be a no-op")
		}
		return nil
	})

	step("backup survives deletion", func() error {
		if _, err := e.Delete(ctx, "config:site"); err != nil {
			return err
		}
		value, err := e.Get(ctx, engine.BackupPrefix+"config:site")
		if err != nil {
			return err
		}
		if value == nil {
			return fmt.Errorf("backup copy is gone")
		}
		return nil
	})

	step("run a health check", func() error {
		status := e.HealthCheck(ctx)
		if !status.Healthy {
			return fmt.Errorf("engine unhealthy: %v", status.Issues)
		}
		return nil
	})

	fmt.Println()
	stats, err := json.MarshalIndent(e.GetStats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println("Stats:")
	fmt.Println(string(stats))

	if failed > 0 {
		return fmt.Errorf("%d lifecycle steps failed", failed)
	}

	fmt.Println()
	fmt.Println("smoke test passed")
	return nil
}
