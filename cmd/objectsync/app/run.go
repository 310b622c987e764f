package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openbridge/objectsync/internal/sources"
	pkgsync "github.com/openbridge/objectsync/internal/sync"
)

var runCmd = &cobra.Command{
	Use:   "run <synchronization-id>",
	Short: "Execute a single synchronization run",
	Long: `Execute one synchronization run and print the run log as JSON.

With --test the run is read-only: records are fetched, mapped and logged
but the target is never written. With --force every record is dispatched
regardless of change detection.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	runCmd.Flags().Bool("test", false, "Run read-only, without writing to the target")
	runCmd.Flags().Bool("force", false, "Dispatch every record regardless of change detection")

	if err := runCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	syncID := args[0]

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	test, err := cmd.Flags().GetBool("test")
	if err != nil {
		return fmt.Errorf("failed to get test flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	rt, err := buildRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	runLog, err := rt.orchestrator.Run(ctx, syncID, pkgsync.RunOptions{Test: test, Force: force})
	if errors.Is(err, sources.ErrRateLimited) {
		// The partial run log is still worth printing; the next run
		// resumes from the persisted page cursor.
		slog.Warn("Source rate limited, run deferred", "synchronization", syncID)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	output, err := json.MarshalIndent(runLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format run log: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
