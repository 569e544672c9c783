package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/backend"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/events"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and host resources",
	Long: `Validate the configuration, open the configured backend, report mailbox
depth and print a host resource snapshot. Fails when the configuration is
invalid or the backend cannot be opened.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

const doctorTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	printTitle(out, "Configuration")
	cfg, loader, err := loadConfig()
	if err != nil {
		printCheck(out, false, false, "cannot load config: %v", err)
		return fmt.Errorf("doctor: configuration unreadable")
	}
	if file := loader.ConfigFile(); file != "" {
		printCheck(out, true, false, "using %s", file)
	} else {
		printCheck(out, false, true, "no config file, using defaults and environment")
	}

	configOK := reportValidation(out, cfg)
	fmt.Fprintln(out)

	printTitle(out, "Storage")
	storageOK := checkBackend(ctx, out, cfg)
	fmt.Fprintln(out)

	printTitle(out, "Host")
	snap := diagnostics.NewCollector(diskPath(cfg)).Collect(ctx)
	printField(out, "hostname", snap.Hostname)
	printField(out, "platform", snap.Platform)
	printField(out, "cpu", fmt.Sprintf("%s (%d threads)", snap.CPUModel, snap.CPUThreads))
	printField(out, "memory", fmt.Sprintf("%.0f / %.0f MB (%.1f%%)", snap.MemUsedMB, snap.MemTotalMB, snap.MemPercent))
	printField(out, "disk", fmt.Sprintf("%.1f GB free on %s", snap.DiskFreeGB, snap.DiskPath))
	printField(out, "load", fmt.Sprintf("%.2f", snap.LoadAvg1))
	for _, w := range snap.Warnings() {
		printCheck(out, false, true, "%s", w)
	}
	fmt.Fprintln(out)

	if !configOK || !storageOK {
		return fmt.Errorf("doctor: checks failed")
	}
	fmt.Fprintln(out, render(okStyle, "All checks passed"))
	return nil
}

func reportValidation(out io.Writer, cfg *config.Config) bool {
	v := config.NewValidator()
	if err := v.Validate(cfg); err == nil {
		printCheck(out, true, false, "configuration valid")
		return true
	}
	for _, e := range v.Errors() {
		printCheck(out, false, false, "%s: %s", e.Field, e.Message)
	}
	return false
}

// checkBackend opens the backend the way serve does and reads the mailbox
// depth. SQL backends are migrated as a side effect.
func checkBackend(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	if err := config.NewValidator().ValidateBackend(cfg); err != nil {
		printCheck(out, false, false, "backend settings invalid")
		return false
	}

	bus := events.New(1)
	defer bus.Close()

	backends, err := backend.Open(ctx, backendOptions(cfg), bus)
	if err != nil {
		printCheck(out, false, false, "%s backend: %v", cfg.Backend.Driver, err)
		return false
	}
	defer func() { _ = backends.Close() }()

	printCheck(out, true, false, "%s backend reachable", cfg.Backend.Driver)

	if d, ok := backends.Queue.(backend.Depther); ok {
		live, dead, err := d.Depth(ctx)
		if err != nil {
			printCheck(out, false, false, "reading mailbox depth: %v", err)
			return false
		}
		printField(out, "queued", live)
		printField(out, "dead-lettered", dead)
		if dead > 0 {
			printCheck(out, false, true, "%d dead-lettered messages", dead)
		}
	}
	return true
}
