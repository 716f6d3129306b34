package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"HexCollector-App/internal/domain/model"
)

// RunOptions runコマンドのフラグ
type RunOptions struct {
	*RootOptions
	Resolution int
	TestMode   bool
}

// NewRunCommand 収集を1回だけ実行するコマンド
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "設定の領域に対して収集を1回実行する",
		Long: `設定ファイルの領域をH3セルに分割して収集を実行し、
設定された保存先に結果を保存します。

Example:
  collector run --resolution 6
  collector run --test-mode --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollection(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Resolution, "resolution", "r", -1, "H3解像度（省略時は設定値）")
	cmd.Flags().BoolVar(&opts.TestMode, "test-mode", false, "結果が閾値を超えた時点で打ち切る")

	return cmd
}

func runCollection(cmd *cobra.Command, opts *RunOptions) error {
	cfg, l := opts.Config, opts.Logger

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer a.Close()

	resolution := cfg.Collection.Resolution
	if opts.Resolution >= 0 {
		resolution = opts.Resolution
	}

	aggregate, err := a.orchestrator.StartCollection(ctx, a.region, resolution, model.CollectionOptions{TestMode: opts.TestMode})
	if err != nil {
		return err
	}
	return writeSummary(cmd.OutOrStdout(), opts.Format, aggregate.Summary())
}

func writeSummary(w io.Writer, format string, summary model.AggregateSummary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	stats := summary.RateGovernorStats
	_, err := fmt.Fprintf(w,
		"run_id:        %s\nregion:        %s\nresolution:    %d\ncells:         %d\nplaces:        %d\nrequests:      %d (failed %d)\nruntime:       %.1fs\n",
		summary.RunID, summary.RegionName, summary.Resolution, summary.TotalCells,
		summary.TotalResults, stats.TotalRequests, stats.FailedRequests, summary.RuntimeSeconds,
	)
	return err
}
