package cli

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"HexCollector-App/internal/config"
	"HexCollector-App/internal/logger"
)

// RootOptions 全コマンド共通のフラグと読み込み済みの設定
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"

	Config *config.Config
	Logger *log.Logger
}

// ValidFormats 出力形式
var ValidFormats = []string{"text", "json"}

// NewRootCommand collectorコマンドを作成する
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "H3セル単位で地点情報を収集する",
		Long: `領域をH3の六角形セルに分割し、各セル中心を基準に
Places Nearby Search をレート制限付きで呼び出して地点情報を収集します。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("出力形式が不正です %q: %v のいずれかを指定してください", opts.Format, ValidFormats)
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Logging.Level = opts.LogLevel
			}
			opts.Config = cfg
			opts.Logger = logger.New(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "collector.toml", "設定ファイル（TOML）のパス")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "ログレベル（設定ファイルより優先）")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "出力形式 (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCellsCommand(opts))

	return cmd
}

// Execute ルートコマンドを実行する
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
