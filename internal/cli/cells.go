package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/service"
)

// CellsOptions cellsコマンドのフラグ
type CellsOptions struct {
	*RootOptions
	Resolution int
}

// cellOutput 1セル分の出力
type cellOutput struct {
	Cell   model.Cell   `json:"cell"`
	Center model.LatLng `json:"center"`
}

// NewCellsCommand 領域を覆うセルを表示するコマンド（APIは呼ばない）
func NewCellsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CellsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cells",
		Short: "設定の領域を覆うH3セルを表示する",
		Long: `設定ファイルの領域から収集対象のセルと各セルの中心座標を表示します。
外部APIは呼び出しません。

Example:
  collector cells --resolution 5 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCells(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Resolution, "resolution", "r", -1, "H3解像度（省略時は設定値）")

	return cmd
}

func listCells(w io.Writer, opts *CellsOptions) error {
	cfg := opts.Config

	target, err := loadRegion(cfg)
	if err != nil {
		return err
	}

	resolution := cfg.Collection.Resolution
	if opts.Resolution >= 0 {
		resolution = opts.Resolution
	}

	coverage, err := service.NewRegionTiler(opts.Logger).GenerateCoverage(target, resolution)
	if err != nil {
		return err
	}

	cells := make([]cellOutput, 0, len(coverage))
	for _, cell := range coverage {
		cells = append(cells, cellOutput{Cell: cell, Center: service.CellCenter(cell)})
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"region":       target.Name,
			"resolution":   resolution,
			"total_cells":  len(cells),
			"bounding_box": boundingBoxFor(target),
			"cells":        cells,
		})
	}

	for _, c := range cells {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", c.Cell, c.Center.Lat, c.Center.Lng); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "# %d cells (region=%s, resolution=%d)\n", len(cells), target.Name, resolution)
	return err
}

// boundingBoxFor ポリゴンがあればその外接ボックス、無ければ設定のボックスを返す
func boundingBoxFor(target model.RegionDescriptor) *model.BoundingBox {
	if box := service.BoundingBoxOf(target); box != nil {
		return box
	}
	return target.BoundingBox
}
