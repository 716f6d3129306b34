package model

import "sort"

// Cell 六角形タイル（H3インデックス）の識別子
// 同じ解像度で同じタイルに丸められる座標は必ず同じCellになる
type Cell string

func (c Cell) String() string {
	return string(c)
}

// Coverage 対象領域を覆う重複なしのセル集合（ソート済み）
type Coverage []Cell

// NewCoverage セル一覧から重複を除いたCoverageを作成
func NewCoverage(cells []Cell) Coverage {
	seen := make(map[Cell]struct{}, len(cells))
	coverage := make(Coverage, 0, len(cells))
	for _, cell := range cells {
		if _, ok := seen[cell]; ok {
			continue
		}
		seen[cell] = struct{}{}
		coverage = append(coverage, cell)
	}
	sort.Slice(coverage, func(i, j int) bool { return coverage[i] < coverage[j] })
	return coverage
}

// Contains セルが含まれているかチェック
func (c Coverage) Contains(cell Cell) bool {
	i := sort.Search(len(c), func(i int) bool { return c[i] >= cell })
	return i < len(c) && c[i] == cell
}
