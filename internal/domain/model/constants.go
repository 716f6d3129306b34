package model

import "time"

// 収集処理のデフォルト値
const (
	DefaultResolution        = 5               // H3解像度
	DefaultSearchRadius      = 5000            // 検索半径（メートル）
	DefaultRequestsPerSecond = 10.0            // 1秒あたりのリクエスト上限
	DefaultMaxConcurrent     = 5               // 同時実行数の上限
	DefaultMaxPages          = 100             // 1クエリあたりの最大ページ数
	DefaultPageDelay         = 2 * time.Second // 次ページトークンが有効になるまでの待機
	DefaultTestModeThreshold = 50              // テストモードで打ち切る結果件数
	DefaultWorkers           = 1               // 同時に取得するセル数
)

// DefaultSearchKeywords 検索キーワードのデフォルト
var DefaultSearchKeywords = []string{"salon", "hair", "beauty", "barber"}

// Sink種別
const (
	SinkFirestore = "firestore"
	SinkPostgres  = "postgres"
	SinkSupabase  = "supabase"
	SinkBadger    = "badger"
	SinkFile      = "file"
)

// GetAllSinks は対応しているSink種別の一覧を取得する
func GetAllSinks() []string {
	return []string{
		SinkFirestore,
		SinkPostgres,
		SinkSupabase,
		SinkBadger,
		SinkFile,
	}
}

// IsSupportedSink はSink種別が対応しているかどうかを判定する
func IsSupportedSink(kind string) bool {
	for _, s := range GetAllSinks() {
		if s == kind {
			return true
		}
	}
	return false
}
