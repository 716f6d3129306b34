package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

// DefaultNearbySearchURL はGoogle Places Nearby Search APIのエンドポイント
const DefaultNearbySearchURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// ProviderStatusError はAPIが OK / ZERO_RESULTS 以外のステータスを返した場合のエラー
type ProviderStatusError struct {
	Status  string
	Message string
}

func (e *ProviderStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Places APIエラー: %s (%s)", e.Status, e.Message)
	}
	return fmt.Sprintf("Places APIエラー: %s", e.Status)
}

// GooglePlacesProvider はGoogle Places Nearby Search APIを使ったスポット検索の実装
type GooglePlacesProvider struct {
	apiKey     string
	baseURL    string
	keywords   []string
	httpClient *http.Client
	pageDelay  time.Duration
	maxPages   int
	logger     *log.Logger
}

var _ repository.PlaceSearchRepository = (*GooglePlacesProvider)(nil)

// ProviderOption はGooglePlacesProviderの設定
type ProviderOption func(*GooglePlacesProvider)

// WithBaseURL はエンドポイントを差し替える
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *GooglePlacesProvider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *GooglePlacesProvider) {
		p.httpClient = httpClient
	}
}

// WithKeywords は検索キーワードを設定する
func WithKeywords(keywords []string) ProviderOption {
	return func(p *GooglePlacesProvider) {
		p.keywords = keywords
	}
}

// WithPageDelay は次ページ取得前の待機時間を設定する
func WithPageDelay(delay time.Duration) ProviderOption {
	return func(p *GooglePlacesProvider) {
		p.pageDelay = delay
	}
}

// WithMaxPages は1クエリあたりの最大ページ数を設定する
func WithMaxPages(maxPages int) ProviderOption {
	return func(p *GooglePlacesProvider) {
		if maxPages > 0 {
			p.maxPages = maxPages
		}
	}
}

// WithLogger はロガーを設定する
func WithLogger(l *log.Logger) ProviderOption {
	return func(p *GooglePlacesProvider) {
		p.logger = l
	}
}

// NewGooglePlacesProvider は新しいプロバイダを生成する
func NewGooglePlacesProvider(apiKey string, opts ...ProviderOption) *GooglePlacesProvider {
	p := &GooglePlacesProvider{
		apiKey:     apiKey,
		baseURL:    DefaultNearbySearchURL,
		keywords:   model.DefaultSearchKeywords,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		pageDelay:  model.DefaultPageDelay,
		maxPages:   model.DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrDefault(p.logger)
	return p
}

// SearchPage はNearby Search APIを1ページ分呼び出す
func (p *GooglePlacesProvider) SearchPage(ctx context.Context, center model.LatLng, radiusMeters int, pageToken string) (*model.SearchPage, error) {
	// 1. APIリクエストURLを構築
	reqURL := p.buildURL(center, radiusMeters, pageToken)

	// 2. HTTPリクエストを作成・実行
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	p.logger.Debug().
		Float64("lat", center.Lat).
		Float64("lng", center.Lng).
		Bool("has_page_token", pageToken != "").
		Msg("Places APIリクエスト")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("APIリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("APIからエラーステータスが返されました: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	// 3. JSONレスポンスをパース
	var apiResp nearbySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("JSONのパースに失敗: %w", err)
	}

	// 4. ステータスを判定（OK / ZERO_RESULTS 以外はエラー）
	if apiResp.Status != model.ProviderStatusOK && apiResp.Status != model.ProviderStatusZeroResults {
		p.logger.Error().
			Str("status", apiResp.Status).
			Str("error_message", apiResp.ErrorMessage).
			Msg("❌ Places APIエラー")
		return nil, &ProviderStatusError{Status: apiResp.Status, Message: apiResp.ErrorMessage}
	}

	results := apiResp.Results
	if results == nil {
		results = []model.RawPlace{}
	}
	return &model.SearchPage{
		Results:       results,
		NextPageToken: apiResp.NextPageToken,
		Status:        apiResp.Status,
	}, nil
}

// SearchAll は次ページトークンが無くなるか最大ページ数に達するまで全ページを取得する
// 発行直後のトークンは使えないため、2ページ目以降は取得前にpageDelayだけ待つ
func (p *GooglePlacesProvider) SearchAll(ctx context.Context, center model.LatLng, radiusMeters int) ([]model.RawPlace, error) {
	var allResults []model.RawPlace
	pageToken := ""

	for page := 1; page <= p.maxPages; page++ {
		if pageToken != "" {
			if err := sleepContext(ctx, p.pageDelay); err != nil {
				return nil, fmt.Errorf("次ページの待機を中断: %w", err)
			}
		}

		result, err := p.SearchPage(ctx, center, radiusMeters, pageToken)
		if err != nil {
			return nil, fmt.Errorf("%dページ目の取得に失敗: %w", page, err)
		}
		allResults = append(allResults, result.Results...)

		p.logger.Debug().
			Int("page", page).
			Int("results", len(result.Results)).
			Msg("ページを取得")

		if !result.HasNextPage() {
			break
		}
		pageToken = result.NextPageToken
	}

	p.logger.Info().
		Float64("lat", center.Lat).
		Float64("lng", center.Lng).
		Int("radius", radiusMeters).
		Int("results", len(allResults)).
		Msg("📍 地点の検索が完了")

	return allResults, nil
}

func (p *GooglePlacesProvider) buildURL(center model.LatLng, radiusMeters int, pageToken string) string {
	params := url.Values{}
	if pageToken != "" {
		// トークン利用時は検索条件を混ぜると拒否される
		params.Set("pagetoken", pageToken)
	} else {
		params.Set("location", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
		params.Set("radius", fmt.Sprintf("%d", radiusMeters))
		if len(p.keywords) > 0 {
			params.Set("keyword", strings.Join(p.keywords, " "))
		}
	}
	params.Set("key", p.apiKey)

	return fmt.Sprintf("%s?%s", p.baseURL, params.Encode())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// --- Places APIのレスポンスをパースするための構造体 ---

type nearbySearchResponse struct {
	Results       []model.RawPlace `json:"results"`
	Status        string           `json:"status"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}
