package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"HexCollector-App/internal/domain/model"
)

// Config アプリケーション全体の設定
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Places     PlacesConfig     `toml:"places"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Collection CollectionConfig `toml:"collection"`
	Sink       SinkConfig       `toml:"sink"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

// PlacesConfig Google Places Nearby Search の設定
type PlacesConfig struct {
	APIKey         string        `toml:"api_key"`
	BaseURL        string        `toml:"base_url" validate:"required,url"`
	Keywords       []string      `toml:"keywords"`
	RadiusMeters   int           `toml:"radius_meters" validate:"min=1,max=50000"`
	PageDelay      time.Duration `toml:"page_delay" validate:"min=0"`
	MaxPages       int           `toml:"max_pages" validate:"min=1"`
	RequestTimeout time.Duration `toml:"request_timeout" validate:"min=0"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	MaxConcurrent     int     `toml:"max_concurrent" validate:"min=1"`
}

// CollectionConfig 収集対象と実行方法の設定
type CollectionConfig struct {
	Resolution        int                `toml:"resolution" validate:"min=0,max=15"`
	RegionName        string             `toml:"region_name"`
	RegionFile        string             `toml:"region_file"` // GeoJSONファイル
	BoundingBox       *model.BoundingBox `toml:"bounding_box"`
	Cities            []model.CityCenter `toml:"cities"`
	TestModeThreshold int                `toml:"test_mode_threshold" validate:"min=0"`
	Workers           int                `toml:"workers" validate:"min=1"`
	Schedule          string             `toml:"schedule"` // cron式（空の場合は無効）
}

// SinkConfig 永続化先の設定
type SinkConfig struct {
	Kinds                   []string `toml:"kinds" validate:"min=1,dive,oneof=firestore postgres supabase badger file"`
	FirestoreProjectID      string   `toml:"firestore_project_id"`
	FirestoreCredentials    string   `toml:"firestore_credentials"`
	FirestoreCollection     string   `toml:"firestore_collection"`
	FirestoreRunsCollection string   `toml:"firestore_runs_collection"`
	PostgresDSN             string   `toml:"postgres_dsn"`
	SupabaseURL             string   `toml:"supabase_url"`
	SupabaseKey             string   `toml:"supabase_key"`
	SupabaseDBPassword      string   `toml:"supabase_db_password"` // postgres接続文字列の組み立て用
	SupabaseTable           string   `toml:"supabase_table"`
	BadgerPath              string   `toml:"badger_path"`
	ResultsDir              string   `toml:"results_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Default デフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Places: PlacesConfig{
			BaseURL:        "https://maps.googleapis.com/maps/api/place/nearbysearch/json",
			Keywords:       append([]string(nil), model.DefaultSearchKeywords...),
			RadiusMeters:   model.DefaultSearchRadius,
			PageDelay:      model.DefaultPageDelay,
			MaxPages:       model.DefaultMaxPages,
			RequestTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: model.DefaultRequestsPerSecond,
			MaxConcurrent:     model.DefaultMaxConcurrent,
		},
		Collection: CollectionConfig{
			Resolution:        model.DefaultResolution,
			RegionName:        "default",
			TestModeThreshold: model.DefaultTestModeThreshold,
			Workers:           model.DefaultWorkers,
		},
		Sink: SinkConfig{
			Kinds:                   []string{model.SinkFile},
			FirestoreCollection:     "places",
			FirestoreRunsCollection: "collectionRuns",
			SupabaseTable:           "places",
			BadgerPath:              "./data/badger",
			ResultsDir:              "./data/results",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load 設定を読み込む
// デフォルト → TOMLファイル（存在する場合）→ .env / 環境変数 の順に上書きする
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 設定ファイルは任意
		default:
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	// .envが無い環境ではシステムの環境変数のみを使う
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 設定値を検証する
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("設定値の検証失敗: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Places.APIKey, "GOOGLE_MAPS_API_KEY")
	setString(&c.Places.BaseURL, "PLACES_BASE_URL")
	setString(&c.Collection.RegionFile, "REGION_FILE")
	setString(&c.Collection.RegionName, "REGION_NAME")
	setString(&c.Collection.Schedule, "COLLECTION_SCHEDULE")
	setString(&c.Sink.FirestoreProjectID, "FIRESTORE_PROJECT_ID")
	setString(&c.Sink.FirestoreCredentials, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Sink.PostgresDSN, "DATABASE_URL")
	setString(&c.Sink.SupabaseURL, "SUPABASE_URL")
	setString(&c.Sink.SupabaseKey, "SUPABASE_ANON_KEY")
	setString(&c.Sink.SupabaseDBPassword, "SUPABASE_DB_PASSWORD")
	setString(&c.Sink.BadgerPath, "BADGER_PATH")
	setString(&c.Sink.ResultsDir, "RESULTS_DIR")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("SEARCH_KEYWORDS"); v != "" {
		c.Places.Keywords = splitList(v)
	}
	if v := os.Getenv("SINKS"); v != "" {
		c.Sink.Kinds = splitList(v)
	}

	var err error
	if c.Server.Port, err = intEnv("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Collection.Resolution, err = intEnv("HEXAGON_RESOLUTION", c.Collection.Resolution); err != nil {
		return err
	}
	if c.Collection.Workers, err = intEnv("COLLECTION_WORKERS", c.Collection.Workers); err != nil {
		return err
	}
	if c.RateLimit.MaxConcurrent, err = intEnv("MAX_CONCURRENT_REQUESTS", c.RateLimit.MaxConcurrent); err != nil {
		return err
	}
	if v := os.Getenv("REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("REQUESTS_PER_SECONDの値が不正です: %w", err)
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	if c.Places.PageDelay, err = durationEnv("PAGE_DELAY", c.Places.PageDelay); err != nil {
		return err
	}
	if c.Places.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", c.Places.RequestTimeout); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return n, nil
}

// durationEnv は "2s" のようなGoの期間表記を受け付ける
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
