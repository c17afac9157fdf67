package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabasePath      string     `json:"databasePath" mapstructure:"databasePath" validate:"required"`
	ListenAddr        string     `json:"listenAddr" mapstructure:"listenAddr"`
	CutoffDate        string     `json:"cutoffDate" mapstructure:"cutoffDate" validate:"omitempty,datetime=2006-01-02"`
	DefaultWindowDays int        `json:"defaultWindowDays" mapstructure:"defaultWindowDays" validate:"gte=0"`
	LogLevel          string     `json:"logLevel" mapstructure:"logLevel" validate:"omitempty,oneof=trace debug info warn warning error"`
	EJ                EJConfig   `json:"ej" mapstructure:"ej"`
	RBOM              RBOMConfig `json:"rbom" mapstructure:"rbom"`
}

// EJConfig は EJ 発注残の取得元です。mode が sql の場合は database/sql、csv の場合は出力ファイルを読みます。
type EJConfig struct {
	Mode        string `json:"mode" mapstructure:"mode" validate:"oneof=sql csv"`
	Driver      string `json:"driver" mapstructure:"driver"`
	DSN         string `json:"dsn" mapstructure:"dsn"`
	Query       string `json:"query" mapstructure:"query"`
	CSVPath     string `json:"csvPath" mapstructure:"csvPath"`
	CSVShiftJIS bool   `json:"csvShiftJIS" mapstructure:"csvShiftJIS"`
}

type RBOMConfig struct {
	BaseURL         string `json:"baseURL" mapstructure:"baseURL" validate:"omitempty,url"`
	APIKey          string `json:"apiKey" mapstructure:"apiKey"`
	TimeoutSeconds  int    `json:"timeoutSeconds" mapstructure:"timeoutSeconds" validate:"gte=0"`
	CacheTTLMinutes int    `json:"cacheTTLMinutes" mapstructure:"cacheTTLMinutes" validate:"gte=0"`
	CacheSize       int    `json:"cacheSize" mapstructure:"cacheSize" validate:"gte=0"`
}

var (
	cfg Config
	mu  sync.RWMutex

	configFilePath = "./ejrbom_config.json"
	validate       = validator.New()
)

// SetConfigFilePath は設定ファイルの場所を変更します。
func SetConfigFilePath(path string) {
	mu.Lock()
	defer mu.Unlock()
	configFilePath = path
}

func defaults() Config {
	return Config{
		DatabasePath:      "./ejrbom.db",
		ListenAddr:        ":8080",
		CutoffDate:        "2025-07-01",
		DefaultWindowDays: 90,
		LogLevel:          "info",
		EJ: EJConfig{
			Mode:        "csv",
			CSVPath:     "./ej_backlog.csv",
			CSVShiftJIS: true,
		},
		RBOM: RBOMConfig{
			TimeoutSeconds:  30,
			CacheTTLMinutes: 10,
			CacheSize:       24,
		},
	}
}

// LoadConfig は .env・設定ファイル・環境変数の順に読み込みます。設定ファイルが無い場合は既定値を使います。
func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	_ = godotenv.Load()

	d := defaults()
	v := viper.New()
	v.SetConfigFile(configFilePath)
	v.SetConfigType("json")
	setDefaults(v, d)

	if _, err := os.Stat(configFilePath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", configFilePath, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	var tempCfg Config
	if err := v.Unmarshal(&tempCfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	overrideFromEnv(&tempCfg)
	fillZero(&tempCfg, d)

	cfg = tempCfg
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("databasePath", d.DatabasePath)
	v.SetDefault("listenAddr", d.ListenAddr)
	v.SetDefault("cutoffDate", d.CutoffDate)
	v.SetDefault("defaultWindowDays", d.DefaultWindowDays)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("ej.mode", d.EJ.Mode)
	v.SetDefault("ej.csvPath", d.EJ.CSVPath)
	v.SetDefault("ej.csvShiftJIS", d.EJ.CSVShiftJIS)
	v.SetDefault("rbom.timeoutSeconds", d.RBOM.TimeoutSeconds)
	v.SetDefault("rbom.cacheTTLMinutes", d.RBOM.CacheTTLMinutes)
	v.SetDefault("rbom.cacheSize", d.RBOM.CacheSize)
}

// overrideFromEnv は接続情報を環境変数で上書きします（環境変数 > 設定ファイル）。
func overrideFromEnv(c *Config) {
	if v := os.Getenv("MAPPING_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EJ_SOURCE"); v != "" {
		c.EJ.Mode = v
	}
	if v := os.Getenv("EJ_DB_DRIVER"); v != "" {
		c.EJ.Driver = v
	}
	if v := os.Getenv("EJ_DB_DSN"); v != "" {
		c.EJ.DSN = v
	}
	if v := os.Getenv("EJ_CSV_PATH"); v != "" {
		c.EJ.CSVPath = v
	}
	if v := os.Getenv("RBOM_BASE_URL"); v != "" {
		c.RBOM.BaseURL = v
	}
	if v := os.Getenv("RBOM_API_KEY"); v != "" {
		c.RBOM.APIKey = v
	}
}

func fillZero(c *Config, d Config) {
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.CutoffDate == "" {
		c.CutoffDate = d.CutoffDate
	}
	if c.DefaultWindowDays == 0 {
		c.DefaultWindowDays = d.DefaultWindowDays
	}
	if c.EJ.Mode == "" {
		c.EJ.Mode = d.EJ.Mode
	}
}

// Validate は設定値を検査します。
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.EJ.Mode == "sql" && (c.EJ.Driver == "" || c.EJ.DSN == "") {
		return fmt.Errorf("invalid config: ej.driver and ej.dsn are required when ej.mode is sql")
	}
	return nil
}

// Cutoff は EJ 発注残の抽出下限日を返します。
func (c Config) Cutoff() (time.Time, error) {
	return time.Parse("2006-01-02", c.CutoffDate)
}

// CacheTTL は rBOM の月単位キャッシュの有効期間です。0 の場合はキャッシュしません。
func (c RBOMConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	fillZero(&newCfg, defaults())
	if err := newCfg.Validate(); err != nil {
		return err
	}

	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
