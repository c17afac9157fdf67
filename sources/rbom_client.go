package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ejrbom/model"
	"ejrbom/parsers"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// RBOMConfig は rBOM API への接続設定です。
type RBOMConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	CacheSize      int
	CacheTTL       time.Duration
}

// RBOMClient は rBOM の /orders/ API から発注明細を取得します。
// 月単位の応答は CacheTTL の間キャッシュされます。
type RBOMClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      *expirable.LRU[string, []model.OrderDetailRecord]
	logger     *logrus.Logger
}

func NewRBOMClient(cfg RBOMConfig, logger *logrus.Logger) *RBOMClient {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 24
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &RBOMClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/orders/",
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, []model.OrderDetailRecord](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c
}

// GetOrders は指定年月の発注明細を取得します。
func (c *RBOMClient) GetOrders(ctx context.Context, year int, month time.Month) ([]model.OrderDetailRecord, error) {
	key := YearMonth{Year: year, Month: month}.String()
	if c.cache != nil {
		if recs, ok := c.cache.Get(key); ok {
			c.logger.WithField("month", key).Debug("rBOM orders served from cache")
			return recs, nil
		}
	}

	recs, err := c.fetch(ctx, year, month)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(key, recs)
	}
	return recs, nil
}

func (c *RBOMClient) fetch(ctx context.Context, year int, month time.Month) ([]model.OrderDetailRecord, error) {
	params := url.Values{}
	params.Set("year", strconv.Itoa(year))
	params.Set("month", strconv.Itoa(int(month)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rBOM request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: rBOMシステムAPIへのリクエストに失敗しました (%d/%d): %w", ErrSourceUnavailable, year, int(month), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("rBOM レスポンスのクローズに失敗: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: rBOM API returned %d for %d/%d: %s", ErrSourceUnavailable, resp.StatusCode, year, int(month), strings.TrimSpace(string(body)))
	}

	recs, err := parsers.ParseRBOMOrders(resp.Body, c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: rBOMシステムからのレスポンス解析に失敗しました: %w", ErrSourceUnavailable, err)
	}

	c.logger.WithFields(logrus.Fields{"year": year, "month": int(month), "records": len(recs)}).Info("rBOM orders fetched")
	return recs, nil
}

// FetchOrderDetails は範囲にかかる暦月を順に取得し、納期で絞り込みます。
// 納期が無い、または解釈できない明細は残します。いずれかの月の取得に失敗した場合はエラーを返します。
func (c *RBOMClient) FetchOrderDetails(ctx context.Context, r DateRange) ([]model.OrderDetailRecord, error) {
	if err := r.Validate(time.Time{}); err != nil {
		return nil, err
	}

	all := []model.OrderDetailRecord{}
	for _, ym := range r.Months() {
		recs, err := c.GetOrders(ctx, ym.Year, ym.Month)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch rBOM orders for %s: %w", ym, err)
		}
		for _, rec := range recs {
			if r.ContainsDate(rec.DeliveryDate) {
				all = append(all, rec)
			}
		}
	}
	return all, nil
}

// Ping は rBOM API に当月分を問い合わせて疎通を確認します。キャッシュは使いません。
func (c *RBOMClient) Ping(ctx context.Context) error {
	now := time.Now()
	_, err := c.fetch(ctx, now.Year(), now.Month())
	return err
}

// PurgeCache は月単位のキャッシュを破棄します。
func (c *RBOMClient) PurgeCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
