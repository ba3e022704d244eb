package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/jitter"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"golang.org/x/time/rate"
)

const defaultPageSize = 1000

// errRetryable помечает ответы, после которых имеет смысл повторить запрос.
var errRetryable = errors.New("retryable upstream response")

// Client читает справочник товаров ERP постранично, с ограничением частоты запросов.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	pageSize   int
	maxRetries int
	limiter    *rate.Limiter
	logger     logger.Logger

	backoffBase time.Duration
	backoffMax  time.Duration
}

func NewClient(cfg *cfg.ERPCfg, logger logger.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		pageSize:    pageSize,
		maxRetries:  maxRetries,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  10 * time.Second,
	}
}

type productPage struct {
	Meta struct {
		Size int `json:"size"`
	} `json:"meta"`
	Rows []productRow `json:"rows"`
}

type productRow struct {
	Article string `json:"article"`
	Code    string `json:"code"`
}

// ArticleCodes выполняет полный обход товаров ERP и возвращает соответствие артикул → код.
// Если ERP не настроена, возвращается пустой справочник.
func (c *Client) ArticleCodes(ctx context.Context) (map[string]string, error) {
	const op = "erp.Client.ArticleCodes"

	codes := make(map[string]string)
	if c.baseURL == "" || c.token == "" {
		c.logger.Warnf("erp is not configured, article codes are unavailable")
		return codes, nil
	}

	start := time.Now()
	for offset := 0; ; offset += c.pageSize {
		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, e.Upstream(op, err)
		}

		for _, row := range page.Rows {
			article := strings.TrimSpace(row.Article)
			code := strings.TrimSpace(row.Code)
			if article == "" || code == "" {
				continue
			}
			if _, ok := codes[article]; !ok {
				codes[article] = code
			}
		}

		// meta.size необязателен: без него конец выборки определяет только неполная страница
		if len(page.Rows) < c.pageSize || (page.Meta.Size > 0 && offset+len(page.Rows) >= page.Meta.Size) {
			break
		}
	}

	c.logger.Infof("erp scan finished: %d article codes in %v", len(codes), time.Since(start))
	return codes, nil
}

// fetchPage запрашивает одну страницу с повторами и экспоненциальной задержкой.
func (c *Client) fetchPage(ctx context.Context, offset int) (*productPage, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.doFetchPage(ctx, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !errors.Is(err, errRetryable) || attempt == c.maxRetries-1 {
			break
		}

		sleep := jitter.ExponentialBackoff(c.backoffBase, c.backoffMax, attempt, jitter.DefaultJitter)
		c.logger.Warnf("erp page offset=%d failed, retrying in %v (attempt %d): %v", offset, sleep, attempt+1, err)
		if err := jitter.Sleep(ctx, sleep); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) doFetchPage(ctx context.Context, offset int) (*productPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/entity/product?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s", errRetryable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %s", resp.Status)
	}

	var page productPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode product page: %w", err)
	}

	return &page, nil
}
