// Package buff implements the Marketplace Client (spec §4.1) against
// Buff163 (Market-A): a GET `market/goods` endpoint returning
// `data.items[]`, `data.total_page`, `data.total_count`.
package buff

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/skinmarket/internal/breaker"
	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/marketclient"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/ratelimit"
)

// DefaultBaseURL mirrors config.py's BUFF_BASE_URL.
const DefaultBaseURL = "https://buff.163.com"

type response struct {
	Data struct {
		Items      []item `json:"items"`
		TotalPage  int    `json:"total_page"`
		TotalCount int    `json:"total_count"`
	} `json:"data"`
}

type item struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	SellMinPrice   string `json:"sell_min_price"`
	SellNum        int    `json:"sell_num"`
	GoodsInfo      struct {
		IconURL string `json:"icon_url"`
	} `json:"goods_info"`
	Category string `json:"category"`
}

// fetcher decodes Buff163's response body per the marketclient.PageFetcher
// contract.
type fetcher struct{ httpClient *http.Client }

func (f *fetcher) FetchPage(ctx context.Context, req *http.Request) ([]model.Item, int, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrAuthFailed, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrRateLimitedPersistent, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrTransport, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrTransport, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, &marketclient.Failure{Class: marketclient.ErrMalformedResponse, Err: err}
	}

	items := make([]model.Item, 0, len(body.Data.Items))
	now := time.Now()
	for _, it := range body.Data.Items {
		if it.MarketHashName == "" {
			return nil, 0, &marketclient.Failure{Class: marketclient.ErrMalformedResponse, Err: fmt.Errorf("item %s missing market_hash_name", it.ID)}
		}
		price, err := decimal.NewFromString(it.SellMinPrice)
		if err != nil {
			return nil, 0, &marketclient.Failure{Class: marketclient.ErrMalformedResponse, Err: err}
		}
		items = append(items, model.Item{
			Platform:      model.PlatformA,
			NativeID:      it.ID,
			DisplayName:   it.Name,
			CanonicalName: it.MarketHashName,
			Price:         price,
			ListingCount:  it.SellNum,
			ImageURL:      it.GoodsInfo.IconURL,
			Category:      it.Category,
			CapturedAt:    now,
		})
	}
	return items, body.Data.TotalPage, nil
}

// New builds a Marketplace Client for Buff163.
func New(httpClient *http.Client, gate *ratelimit.Gate, credStore *credentials.Store, baseURL string) *marketclient.Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &fetcher{httpClient: httpClient}

	return &marketclient.Client{
		Platform:    model.PlatformA,
		HTTPClient:  httpClient,
		Gate:        gate,
		Breaker:     breaker.New(model.PlatformA),
		Credentials: credStore,
		Retry:       marketclient.DefaultRetryConfig(),
		Fetcher:     f,
		BuildPageRequest: func(ctx context.Context, pageIndex, pageSize int) (*http.Request, error) {
			q := url.Values{}
			q.Set("page_num", strconv.Itoa(pageIndex))
			q.Set("page_size", strconv.Itoa(pageSize))
			q.Set("tab", "selling")
			q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10)) // cache-buster
			reqURL := baseURL + "/api/market/goods?" + q.Encode()
			return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		},
		BuildSearchRequest: func(ctx context.Context, keyword string) (*http.Request, error) {
			q := url.Values{}
			q.Set("page_num", "1")
			q.Set("page_size", "80")
			q.Set("tab", "selling")
			q.Set("search", keyword)
			reqURL := baseURL + "/api/market/goods?" + q.Encode()
			return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		},
	}
}
