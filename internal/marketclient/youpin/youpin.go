// Package youpin implements the Marketplace Client (spec §4.1) against
// Youpin898 (Market-B): a POST endpoint carrying
// {listSortType, sortType, pageSize, pageIndex} and returning {Data: [...]}.
// Youpin898 does not reliably report a total-page count, so end-of-catalog
// is signalled by an empty page body (spec §4.1 step 6).
package youpin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/skinmarket/internal/breaker"
	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/marketclient"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/ratelimit"
)

// DefaultBaseURL mirrors config.py's YOUPIN_BASE_URL.
const DefaultBaseURL = "https://www.youpin898.com"

type pageRequest struct {
	ListSortType int `json:"listSortType"`
	SortType     int `json:"sortType"`
	PageSize     int `json:"pageSize"`
	PageIndex    int `json:"pageIndex"`
}

type searchRequest struct {
	pageRequest
	Keyword string `json:"keyWord"`
}

type response struct {
	Data []item `json:"Data"`
}

type item struct {
	CommodityID       int64  `json:"commodityId"`
	CommodityName     string `json:"commodityName"`
	CommodityHashName string `json:"commodityHashName"`
	Price             string `json:"price"`
}

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

	items := make([]model.Item, 0, len(body.Data))
	now := time.Now()
	for _, it := range body.Data {
		if it.CommodityHashName == "" {
			return nil, 0, &marketclient.Failure{Class: marketclient.ErrMalformedResponse, Err: fmt.Errorf("commodity %d missing commodityHashName", it.CommodityID)}
		}
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return nil, 0, &marketclient.Failure{Class: marketclient.ErrMalformedResponse, Err: err}
		}
		items = append(items, model.Item{
			Platform:      model.PlatformB,
			NativeID:      fmt.Sprintf("%d", it.CommodityID),
			DisplayName:   it.CommodityName,
			CanonicalName: it.CommodityHashName,
			Price:         price,
			CapturedAt:    now,
		})
	}
	// Youpin898 never reports a reliable page count (totalPages=0);
	// FetchAllPages relies on the empty-page sentinel instead.
	return items, 0, nil
}

// New builds a Marketplace Client for Youpin898.
func New(httpClient *http.Client, gate *ratelimit.Gate, credStore *credentials.Store, baseURL string) *marketclient.Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &fetcher{httpClient: httpClient}

	encode := func(v any) (*bytes.Reader, error) {
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(buf), nil
	}

	return &marketclient.Client{
		Platform:             model.PlatformB,
		HTTPClient:           httpClient,
		Gate:                 gate,
		Breaker:              breaker.New(model.PlatformB),
		Credentials:          credStore,
		Retry:                marketclient.DefaultRetryConfig(),
		Fetcher:              f,
		EmptyPageEndsCatalog: true,
		BuildPageRequest: func(ctx context.Context, pageIndex, pageSize int) (*http.Request, error) {
			body, err := encode(pageRequest{PageSize: pageSize, PageIndex: pageIndex})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/homepage/v3/shop/listing", body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
		BuildSearchRequest: func(ctx context.Context, keyword string) (*http.Request, error) {
			body, err := encode(searchRequest{pageRequest: pageRequest{PageSize: 100, PageIndex: 1}, Keyword: keyword})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/homepage/v3/shop/search", body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
	}
}
