// Package douban is the client for the regional metadata source. It resolves
// media to a regional subject, lists its localized cast, and digs IMDb ids
// out of celebrity detail pages.
package douban

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sydlexius/playbill/internal/provider"
)

const (
	defaultFrodoURL = "https://frodo.douban.com/api/v2"
	defaultV2URL    = "https://api.douban.com/v2"

	frodoKey    = "0dad551ec0f84ed02907ff5c42e8ec70"
	frodoSecret = "bf7dddc7c9cfe6f7"
	v2Key       = "0ab215a8b1977939201640fa14c66bab"

	// rateLimitCode is the API's own throttling signal, returned inside an
	// otherwise successful response body.
	rateLimitCode = 1080
)

var userAgents = []string{
	"api-client/1 com.douban.frodo/7.22.0.beta9(231) Android/23 product/Mate 40 vendor/HUAWEI model/Mate 40 brand/HUAWEI  rom/android  network/wifi  platform/AndroidPad",
	"api-client/1 com.douban.frodo/7.18.0(230) Android/22 product/MI 9 vendor/Xiaomi model/MI 9 brand/Android  rom/miui6  network/wifi  platform/mobile nd/1",
}

// Subject is a matched regional media entry.
type Subject struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Celebrity is one cast entry from the regional source.
type Celebrity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LatinName string `json:"latin_name"`
	Character string `json:"character"`
}

// Client talks to the regional source API.
type Client struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	logger   *slog.Logger
	frodoURL string
	v2URL    string
	ua       int
}

// New creates a client with the default endpoints.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Client {
	return NewWithBaseURLs(limiter, logger, defaultFrodoURL, defaultV2URL)
}

// NewWithBaseURLs creates a client with custom endpoints (for testing).
func NewWithBaseURLs(limiter *provider.RateLimiterMap, logger *slog.Logger, frodoURL, v2URL string) *Client {
	return &Client{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
		logger:   logger.With(slog.String("provider", "douban")),
		frodoURL: strings.TrimRight(frodoURL, "/"),
		v2URL:    strings.TrimRight(v2URL, "/"),
	}
}

// sign produces the request signature the mobile API expects.
func sign(reqURL, ts, method string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return ""
	}
	raw := strings.Join([]string{strings.ToUpper(method), url.QueryEscape(u.Path), ts}, "&")
	mac := hmac.New(sha1.New, []byte(frodoSecret))
	mac.Write([]byte(raw))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// MatchTitle resolves media to a regional subject. When an external id is
// available it is tried first; otherwise the title search result whose type
// matches is used.
func (c *Client) MatchTitle(ctx context.Context, title string, year int, externalID string, mediaType provider.MediaType) (*Subject, error) {
	if externalID != "" && strings.HasPrefix(externalID, "tt") {
		subject, err := c.byExternalID(ctx, externalID)
		if err == nil && subject != nil {
			return subject, nil
		}
		var notFound *provider.ErrNotFound
		if err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return c.searchByTitle(ctx, title, year, mediaType)
}

type imdbLookupResponse struct {
	apiError
	ID      string `json:"id"`
	Title   string `json:"title"`
	AltID   string `json:"alt"`
	Subtype string `json:"subtype"`
}

func (c *Client) byExternalID(ctx context.Context, externalID string) (*Subject, error) {
	body, err := c.postV2(ctx, "/movie/imdb/"+url.PathEscape(externalID))
	if err != nil {
		return nil, err
	}
	var resp imdbLookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing imdb lookup: %w", err)
	}
	if resp.Code != 0 || resp.ID == "" {
		return nil, &provider.ErrNotFound{Provider: provider.NameDouban, ID: externalID}
	}
	// The v2 endpoint returns ids as URLs like ".../movie/1292052".
	id := resp.ID
	if i := strings.LastIndexByte(strings.TrimRight(id, "/"), '/'); i >= 0 {
		id = strings.TrimRight(id, "/")[i+1:]
	}
	return &Subject{ID: id, Title: resp.Title, Type: resp.Subtype}, nil
}

type searchResponse struct {
	apiError
	Items []struct {
		TargetType string `json:"target_type"`
		Target     struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Year  string `json:"year"`
		} `json:"target"`
	} `json:"items"`
}

func (c *Client) searchByTitle(ctx context.Context, title string, year int, mediaType provider.MediaType) (*Subject, error) {
	wantType := "movie"
	if mediaType == provider.MediaSeries {
		wantType = "tv"
	}
	body, err := c.getFrodo(ctx, "/search/weixin", url.Values{"q": {title}, "count": {"20"}})
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	if err := resp.apiError.check(title); err != nil {
		return nil, err
	}
	for _, item := range resp.Items {
		if item.TargetType != wantType {
			continue
		}
		if year > 0 && item.Target.Year != "" && item.Target.Year != fmt.Sprint(year) {
			continue
		}
		return &Subject{ID: item.Target.ID, Title: item.Target.Title, Type: item.TargetType}, nil
	}
	return nil, &provider.ErrNotFound{Provider: provider.NameDouban, ID: title}
}

type celebritiesResponse struct {
	apiError
	Celebrities []Celebrity `json:"celebrities"`
	Actors      []Celebrity `json:"actors"`
}

// Cast lists the localized cast of a regional subject.
func (c *Client) Cast(ctx context.Context, subjectID string, mediaType provider.MediaType) ([]Celebrity, error) {
	kind := "movie"
	if mediaType == provider.MediaSeries {
		kind = "tv"
	}
	body, err := c.getFrodo(ctx, "/"+kind+"/"+url.PathEscape(subjectID)+"/celebrities", nil)
	if err != nil {
		return nil, err
	}
	var resp celebritiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing celebrities: %w", err)
	}
	if err := resp.apiError.check(subjectID); err != nil {
		return nil, err
	}
	if len(resp.Celebrities) > 0 {
		return resp.Celebrities, nil
	}
	return resp.Actors, nil
}

type celebrityDetailResponse struct {
	apiError
	ID    string `json:"id"`
	Extra struct {
		Info [][]string `json:"info"`
	} `json:"extra"`
}

// PersonExternalID fetches a celebrity's detail page and extracts the IMDb
// id from its info table. Returns ErrNotFound when the page carries none.
func (c *Client) PersonExternalID(ctx context.Context, celebrityID string) (string, error) {
	body, err := c.getFrodo(ctx, "/celebrity/"+url.PathEscape(celebrityID), nil)
	if err != nil {
		return "", err
	}
	var resp celebrityDetailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing celebrity detail: %w", err)
	}
	if err := resp.apiError.check(celebrityID); err != nil {
		return "", err
	}
	for _, pair := range resp.Extra.Info {
		if len(pair) == 2 && pair[0] == "IMDb编号" {
			return strings.TrimSpace(pair[1]), nil
		}
	}
	return "", &provider.ErrNotFound{Provider: provider.NameDouban, ID: celebrityID}
}

func (e *apiError) check(id string) error {
	switch {
	case e.Code == rateLimitCode:
		return &provider.ErrProviderUnavailable{
			Provider:   provider.NameDouban,
			Cause:      fmt.Errorf("rate limited: %s", e.Msg),
			RetryAfter: time.Minute,
		}
	case e.Code != 0:
		return &provider.ErrNotFound{Provider: provider.NameDouban, ID: id}
	}
	return nil
}

func (c *Client) getFrodo(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, provider.NameDouban); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDouban,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}
	if params == nil {
		params = url.Values{}
	}
	reqURL := c.frodoURL + path
	ts := time.Now().Format("20060102")
	params.Set("apiKey", frodoKey)
	params.Set("os_rom", "android")
	params.Set("_ts", ts)
	params.Set("_sig", sign(reqURL, ts, http.MethodGet))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, path)
}

func (c *Client) postV2(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, provider.NameDouban); err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDouban,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}
	form := url.Values{"apikey": {v2Key}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.v2URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	c.ua = (c.ua + 1) % len(userAgents)
	req.Header.Set("User-Agent", userAgents[c.ua])

	c.logger.Debug("requesting", slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: provider.NameDouban, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameDouban, ID: path}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider: provider.NameDouban,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}
