// Package tmdb is the client for the primary metadata source. It supplies the
// authoritative credit lists for movies and series and resolves people by
// external id.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sydlexius/playbill/internal/provider"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// guestOrder ranks cast that only appear in individual episodes behind the
// main credits.
const guestOrder = 999

// Credit is one cast entry as the primary source reports it.
type Credit struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	Character    string  `json:"character"`
	Order        int     `json:"order"`
	Gender       int     `json:"gender"`
	Popularity   float64 `json:"popularity"`
	ProfilePath  string  `json:"profile_path"`
	Adult        bool    `json:"adult"`
}

// Person is the result of an external-id lookup.
type Person struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	Gender       int     `json:"gender"`
	Popularity   float64 `json:"popularity"`
	ProfilePath  string  `json:"profile_path"`
	Adult        bool    `json:"adult"`
}

// Client talks to the primary source API.
type Client struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

// New creates a client with the default base URL.
func New(apiKey string, limiter *provider.RateLimiterMap, logger *slog.Logger) *Client {
	return NewWithBaseURL(apiKey, limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a client with a custom base URL (for testing).
func NewWithBaseURL(apiKey string, limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "tmdb")),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type creditsResponse struct {
	ID   int64    `json:"id"`
	Cast []Credit `json:"cast"`
}

// MovieCredits fetches the cast list for a movie.
func (c *Client) MovieCredits(ctx context.Context, movieID string) ([]Credit, error) {
	var resp creditsResponse
	if err := c.get(ctx, "/movie/"+url.PathEscape(movieID)+"/credits", nil, movieID, &resp); err != nil {
		return nil, err
	}
	return resp.Cast, nil
}

type aggregateCredit struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	Gender       int     `json:"gender"`
	Popularity   float64 `json:"popularity"`
	ProfilePath  string  `json:"profile_path"`
	Adult        bool    `json:"adult"`
	Order        int     `json:"order"`
	Roles        []struct {
		Character    string `json:"character"`
		EpisodeCount int    `json:"episode_count"`
	} `json:"roles"`
}

type seriesResponse struct {
	ID      int64 `json:"id"`
	Credits struct {
		Cast []Credit `json:"cast"`
	} `json:"credits"`
}

type aggregateResponse struct {
	Cast []aggregateCredit `json:"cast"`
}

// SeriesCredits fetches the full cast of a series. The main credits keep
// their billed order; people who only appear in individual episodes are
// ranked behind them with a guest order.
func (c *Client) SeriesCredits(ctx context.Context, seriesID string) ([]Credit, error) {
	path := "/tv/" + url.PathEscape(seriesID)

	var main seriesResponse
	if err := c.get(ctx, path, url.Values{"append_to_response": {"credits"}}, seriesID, &main); err != nil {
		return nil, err
	}

	var agg aggregateResponse
	if err := c.get(ctx, path+"/aggregate_credits", nil, seriesID, &agg); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(main.Credits.Cast))
	credits := make([]Credit, 0, len(agg.Cast))
	for _, cr := range main.Credits.Cast {
		seen[cr.ID] = struct{}{}
		credits = append(credits, cr)
	}
	for _, ac := range agg.Cast {
		if _, ok := seen[ac.ID]; ok {
			continue
		}
		cr := Credit{
			ID:           ac.ID,
			Name:         ac.Name,
			OriginalName: ac.OriginalName,
			Gender:       ac.Gender,
			Popularity:   ac.Popularity,
			ProfilePath:  ac.ProfilePath,
			Adult:        ac.Adult,
			Order:        guestOrder,
		}
		if len(ac.Roles) > 0 {
			cr.Character = ac.Roles[0].Character
		}
		credits = append(credits, cr)
	}
	return credits, nil
}

type findResponse struct {
	PersonResults []Person `json:"person_results"`
}

// FindPersonByExternalID resolves an external id to a person on the primary
// source. Returns ErrNotFound when the id maps to nothing.
func (c *Client) FindPersonByExternalID(ctx context.Context, externalID string) (*Person, error) {
	var resp findResponse
	err := c.get(ctx, "/find/"+url.PathEscape(externalID),
		url.Values{"external_source": {"imdb_id"}}, externalID, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.PersonResults) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameTMDB, ID: externalID}
	}
	return &resp.PersonResults[0], nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, id string, out any) error {
	if c.apiKey == "" {
		return &provider.ErrAuthRequired{Provider: provider.NameTMDB}
	}
	if err := c.limiter.Wait(ctx, provider.NameTMDB); err != nil {
		return &provider.ErrProviderUnavailable{
			Provider: provider.NameTMDB,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", "zh-CN")
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting", slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return &provider.ErrProviderUnavailable{Provider: provider.NameTMDB, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &provider.ErrNotFound{Provider: provider.NameTMDB, ID: id}
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &provider.ErrAuthRequired{Provider: provider.NameTMDB}
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &provider.ErrProviderUnavailable{
			Provider:   provider.NameTMDB,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 10 * time.Second,
		}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &provider.ErrProviderUnavailable{
			Provider: provider.NameTMDB,
			Cause:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
