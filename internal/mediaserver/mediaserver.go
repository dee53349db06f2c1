// Package mediaserver is the client for the media server whose cast lists
// this service rewrites.
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const itemFields = "ProviderIds,People,Path,OriginalTitle,PremiereDate,ProductionYear,Overview,Genres"

// Person is one entry of an item's People list.
type Person struct {
	ID          string            `json:"Id,omitempty"`
	Name        string            `json:"Name"`
	Role        string            `json:"Role,omitempty"`
	Type        string            `json:"Type"`
	ProviderIDs map[string]string `json:"ProviderIds,omitempty"`
}

// Item is a media item as the server reports it.
type Item struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	OriginalTitle  string            `json:"OriginalTitle,omitempty"`
	Type           string            `json:"Type"`
	ProductionYear int               `json:"ProductionYear,omitempty"`
	Genres         []string          `json:"Genres,omitempty"`
	ProviderIDs    map[string]string `json:"ProviderIds,omitempty"`
	People         []Person          `json:"People,omitempty"`
}

// Library is one virtual folder on the server.
type Library struct {
	ID             string `json:"ItemId"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType,omitempty"`
}

// Client talks to the media server REST API.
type Client struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	apiKey  string
	userID  string
}

// New creates a media server client.
func New(baseURL, apiKey, userID string, logger *slog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(slog.String("component", "mediaserver")),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		userID:  userID,
	}
}

// ItemDetails fetches a media item with its provider ids and people.
func (c *Client) ItemDetails(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	path := "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(itemID)
	if err := c.getJSON(ctx, path, url.Values{"Fields": {itemFields}}, &item); err != nil {
		return nil, fmt.Errorf("fetching item %s: %w", itemID, err)
	}
	return &item, nil
}

// PersonProviderIDs fetches the provider id map stored on a person entry.
// People are items themselves, so the regular item endpoint serves them.
func (c *Client) PersonProviderIDs(ctx context.Context, personID string) (map[string]string, error) {
	var item Item
	path := "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(personID)
	if err := c.getJSON(ctx, path, url.Values{"Fields": {"ProviderIds"}}, &item); err != nil {
		return nil, fmt.Errorf("fetching person %s: %w", personID, err)
	}
	return item.ProviderIDs, nil
}

// UpdateItemCast replaces the actor entries of an item's People list. The
// update endpoint wants the whole item object back, so the current item is
// fetched raw, its non-actor people are preserved, and the result is posted.
func (c *Client) UpdateItemCast(ctx context.Context, itemID string, cast []Person) error {
	var raw map[string]any
	path := "/Users/" + url.PathEscape(c.userID) + "/Items/" + url.PathEscape(itemID)
	if err := c.getJSON(ctx, path, nil, &raw); err != nil {
		return fmt.Errorf("fetching item %s for update: %w", itemID, err)
	}

	people := make([]any, 0, len(cast))
	for _, p := range cast {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		entry := map[string]any{
			"Name": strings.TrimSpace(p.Name),
			"Role": strings.TrimSpace(p.Role),
			"Type": "Actor",
		}
		if p.ID != "" {
			entry["Id"] = p.ID
		}
		if len(p.ProviderIDs) > 0 {
			ids := make(map[string]string, len(p.ProviderIDs))
			for k, v := range p.ProviderIDs {
				if strings.TrimSpace(v) != "" {
					ids[k] = v
				}
			}
			if len(ids) > 0 {
				entry["ProviderIds"] = ids
			}
		}
		people = append(people, entry)
	}

	// Directors, writers and the like survive a cast rewrite.
	if existing, ok := raw["People"].([]any); ok {
		for _, e := range existing {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["Type"].(string); t != "" && t != "Actor" {
				people = append(people, m)
			}
		}
	}
	raw["People"] = people

	// A locked Cast field would make the server ignore the update.
	if locked, ok := raw["LockedFields"].([]any); ok {
		kept := locked[:0]
		for _, f := range locked {
			if s, _ := f.(string); s != "Cast" {
				kept = append(kept, f)
			}
		}
		raw["LockedFields"] = kept
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding item %s: %w", itemID, err)
	}
	if err := c.post(ctx, "/Items/"+url.PathEscape(itemID), payload); err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	return nil
}

// RefreshItem asks the server to re-read the item's metadata so the new cast
// shows up without a library scan.
func (c *Client) RefreshItem(ctx context.Context, itemID string) error {
	path := "/Items/" + url.PathEscape(itemID) + "/Refresh"
	params := url.Values{
		"Recursive":           {"true"},
		"MetadataRefreshMode": {"Default"},
	}
	if err := c.post(ctx, path+"?"+params.Encode(), nil); err != nil {
		return fmt.Errorf("refreshing item %s: %w", itemID, err)
	}
	return nil
}

// Libraries lists the server's virtual folders.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	var libs []Library
	if err := c.getJSON(ctx, "/Library/VirtualFolders", nil, &libs); err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	return libs, nil
}

type itemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// LibraryItems lists the movies and series under a library folder.
func (c *Client) LibraryItems(ctx context.Context, parentID string) ([]Item, error) {
	params := url.Values{
		"ParentId":         {parentID},
		"IncludeItemTypes": {"Movie,Series"},
		"Recursive":        {"true"},
		"Fields":           {"ProviderIds,ProductionYear,OriginalTitle"},
	}
	var resp itemsResponse
	path := "/Users/" + url.PathEscape(c.userID) + "/Items"
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("listing library %s: %w", parentID, err)
	}
	return resp.Items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting", slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	reqURL := c.baseURL + path
	if strings.Contains(path, "?") {
		reqURL += "&api_key=" + url.QueryEscape(c.apiKey)
	} else {
		reqURL += "?api_key=" + url.QueryEscape(c.apiKey)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("posting", slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
