package kitsu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kitsu2sonarr/internal/config"
	"kitsu2sonarr/internal/util"

	"github.com/go-resty/resty/v2"
)

const (
	// TVDBSeriesSite is the mapping namespace for Sonarr's series ids.
	TVDBSeriesSite = "thetvdb/series"

	jsonAPIContentType = "application/vnd.api+json"
)

var NilLogger = log.New(io.Discard, "", 0)

var (
	ErrRemoteUnavailable = errors.New("kitsu unavailable")
	ErrMalformedResponse = errors.New("malformed kitsu response")
)

type Client struct {
	resty     *resty.Client
	cfg       config.KitsuConfig
	pageLimit int
	logger    *log.Logger
}

func NewClient(cfg config.Config, appLogger *log.Logger) *Client {
	if appLogger == nil {
		appLogger = log.Default()
	}
	pageLimit := cfg.Kitsu.PageLimit
	if pageLimit <= 0 {
		pageLimit = 20
	}
	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.Kitsu.BaseURL, "/")).
		SetHeader("Accept", jsonAPIContentType).
		SetTimeout(time.Duration(cfg.Kitsu.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.Kitsu.RetryCount).
		SetRetryWaitTime(time.Duration(cfg.Kitsu.RetryWaitSeconds) * time.Second).
		OnError(func(req *resty.Request, err error) {
			errMsg := fmt.Sprintf("API Request Error. URL: %s, Method: %s", req.URL, req.Method)
			if err != nil {
				log.Printf("  %s %s | Error: %v", util.RedBold("[KITSU HTTP ERR]"), errMsg, err.Error())
			} else {
				log.Printf("  %s %s | Unknown Error (err is nil)", util.RedBold("[KITSU HTTP ERR]"), errMsg)
			}
		})
	return &Client{resty: restyClient, cfg: cfg.Kitsu, pageLimit: pageLimit, logger: appLogger}
}

func (c *Client) GetLogger() *log.Logger {
	if c.logger == nil {
		return NilLogger
	}
	return c.logger
}

func (c *Client) SetLogger(logger *log.Logger) {
	if logger == nil {
		c.logger = NilLogger
	} else {
		c.logger = logger
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges the configured username and password for a bearer token
// using the OAuth password grant. It is a no-op without credentials; the
// public library endpoints work anonymously.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.Username == "" {
		return nil
	}
	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "password",
			"username":      c.cfg.Username,
			"password":      c.cfg.Password,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		Post(c.cfg.TokenURL)
	if err != nil {
		return fmt.Errorf("%w: token request: %v", ErrRemoteUnavailable, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: token request returned %s", ErrRemoteUnavailable, resp.Status())
	}
	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: token response has no access_token", ErrMalformedResponse)
	}
	c.resty.SetAuthToken(tok.AccessToken)
	c.GetLogger().Printf("  %s Authenticated as %s.", util.Cyan("[KITSU]"), util.Blue(c.cfg.Username))
	return nil
}

// FetchWatchList returns every library entry of userID, following the
// pagination links until the last page.
func (c *Client) FetchWatchList(ctx context.Context, userID string) ([]WatchListEntry, error) {
	var entries []WatchListEntry

	req := c.resty.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filter[userId]": userID,
			"page[limit]":    strconv.Itoa(c.pageLimit),
		})
	resp, err := req.Get("/library-entries")
	seen := map[string]bool{}
	for {
		if err != nil {
			return nil, fmt.Errorf("%w: fetching library of user %s: %v", ErrRemoteUnavailable, userID, err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("%w: fetching library of user %s: status %s", ErrRemoteUnavailable, userID, resp.Status())
		}

		var page libraryEntriesResponse
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("%w: library entries: %v", ErrMalformedResponse, err)
		}
		for _, res := range page.Data {
			entries = append(entries, res.entry())
		}

		next := page.Links.Next
		if next == "" || seen[next] {
			break
		}
		seen[next] = true
		resp, err = c.resty.R().SetContext(ctx).Get(next)
	}

	c.GetLogger().Printf("  %s Library of user %s: %s entries.",
		util.Cyan("[KITSU]"), util.Blue(userID), util.GreenBold(strconv.Itoa(len(entries))))
	return entries, nil
}

// FetchMedia returns the media a library entry points at. A response whose
// data is null yields a nil item and no error.
func (c *Client) FetchMedia(ctx context.Context, entryID string) (*MediaItem, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("id", entryID).
		Get("/library-entries/{id}/media")
	if err != nil {
		return nil, fmt.Errorf("%w: fetching media of entry %s: %v", ErrRemoteUnavailable, entryID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching media of entry %s: status %s", ErrRemoteUnavailable, entryID, resp.Status())
	}

	var doc mediaResponse
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("%w: media of entry %s: %v", ErrMalformedResponse, entryID, err)
	}
	if doc.Data == nil || doc.Data.ID == "" {
		return nil, nil
	}
	return doc.Data.item(), nil
}

// ResolveCrossReference looks up the TVDB series mapping of a media item.
// The bool is false when Kitsu has no such mapping.
func (c *Client) ResolveCrossReference(ctx context.Context, mediaID string) (string, bool, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetPathParam("id", mediaID).
		SetQueryParam("filter[externalSite]", TVDBSeriesSite).
		Get("/anime/{id}/mappings")
	if err != nil {
		return "", false, fmt.Errorf("%w: mappings of media %s: %v", ErrRemoteUnavailable, mediaID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", false, nil
	}
	if !resp.IsSuccess() {
		return "", false, fmt.Errorf("%w: mappings of media %s: status %s", ErrRemoteUnavailable, mediaID, resp.Status())
	}

	var doc mappingsResponse
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return "", false, fmt.Errorf("%w: mappings of media %s: %v", ErrMalformedResponse, mediaID, err)
	}
	for _, m := range doc.Data {
		if m.Attributes.ExternalSite == TVDBSeriesSite && strings.TrimSpace(m.Attributes.ExternalID) != "" {
			return m.Attributes.ExternalID, true, nil
		}
	}
	return "", false, nil
}
