package sonarr

import (
	"bytes"
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
	"kitsu2sonarr/internal/library"
	"kitsu2sonarr/internal/util"

	"github.com/go-resty/resty/v2"
)

const (
	SeriesTypeAnime = "anime"

	alreadyAddedMessage = "This series has already been added"
)

var NilLogger = log.New(io.Discard, "", 0)

var (
	ErrNoProfile         = errors.New("no Sonarr quality profile selected")
	ErrRemoteUnavailable = errors.New("sonarr unavailable")
)

// RemoteRejectedError is returned when Sonarr refuses a series for any
// reason other than it already being in the library.
type RemoteRejectedError struct {
	Status int
	Body   string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("Sonarr rejected the series. Status: %d, Body: %s", e.Status, e.Body)
}

type AddResult int

const (
	Added AddResult = iota + 1
	AlreadyExists
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyExists:
		return "already exists"
	}
	return "unknown"
}

type QualityProfile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type RootFolder struct {
	ID        int    `json:"id"`
	Path      string `json:"path"`
	FreeSpace int64  `json:"freeSpace"`
}

type AddSeriesRequest struct {
	TVDBID           int    `json:"tvdbId"`
	Title            string `json:"title"`
	QualityProfileID int    `json:"qualityProfileId"`
	TitleSlug        string `json:"titleSlug"`
	Images           []any  `json:"images"`
	Seasons          []any  `json:"seasons"`
	RootFolderPath   string `json:"rootFolderPath"`
	SeriesType       string `json:"seriesType"`
}

type validationFailure struct {
	PropertyName string `json:"propertyName"`
	ErrorMessage string `json:"errorMessage"`
}

type Client struct {
	resty      *resty.Client
	profileID  int
	rootFolder string
	logger     *log.Logger
}

func NewClient(cfg config.Config, appLogger *log.Logger) *Client {
	if appLogger == nil {
		appLogger = log.Default()
	}
	cleanBaseURL := strings.TrimSuffix(cfg.Sonarr.BaseURL, "/")
	sonarrFullBaseURL := cleanBaseURL + cfg.Sonarr.APIPath
	restyClient := resty.New().
		SetBaseURL(sonarrFullBaseURL).
		SetQueryParam("apikey", cfg.Sonarr.APIKey).
		SetTimeout(time.Duration(cfg.Sonarr.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.Sonarr.RetryCount).
		SetRetryWaitTime(time.Duration(cfg.Sonarr.RetryWaitSeconds) * time.Second).
		OnError(func(req *resty.Request, err error) {
			errMsg := fmt.Sprintf("API Request Error. Method: %s", req.Method)
			if err != nil {
				log.Printf("  %s %s | Error: %v", util.RedBold("[SONARR HTTP ERR]"), errMsg, err.Error())
				if v, ok := err.(*resty.ResponseError); ok && v.Response != nil {
					if len(v.Response.Body()) > 0 && len(v.Response.Body()) < 500 {
						log.Printf("  %s Response Body: %s", util.RedBold("[SONARR HTTP ERR]"), string(v.Response.Body()))
					}
				}
			} else {
				log.Printf("  %s %s | Unknown Error (err is nil)", util.RedBold("[SONARR HTTP ERR]"), errMsg)
			}
		})
	return &Client{
		resty:      restyClient,
		profileID:  cfg.Sonarr.ProfileID,
		rootFolder: cfg.Sonarr.RootFolder,
		logger:     appLogger,
	}
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

// SetProfileID fixes the quality profile used by AddShow for the rest of the run.
func (c *Client) SetProfileID(id int) {
	c.profileID = id
}

func (c *Client) ProfileID() int { return c.profileID }

func (c *Client) QualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	var profiles []QualityProfile
	resp, err := c.resty.R().SetContext(ctx).SetResult(&profiles).Get("/qualityprofile")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to request quality profiles: %v", ErrRemoteUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: Sonarr API error listing quality profiles. Status: %s, Body: %s", ErrRemoteUnavailable, resp.Status(), resp.String())
	}
	return profiles, nil
}

func (c *Client) RootFolders(ctx context.Context) ([]RootFolder, error) {
	var folders []RootFolder
	resp, err := c.resty.R().SetContext(ctx).SetResult(&folders).Get("/rootfolder")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to request root folders: %v", ErrRemoteUnavailable, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: Sonarr API error listing root folders. Status: %s, Body: %s", ErrRemoteUnavailable, resp.Status(), resp.String())
	}
	return folders, nil
}

// NewAddSeriesRequest builds the creation payload for a record. The english
// title is preferred; the second return value reports a romaji fallback.
func (c *Client) NewAddSeriesRequest(rec library.Record) (AddSeriesRequest, bool, error) {
	tvdbID, err := rec.TVDBID()
	if err != nil {
		return AddSeriesRequest{}, false, err
	}
	title, fellBack := rec.Title.Display()
	return AddSeriesRequest{
		TVDBID:           tvdbID,
		Title:            title,
		QualityProfileID: c.profileID,
		TitleSlug:        util.Slugify(title),
		Images:           []any{},
		Seasons:          []any{},
		RootFolderPath:   c.rootFolder,
		SeriesType:       SeriesTypeAnime,
	}, fellBack, nil
}

// AddShow submits rec to Sonarr. A 400 saying the series is already in the
// library counts as success and yields AlreadyExists.
func (c *Client) AddShow(ctx context.Context, rec library.Record) (AddResult, error) {
	if c.profileID <= 0 {
		return 0, ErrNoProfile
	}
	body, fellBack, err := c.NewAddSeriesRequest(rec)
	if err != nil {
		return 0, err
	}

	currentLogger := c.GetLogger()
	if fellBack {
		currentLogger.Printf("  %s No english title for %s, using the romaji one.",
			util.Cyan("[SONARR]"), util.Blue(fmt.Sprintf("'%s'", rec.Title.Romaji)))
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post("/series")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to send add request for '%s': %v", ErrRemoteUnavailable, body.Title, err)
	}

	switch {
	case resp.IsSuccess():
		currentLogger.Printf("  %s Added %s (TVDB: %s)",
			util.Cyan("[SONARR]"),
			util.Blue(fmt.Sprintf("'%s'", body.Title)),
			util.Yellow(strconv.Itoa(body.TVDBID)))
		return Added, nil
	case resp.StatusCode() == http.StatusBadRequest && isAlreadyAdded(resp.Body()):
		currentLogger.Printf("  %s %s is %s.",
			util.Cyan("[SONARR]"),
			util.Blue(fmt.Sprintf("'%s'", body.Title)),
			util.Green("already in Sonarr"))
		return AlreadyExists, nil
	}
	return 0, &RemoteRejectedError{Status: resp.StatusCode(), Body: resp.String()}
}

func isAlreadyAdded(body []byte) bool {
	var failures []validationFailure
	if err := json.Unmarshal(body, &failures); err == nil {
		for _, f := range failures {
			if f.ErrorMessage == alreadyAddedMessage {
				return true
			}
		}
		return false
	}
	return bytes.Contains(body, []byte(alreadyAddedMessage))
}
