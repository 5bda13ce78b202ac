package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
	"job-signals/scraper"
	"job-signals/utils"
)

const (
	DefaultBaseURL  = "https://api.apify.com"
	CareerSiteActor = "fantastic-jobs~career-site-job-listing-api"
	ExpiredActor    = "fantastic-jobs~expired-jobs-api-for-career-site-job-listing-api"

	sourceName = "fantastic_jobs_apify"
)

// Options configures a Client. Zero values pick sensible defaults.
type Options struct {
	BaseURL      string
	Token        string
	Actor        string
	ExpiredActor string        // lists postings taken down upstream
	RunTimeout   time.Duration // how long the actor may run server-side
	MaxRetries   int
	RetryDelay   time.Duration
}

// Client runs an Apify actor synchronously and returns its dataset items.
type Client struct {
	base    string
	token   string
	actor   string
	expired string
	timeout time.Duration
	hc      *http.Client
	retry   *utils.RetryConfig
	logger  *utils.Logger
}

// StatusError is a non-2xx answer from the Apify API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apify status %d: %s", e.Code, e.Body)
}

// New creates a Client.
func New(opts Options, logger *utils.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Actor == "" {
		opts.Actor = CareerSiteActor
	}
	if opts.ExpiredActor == "" {
		opts.ExpiredActor = ExpiredActor
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 180 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	retry := &utils.RetryConfig{
		MaxAttempts: opts.MaxRetries,
		BaseDelay:   opts.RetryDelay,
		Logger:      logger,
		Retryable:   isTransient,
	}

	// the sync endpoint holds the connection open while the actor runs
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		actor:   opts.Actor,
		expired: opts.ExpiredActor,
		timeout: opts.RunTimeout,
		hc:      &http.Client{Timeout: opts.RunTimeout + 30*time.Second},
		retry:   retry,
		logger:  logger,
	}
}

func (c *Client) Name() string { return sourceName }

type actorInput struct {
	OrganizationSearch string `json:"organizationSearch"`
	TimeRange          string `json:"timeRange"`
	MaximumJobs        int    `json:"maximumJobs"`
	IncludeAI          bool   `json:"includeAi"`
	IncludeLinkedIn    bool   `json:"includeLinkedIn"`
}

// expiredInput is what the expired-jobs actor accepts; it has no AI or
// LinkedIn switches.
type expiredInput struct {
	OrganizationSearch string `json:"organizationSearch"`
	TimeRange          string `json:"timeRange"`
	MaximumJobs        int    `json:"maximumJobs"`
}

// Fetch asks the actor for entity's postings within p.TimeRange.
func (c *Client) Fetch(ctx context.Context, entity models.Entity, p scraper.FetchParams) ([]models.RawJob, error) {
	input := actorInput{
		OrganizationSearch: entity.Name,
		TimeRange:          p.TimeRange,
		MaximumJobs:        p.MaxJobs,
		IncludeAI:          p.IncludeAI,
		IncludeLinkedIn:    p.IncludeLinkedIn,
	}
	items, err := c.run(ctx, "apify "+entity.Name, c.actor, input)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("[apify] %s: %d items", entity.Name, len(items))
	return items, nil
}

// FetchExpired asks the expired-jobs actor which of entity's postings were
// taken down within p.TimeRange.
func (c *Client) FetchExpired(ctx context.Context, entity models.Entity, p scraper.FetchParams) ([]models.RawJob, error) {
	input := expiredInput{
		OrganizationSearch: entity.Name,
		TimeRange:          p.TimeRange,
		MaximumJobs:        p.MaxJobs,
	}
	items, err := c.run(ctx, "apify expired "+entity.Name, c.expired, input)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("[apify] %s: %d expired items", entity.Name, len(items))
	return items, nil
}

func (c *Client) run(ctx context.Context, name, actor string, input any) ([]models.RawJob, error) {
	var items []models.RawJob
	err := c.retry.Do(ctx, name, func() error {
		var err error
		items, err = c.runSync(ctx, actor, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) runSync(ctx context.Context, actor string, input any) ([]models.RawJob, error) {
	q := url.Values{}
	q.Set("token", c.token)
	q.Set("timeout", strconv.Itoa(int(c.timeout/time.Second)))
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?%s", c.base, actor, q.Encode())

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "apify: encode input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "apify: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "apify: decode dataset items")
	}

	items := make([]models.RawJob, 0, len(raw))
	for i, r := range raw {
		var item models.RawJob
		if err := json.Unmarshal(r, &item); err != nil {
			c.logger.Warn("[apify] %s: skipping dataset item %d: %v", actor, i, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// isTransient retries network failures, 5xx and 429. Other statuses and a
// cancelled context are final.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
