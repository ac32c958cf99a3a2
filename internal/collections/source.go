package collections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SourceErrorKind classifies why an upstream fetch failed.
type SourceErrorKind string

const (
	SourceAuthMissing     SourceErrorKind = "auth_missing"
	SourceNotFound        SourceErrorKind = "not_found"
	SourceRateLimited     SourceErrorKind = "rate_limited"
	SourceTimeout         SourceErrorKind = "timeout"
	SourceUpstreamError   SourceErrorKind = "upstream_error"
	SourcePaginationLimit SourceErrorKind = "pagination_limit_exceeded"
	SourceInvalidShape    SourceErrorKind = "invalid_response_shape"
)

// SourceError is the typed failure surfaced by the record source.
type SourceError struct {
	Kind    SourceErrorKind
	Status  int
	Message string
}

func (e *SourceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("source %s: status=%d %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("source %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is transient. Non-retryable
// kinds indicate misconfiguration and are logged louder upstream.
func (e *SourceError) Retryable() bool {
	switch e.Kind {
	case SourceRateLimited, SourceTimeout, SourceUpstreamError:
		return true
	default:
		return false
	}
}

// SortSpec orders a collection query by one upstream field.
type SortSpec struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// PageRequest describes one collection query.
type PageRequest struct {
	CollectionID string
	Kind         Kind
	Filter       map[string]string
	Sort         *SortSpec
	PageSize     int
	Cursor       string
}

// Page is one page of a collection in upstream order.
type Page struct {
	Records    []Record
	HasMore    bool
	NextCursor string
}

// Source is what the fallback chain and the refresher consume. It is a
// pure proxy: no caching, typed errors, upstream order preserved.
type Source interface {
	FetchAll(ctx context.Context, req PageRequest) ([]Record, error)
}

type NotionSourceOptions struct {
	BaseURL        string
	Token          string
	APIVersion     string
	UserAgent      string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	PageSize       int
	MaxPages       int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Logger         *log.Logger
}

// NotionSource talks to the Notion-style paginated record API.
type NotionSource struct {
	client   *resty.Client
	token    string
	pageSize int
	maxPages int
	logger   *log.Logger
}

const queryPath = "/v1/collections/query"

func NewNotionSource(opts NotionSourceOptions) *NotionSource {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(baseURL)
	client.SetLogger(restyLogger{logger: logger})
	client.SetTimeout(timeout)
	client.SetHeader("Notion-Version", apiVersion)
	client.SetHeader("Content-Type", "application/json")
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("User-Agent", ua)
	}
	client.SetRetryCount(maxRetries)
	client.SetRetryWaitTime(baseDelay)
	client.SetRetryMaxWaitTime(maxDelay)
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil || resp == nil {
			return false
		}
		status := resp.StatusCode()
		return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
	})
	client.SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
		if resp != nil {
			if after := parseRetryAfterSeconds(resp.Header().Get("Retry-After")); after > 0 {
				if after > maxDelay {
					after = maxDelay
				}
				return after, nil
			}
		}
		attempt := 1
		if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
			attempt = resp.Request.Attempt
		}
		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxDelay {
				return maxDelay, nil
			}
		}
		return delay, nil
	})

	return &NotionSource{
		client:   client,
		token:    strings.TrimSpace(opts.Token),
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// restyLogger routes the HTTP client's internal retry/error output
// through the source's logger so everything lands in one sink.
type restyLogger struct {
	logger *log.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Printf("collections: http client error: "+format, v...)
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Printf("collections: http client warn: "+format, v...)
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Printf("collections: http client debug: "+format, v...)
}

type queryRequest struct {
	CollectionID string            `json:"collectionId"`
	Filter       map[string]string `json:"filter,omitempty"`
	Sorts        []sortClause      `json:"sorts,omitempty"`
	PageSize     int               `json:"pageSize"`
	Cursor       string            `json:"cursor,omitempty"`
}

type sortClause struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// FetchPage runs one upstream query. Transient upstream failures (429,
// 5xx) are retried with backoff honoring Retry-After before a typed
// error is surfaced.
func (s *NotionSource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	if s == nil {
		return Page{}, &SourceError{Kind: SourceUpstreamError, Message: "source is nil"}
	}
	if s.token == "" {
		return Page{}, &SourceError{Kind: SourceAuthMissing, Message: "no upstream token configured"}
	}
	if strings.TrimSpace(req.CollectionID) == "" {
		return Page{}, &SourceError{Kind: SourceNotFound, Message: fmt.Sprintf("no collection id for kind %q", req.Kind)}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	body := queryRequest{
		CollectionID: req.CollectionID,
		Filter:       req.Filter,
		PageSize:     pageSize,
		Cursor:       req.Cursor,
	}
	if req.Sort != nil {
		direction := "ascending"
		if req.Sort.Descending {
			direction = "descending"
		}
		body.Sorts = []sortClause{{Field: req.Sort.Field, Direction: direction}}
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.token).
		SetBody(body).
		Post(queryPath)
	if err != nil {
		return Page{}, classifyTransportError(err)
	}
	if resp.IsError() {
		return Page{}, classifyStatus(resp.StatusCode(), resp.Body())
	}

	envelope, err := decodeEnvelope(resp.Body())
	if err != nil {
		return Page{}, err
	}

	records := make([]Record, 0, len(envelope.Results))
	seen := make(map[string]bool, len(envelope.Results))
	for _, item := range envelope.Results {
		record, err := recordFromItem(req.Kind, item)
		if err != nil {
			return Page{}, &SourceError{Kind: SourceInvalidShape, Message: err.Error()}
		}
		if seen[record.ID] {
			s.logger.Printf("collections: dropping duplicate id %s in %s page", record.ID, req.Kind)
			continue
		}
		seen[record.ID] = true
		records = append(records, record)
	}

	page := Page{Records: records, HasMore: envelope.HasMore}
	if envelope.NextCursor != nil {
		page.NextCursor = *envelope.NextCursor
	}
	return page, nil
}

// FetchAll follows next_cursor until the upstream reports has_more=false,
// concatenating pages in upstream order. Iteration is capped so a
// misbehaving upstream cannot loop us forever. Ids are deduplicated
// across the whole snapshot, not just per page: upstream edits during
// pagination can repeat a record on a later page.
func (s *NotionSource) FetchAll(ctx context.Context, req PageRequest) ([]Record, error) {
	var records []Record
	seen := make(map[string]bool)
	cursor := req.Cursor
	for pages := 0; pages < s.maxPages; pages++ {
		pageReq := req
		pageReq.Cursor = cursor
		page, err := s.FetchPage(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		for _, record := range page.Records {
			if seen[record.ID] {
				s.logger.Printf("collections: dropping duplicate id %s repeated across %s pages", record.ID, req.Kind)
				continue
			}
			seen[record.ID] = true
			records = append(records, record)
		}
		if !page.HasMore {
			return records, nil
		}
		cursor = page.NextCursor
	}
	return nil, &SourceError{
		Kind:    SourcePaginationLimit,
		Message: fmt.Sprintf("upstream still reports more after %d pages for kind %q", s.maxPages, req.Kind),
	}
}

func classifyStatus(status int, body []byte) *SourceError {
	message := strings.TrimSpace(string(body))
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && strings.TrimSpace(parsed.Message) != "" {
		message = strings.TrimSpace(parsed.Message)
		if parsed.Code != "" {
			message = parsed.Code + ": " + message
		}
	}
	kind := SourceUpstreamError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = SourceAuthMissing
	case status == http.StatusNotFound:
		kind = SourceNotFound
	case status == http.StatusTooManyRequests:
		kind = SourceRateLimited
	}
	return &SourceError{Kind: kind, Status: status, Message: message}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &SourceError{Kind: SourceTimeout, Message: err.Error()}
	}
	return &SourceError{Kind: SourceUpstreamError, Message: err.Error()}
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
