package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.x.com/2"

// tweetFields, mediaFields and expansions are the field sets requested on
// every tweet-returning call so all sources yield the same raw shape.
const (
	tweetFields = "author_id,entities,created_at,public_metrics,text,attachments"
	mediaFields = "url,type,preview_image_url,alt_text"
	expansions  = "attachments.media_keys"
	userFields  = "profile_image_url"
)

// Client is a minimal API v2 client covering the calls the monitor needs:
// list polling, filtered-stream rule management, the stream itself, and
// user lookups for author seeding.
type Client struct {
	http *resty.Client

	// stream has no client timeout: the filtered-stream response body
	// stays open indefinitely and is bounded by context instead.
	stream *resty.Client
}

// NewClient creates a client authenticated with the given bearer token. If
// baseURL is empty, the public API endpoint is used.
func NewClient(baseURL, bearerToken string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	api := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(bearerToken).
		SetTimeout(30 * time.Second)

	stream := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(bearerToken)

	return &Client{http: api, stream: stream}
}

// ListTweets fetches recent tweets from a list. A non-zero since time is
// passed as start_time so only newer tweets are returned.
func (c *Client) ListTweets(ctx context.Context, listID string, since time.Time) (*TweetsPage, error) {
	var body struct {
		Data     []Tweet  `json:"data"`
		Includes Includes `json:"includes"`
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tweet.fields": tweetFields,
			"media.fields": mediaFields,
			"expansions":   expansions,
			"max_results":  "15",
		}).
		SetResult(&body)

	if !since.IsZero() {
		req.SetQueryParam("start_time", since.UTC().Format(time.RFC3339))
	}

	resp, err := req.Get("/lists/" + listID + "/tweets")
	if err := classify(resp, err, "list tweets"); err != nil {
		return nil, err
	}

	return &TweetsPage{Tweets: body.Data, Includes: body.Includes}, nil
}

// UsersByUsernames looks up users by username, including profile image URLs.
func (c *Client) UsersByUsernames(ctx context.Context, usernames []string) ([]User, error) {
	var body struct {
		Data []User `json:"data"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("usernames", strings.Join(usernames, ",")).
		SetQueryParam("user.fields", userFields).
		SetResult(&body).
		Get("/users/by")
	if err := classify(resp, err, "users by usernames"); err != nil {
		return nil, err
	}

	return body.Data, nil
}

// ListMembers fetches the member accounts of a list.
func (c *Client) ListMembers(ctx context.Context, listID string) ([]User, error) {
	var body struct {
		Data []User `json:"data"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("user.fields", "id,name,username,profile_image_url").
		SetResult(&body).
		Get("/lists/" + listID + "/members")
	if err := classify(resp, err, "list members"); err != nil {
		return nil, err
	}

	return body.Data, nil
}

// ReplaceStreamRules deletes all existing filtered-stream rules and installs
// one from:<account> rule per tracked account.
func (c *Client) ReplaceStreamRules(ctx context.Context, accounts []string) error {
	var existing struct {
		Data []StreamRule `json:"data"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&existing).
		Get("/tweets/search/stream/rules")
	if err := classify(resp, err, "get stream rules"); err != nil {
		return err
	}

	if len(existing.Data) > 0 {
		ids := make([]string, len(existing.Data))
		for i, rule := range existing.Data {
			ids[i] = rule.ID
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]any{"delete": map[string]any{"ids": ids}}).
			Post("/tweets/search/stream/rules")
		if err := classify(resp, err, "delete stream rules"); err != nil {
			return err
		}
	}

	rules := make([]StreamRule, len(accounts))
	for i, account := range accounts {
		rules[i] = StreamRule{Value: "from:" + account}
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"add": rules}).
		Post("/tweets/search/stream/rules")
	return classify(resp, err, "add stream rules")
}

// OpenStream opens the filtered stream and returns its raw body. The caller
// owns the reader and must close it; each line is one StreamEvent.
func (c *Client) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tweet.fields": tweetFields,
			"media.fields": mediaFields,
			"expansions":   expansions,
			"user.fields":  userFields,
		}).
		SetDoNotParseResponse(true).
		Get("/tweets/search/stream")
	if err != nil {
		return nil, fmt.Errorf("open stream: %w: %w", domain.ErrSourceUnavailable, err)
	}

	if resp.StatusCode() != http.StatusOK {
		body := resp.RawBody()
		if body != nil {
			body.Close()
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			return nil, &domain.RateLimitedError{RetryAfter: retryAfter(resp)}
		}
		return nil, fmt.Errorf("open stream: %w: status %d", domain.ErrSourceUnavailable, resp.StatusCode())
	}

	return resp.RawBody(), nil
}

// classify maps a resty response into the pipeline error taxonomy:
// transport errors and 5xx/auth failures become ErrSourceUnavailable, 429
// becomes RateLimitedError with the reset hint when present. Any 2xx counts
// as success; the rule-add endpoint answers 201 Created.
func classify(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrSourceUnavailable, err)
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return &domain.RateLimitedError{RetryAfter: retryAfter(resp)}
	case !resp.IsSuccess():
		return fmt.Errorf("%s: %w: status %d: %s",
			op, domain.ErrSourceUnavailable, resp.StatusCode(), resp.String())
	}
	return nil
}

// retryAfter extracts a retry hint from rate-limit headers, preferring the
// standard Retry-After seconds value over the x-rate-limit-reset epoch.
func retryAfter(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header().Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
