package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ludio/questplayer/internal/core"
	"go.uber.org/zap"
)

// DefaultBaseURL is the upstream playlist-items endpoint.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3/playlistItems"

// Page is one fetched slice of a playlist. NextToken is empty when
// upstream has no further pages.
type Page struct {
	Tracks    []core.Track
	NextToken string
}

type ClientOptions struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	// APIKeyUsable gates every fetch; a placeholder credential refuses
	// the call before it leaves the process.
	APIKeyUsable bool
	UserAgent    string
	// PageSize bounds maxResults per request. Distinct from the economic
	// batch size even when the two happen to share a value.
	PageSize int
	Logger   *zap.Logger
}

// Client fetches playlist pages. It never retries: a failed fetch is
// quest-invalidating and retry policy, if any, belongs to the caller.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	keyUsable bool
	userAgent string
	pageSize  int
	logger    *zap.Logger
}

func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		return nil, errors.New("catalog: required options")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("catalog: required http client")
	}
	if opts.PageSize <= 0 {
		return nil, errors.New("catalog: page size must be > 0")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:    opts.HTTPClient,
		baseURL:   baseURL,
		apiKey:    opts.APIKey,
		keyUsable: opts.APIKeyUsable,
		userAgent: opts.UserAgent,
		pageSize:  opts.PageSize,
		logger:    logger,
	}, nil
}

// Upstream wire shapes.

type playlistItemsResponse struct {
	Items         []playlistItem `json:"items"`
	NextPageToken string         `json:"nextPageToken"`
	Error         *upstreamError `json:"error"`
}

type playlistItem struct {
	ID             string `json:"id"`
	ContentDetails struct {
		VideoID  string `json:"videoId"`
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
		Thumbnails   struct {
			Default struct {
				URL string `json:"url"`
			} `json:"default"`
		} `json:"thumbnails"`
	} `json:"snippet"`
}

type upstreamError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FetchPage retrieves one page. pageToken is the opaque continuation
// cursor, empty for the first page.
func (c *Client) FetchPage(ctx context.Context, playlistID, pageToken string) (*Page, error) {
	const op = "catalog.Client.FetchPage"

	if !c.keyUsable {
		return nil, core.NewConfigurationError(
			"upstream api key is missing or still the placeholder", op,
		)
	}
	if playlistID == "" {
		return nil, core.NewValidationError("playlist id required", nil, op)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.requestURL(playlistID, pageToken), nil,
	)
	if err != nil {
		return nil, core.NewInternalError("build request", err, op)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.NewNetworkError("playlist items request", err, op).
			WithMeta("playlist_id", playlistID)
	}
	defer resp.Body.Close()

	decoded := playlistItemsResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, core.NewUpstreamError(
			fmt.Sprintf("malformed upstream response (status %d)", resp.StatusCode), op,
		).WithMeta("playlist_id", playlistID)
	}

	if decoded.Error != nil {
		c.logger.Warn("upstream reported error",
			zap.String("playlist_id", playlistID),
			zap.Int("code", decoded.Error.Code),
			zap.String("message", decoded.Error.Message),
		)
		return nil, core.NewUpstreamError(decoded.Error.Message, op).
			WithMeta("playlist_id", playlistID)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return nil, core.NewUpstreamError(
			fmt.Sprintf("upstream status %d", resp.StatusCode), op,
		).WithMeta("playlist_id", playlistID)
	}

	page := &Page{
		Tracks:    make([]core.Track, 0, len(decoded.Items)),
		NextToken: decoded.NextPageToken,
	}
	for _, item := range decoded.Items {
		thumb := item.Snippet.Thumbnails.Default.URL
		if thumb == "" {
			thumb = core.PlaceholderThumbnailURL
		}
		page.Tracks = append(page.Tracks, core.Track{
			ID:           item.ID,
			MediaID:      item.ContentDetails.VideoID,
			Title:        item.Snippet.Title,
			Attribution:  item.Snippet.ChannelTitle,
			ThumbnailURL: thumb,
			Duration:     core.FormatDuration(item.ContentDetails.Duration),
		})
	}
	return page, nil
}

func (c *Client) requestURL(playlistID, pageToken string) string {
	q := url.Values{}
	q.Set("part", "snippet,contentDetails")
	q.Set("maxResults", fmt.Sprintf("%d", c.pageSize))
	q.Set("playlistId", playlistID)
	q.Set("key", c.apiKey)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	return c.baseURL + "?" + q.Encode()
}
