// Package transcript fetches YouTube video transcripts and metadata.
//
// Transcripts come from a caption-scraping API and the video title and
// thumbnail from YouTube's public oEmbed endpoint. Neither requires an API
// key. The fetched text flows through the normal ingestion path with the
// video ID as its source ID.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidVideoURL indicates a URL no known YouTube form matches.
	ErrInvalidVideoURL = errors.New("invalid video URL")

	// ErrTranscriptUnavailable indicates the video has no fetchable
	// transcript.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
)

// videoIDPattern matches the eleven-character YouTube video ID.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID pulls the video ID out of the common YouTube URL forms:
// watch?v=, youtu.be/ and shorts/.
func ExtractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidVideoURL, err)
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")

	var id string
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	}

	id = strings.TrimSuffix(id, "/")
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoURL, rawURL)
	}
	return id, nil
}

// Metadata is the public metadata of a video.
type Metadata struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Config holds configuration for the transcript client.
type Config struct {
	// CaptionsURL is the caption API endpoint.
	CaptionsURL string

	// OEmbedURL is the oEmbed endpoint for video metadata.
	OEmbedURL string

	// LangCode selects the caption language. Default: "en".
	LangCode string

	// Timeout bounds each outbound request. Default: 30s.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CaptionsURL == "" {
		c.CaptionsURL = "https://tactiq-apps-prod.tactiq.io/transcript"
	}
	if c.OEmbedURL == "" {
		c.OEmbedURL = "https://www.youtube.com/oembed"
	}
	if c.LangCode == "" {
		c.LangCode = "en"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Client fetches transcripts and video metadata.
type Client struct {
	config Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a transcript client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// captionsRequest is the caption API request body.
type captionsRequest struct {
	VideoURL string `json:"videoUrl"`
	LangCode string `json:"langCode"`
}

// captionsResponse is the caption API response body.
type captionsResponse struct {
	Captions []struct {
		Text string `json:"text"`
	} `json:"captions"`
}

// Fetch returns the full transcript text for a video ID, caption segments
// joined with single spaces.
func (c *Client) Fetch(ctx context.Context, videoID string) (string, error) {
	body, err := json.Marshal(captionsRequest{
		VideoURL: "https://www.youtube.com/watch?v=" + videoID,
		LangCode: c.config.LangCode,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.CaptionsURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptUnavailable, resp.StatusCode, string(respBody))
	}

	var captions captionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&captions); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrTranscriptUnavailable, err)
	}

	parts := make([]string, 0, len(captions.Captions))
	for _, caption := range captions.Captions {
		if text := strings.TrimSpace(caption.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: video has no captions", ErrTranscriptUnavailable)
	}

	transcript := strings.Join(parts, " ")

	c.logger.Debug("fetched transcript",
		zap.String("video_id", videoID),
		zap.Int("segments", len(parts)),
		zap.Int("length", len(transcript)),
	)

	return transcript, nil
}

// FetchMetadata returns the video's title and thumbnail via oEmbed. Metadata
// is decoration; callers may proceed without it when this fails.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (Metadata, error) {
	endpoint := fmt.Sprintf("%s?url=%s&format=json",
		c.config.OEmbedURL,
		url.QueryEscape("https://www.youtube.com/watch?v="+videoID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching oEmbed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("oEmbed status %d", resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Metadata{}, fmt.Errorf("decoding oEmbed response: %w", err)
	}

	return meta, nil
}
