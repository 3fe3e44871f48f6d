package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"tunevault/internal/metadata"
)

const playlistIDLength = 22

// Client is a Spotify Web API client that implements metadata.Resolver.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	// Overridable for testing
	tokenURL string
	apiURL   string
}

// New creates a new Spotify client.
func New(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		tokenURL:     "https://accounts.spotify.com/api/token",
		apiURL:       "https://api.spotify.com/v1",
	}
}

func (c *Client) Name() string { return "spotify" }

// IsPlaylistURL reports whether s looks like a Spotify playlist link.
func IsPlaylistURL(s string) bool {
	return strings.Contains(s, "spotify.com/playlist")
}

// ExtractPlaylistID returns the first 22-character path segment of the URL,
// ignoring any query string.
func ExtractPlaylistID(playlistURL string) (string, error) {
	s := strings.TrimSpace(playlistURL)
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}

	for _, part := range strings.Split(s, "/") {
		if utf8.RuneCountInString(part) == playlistIDLength {
			return part, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReference, playlistURL)
}

// Tracks resolves every track of the playlist, following the API's "next"
// links until exhausted. Any failed page fails the whole resolution.
func (c *Client) Tracks(ctx context.Context, playlistURL string) ([]metadata.Track, error) {
	id, err := ExtractPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var tracks []metadata.Track
	next := fmt.Sprintf("%s/playlists/%s/tracks", c.apiURL, url.PathEscape(id))

	for next != "" {
		page, err := c.fetchPage(ctx, next, token)
		if err != nil {
			return nil, err
		}

		tracks = append(tracks, parsePage(page)...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	return tracks, nil
}

// getToken performs a client-credentials exchange for a fresh bearer token.
func (c *Client) getToken(ctx context.Context) (string, error) {
	cc := clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := cc.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &AuthError{StatusCode: retrieveErr.Response.StatusCode, Err: err}
		}
		return "", &AuthError{Err: err}
	}

	return tok.AccessToken, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL, token string) (*tracksPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &UpstreamError{URL: pageURL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UpstreamError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var page tracksPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &UpstreamError{URL: pageURL, Err: fmt.Errorf("failed to decode tracks page: %w", err)}
	}

	return &page, nil
}

// parsePage keeps entries that have both a name and at least one artist.
func parsePage(page *tracksPage) []metadata.Track {
	var tracks []metadata.Track
	for _, item := range page.Items {
		if item.Track == nil || item.Track.Name == "" || len(item.Track.Artists) == 0 {
			continue
		}

		artists := make([]string, len(item.Track.Artists))
		for i, a := range item.Track.Artists {
			artists[i] = a.Name
		}

		tracks = append(tracks, metadata.Track{Title: item.Track.Name, Artists: artists})
	}
	return tracks
}

// Spotify API response types

type tracksPage struct {
	Items []playlistItem `json:"items"`
	Next  *string        `json:"next"`
}

type playlistItem struct {
	Track *trackItem `json:"track"`
}

type trackItem struct {
	Name    string   `json:"name"`
	Artists []artist `json:"artists"`
}

type artist struct {
	Name string `json:"name"`
}
