package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/domain"
	"github.com/dkrugman/pf-aspect/internal/faults"
	"github.com/dkrugman/pf-aspect/internal/httpclient"
	"github.com/dkrugman/pf-aspect/internal/logger"
)

const (
	nixplayLoginPath    = "/www-login/"
	nixplayPlaylistPath = "/v3/playlists/"
	nixplayItemPath     = "slides"

	// Presence of this cookie after the login POST is the only success
	// signal the service gives; the response status is 200 either way.
	nixplaySessionCookie = "prod.session.id"

	nixplayMinInterval = 250 * time.Millisecond
)

// ErrBadCredentials is returned when the service accepts the login request
// but does not hand back a session.
var ErrBadCredentials = errors.New("bad credentials")

var _ Source = (*Nixplay)(nil)

// Nixplay speaks the Nixplay cloud API: session-cookie login, playlist
// listing filtered by the frame identifier, and per-playlist slide listings
// carrying a version counter.
type Nixplay struct {
	name       string
	baseURL    string
	apiURL     *url.URL
	username   string
	password   string
	identifier *regexp.Regexp
	jar        *cookiejar.Jar
	http       *httpclient.Client
	log        *logger.Logger
}

// NewNixplay builds a client from a source configuration. The identifier is
// compiled as an end-anchored pattern against playlist names, so only lists
// meant for this frame are seen.
func NewNixplay(cfg Config, log *logger.Logger) (*Nixplay, error) {
	if log == nil {
		log = logger.Default()
	}
	apiURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, faults.E(faults.KindConfigInvalid, "nixplay.new",
			fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err))
	}
	identifier, err := regexp.Compile(cfg.Identifier + "$")
	if err != nil {
		return nil, faults.E(faults.KindConfigInvalid, "nixplay.new",
			fmt.Errorf("invalid identifier pattern %q: %w", cfg.Identifier, err))
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Timeout: constants.DefaultHTTPTimeout,
		Jar:     jar,
	}
	return &Nixplay{
		name:       cfg.Name,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiURL:     apiURL,
		username:   cfg.Username,
		password:   cfg.Password,
		identifier: identifier,
		jar:        jar,
		http:       httpclient.NewClient(hc, nixplayMinInterval),
		log:        log.WithComponent("nixplay"),
	}, nil
}

func (s *Nixplay) Name() string {
	return s.name
}

// Login submits the account form and verifies the session cookie landed in
// the jar. A missing cookie means the credentials were rejected.
func (s *Nixplay) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("email", s.username)
	form.Set("password", s.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+nixplayLoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return faults.E(faults.KindTransientRemote, "nixplay.login", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if !s.hasSession() {
		return faults.E(faults.KindTransientRemote, "nixplay.login", ErrBadCredentials)
	}
	s.log.Debug("logged in", "source", s.name)
	return nil
}

func (s *Nixplay) hasSession() bool {
	for _, c := range s.jar.Cookies(s.apiURL) {
		if c.Name == nixplaySessionCookie && c.Value != "" {
			return true
		}
	}
	return false
}

// Playlists lists the account's playlists whose names end in the configured
// identifier. IDs arrive as numbers and are carried as strings from here on.
func (s *Nixplay) Playlists(ctx context.Context) ([]domain.RemotePlaylist, error) {
	var resp []struct {
		ID           json.Number     `json:"id"`
		PlaylistName string          `json:"playlist_name"`
		LastUpdated  json.RawMessage `json:"last_updated_date"`
		PictureCount int             `json:"picture_count"`
	}
	if err := s.http.GetJSON(ctx, s.baseURL+nixplayPlaylistPath, nil, &resp); err != nil {
		return nil, faults.E(faults.KindTransientRemote, "nixplay.playlists", err)
	}

	var playlists []domain.RemotePlaylist
	for _, p := range resp {
		if !s.identifier.MatchString(p.PlaylistName) {
			continue
		}
		playlists = append(playlists, domain.RemotePlaylist{
			ID:           p.ID.String(),
			Name:         p.PlaylistName,
			LastUpdated:  rawString(p.LastUpdated),
			PictureCount: p.PictureCount,
		})
	}
	s.log.Debug("fetched playlists", "source", s.name, "matched", len(playlists), "total", len(resp))
	return playlists, nil
}

// Items lists one playlist's slides along with the service's version counter
// for the playlist. Slides without a media ID are dropped.
func (s *Nixplay) Items(ctx context.Context, playlistID string) ([]domain.MediaItem, int64, error) {
	u := s.baseURL + nixplayPlaylistPath + playlistID + "/" + nixplayItemPath + "/"
	var resp struct {
		Version json.Number `json:"slideshowItemsVersion"`
		Slides  []struct {
			MediaItemID string          `json:"mediaItemId"`
			MediaType   string          `json:"mediaType"`
			OriginalURL string          `json:"originalUrl"`
			Caption     string          `json:"caption"`
			Timestamp   json.RawMessage `json:"timestamp"`
			Filename    string          `json:"filename"`
		} `json:"slides"`
	}
	if err := s.http.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, 0, faults.E(faults.KindTransientRemote, "nixplay.items", err)
	}

	version, _ := resp.Version.Int64()
	items := make([]domain.MediaItem, 0, len(resp.Slides))
	for _, slide := range resp.Slides {
		if slide.MediaItemID == "" {
			continue
		}
		items = append(items, domain.MediaItem{
			MediaItemID: slide.MediaItemID,
			MediaType:   slide.MediaType,
			OriginalURL: slide.OriginalURL,
			Caption:     slide.Caption,
			Timestamp:   rawString(slide.Timestamp),
			Filename:    slide.Filename,
			PlaylistID:  playlistID,
		})
	}
	s.log.Debug("fetched playlist items", "source", s.name, "playlist", playlistID,
		"items", len(items), "version", version)
	return items, version, nil
}

// rawString renders a JSON scalar as text: strings are unquoted, numbers keep
// their literal digits. The API is not consistent about which one it sends
// for timestamps.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}
