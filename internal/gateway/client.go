// Package gateway talks to Deezer's private gw-light API and media URL
// issuance endpoint (spec.md §4.1-§4.2): login, token refresh, track-token
// and media-URL lookup, format negotiation. It never touches decryption or
// decoding, which live in internal/decrypt and internal/decode.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pleezer/internal/model"
	"pleezer/internal/perrors"
)

const (
	privateAPIURL = "https://www.deezer.com/ajax/gw-light.php"
	mediaURLAPI   = "https://media.deezer.com/v1/get_url"
	userAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// tokenRefreshWindow is how far ahead of expiry a request proactively
	// reissues getUserData (spec.md §4.1: "token_expiry - now < 60s").
	tokenRefreshWindow = 60 * time.Second

	// maxGatewayAttempts bounds the transient-failure retry loop (spec.md
	// §4.1: retried with backoff, never unbounded).
	maxGatewayAttempts = 5
)

// Client is a stateful Deezer gw-light session scoped to one ARL (spec.md
// §4.1). It is safe for concurrent use.
type Client struct {
	http    *http.Client
	log     *zap.Logger
	limiter *rate.Limiter
	rng     *rand.Rand

	mu           sync.RWMutex
	arl          string
	apiToken     string
	licenseToken string
	userID       string
	tokenExpiry  time.Time
}

// New builds a Client. httpClient should come from internal/netutil so that
// --bind and proxy settings apply uniformly (spec.md §4.4). rng drives the
// retry backoff's jitter; a nil rng falls back to a time-seeded source.
func New(httpClient *http.Client, log *zap.Logger, rng *rand.Rand) *Client {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Client{
		http: httpClient,
		log:  log,
		rng:  rng,
		// gw-light.php is undocumented and rate-limit sensitive; 10req/s
		// is conservative enough to avoid tripping it.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// Login authenticates with arl and returns the resulting session (spec.md
// §4.1: "on startup, or when the controller requests credentials the user
// hasn't supplied, the endpoint logs in with the configured ARL").
func (c *Client) Login(ctx context.Context, arl string) (*model.Session, error) {
	if arl == "" {
		return nil, perrors.NewAuth("arl is empty", nil)
	}

	c.mu.Lock()
	c.arl = arl
	c.mu.Unlock()

	data, err := c.getUserData(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.apiToken = data.Results.CheckForm
	c.licenseToken = data.Results.User.Options.LicenseToken
	c.userID = fmt.Sprintf("%d", data.Results.User.UserID)
	if exp := data.Results.User.Options.ExpirationTimestamp; exp > 0 {
		c.tokenExpiry = time.Unix(exp, 0)
	}
	c.mu.Unlock()

	if data.Results.User.UserID == 0 {
		return nil, perrors.NewAuth("invalid arl: user id is 0", nil)
	}

	sess := &model.Session{
		UserID:          c.userID,
		UserToken:       c.apiToken,
		LicenseToken:    c.licenseToken,
		HQAllowed:       data.Results.User.Options.WebSoundQuality.HQ || data.Results.User.Options.WebHQ,
		LosslessAllowed: data.Results.User.Options.WebSoundQuality.Lossless,
	}
	if exp := data.Results.User.Options.ExpirationTimestamp; exp > 0 {
		sess.TokenExpiry = time.Unix(exp, 0)
	}

	c.log.Info("authenticated", zap.String("user_id", c.userID), zap.Bool("lossless", sess.LosslessAllowed))
	return sess, nil
}

// RefreshToken re-runs Login with the stored ARL (spec.md §4.1: "when
// token_expiry - now < 60s, reissue getUserData before the next request that
// needs api_token").
func (c *Client) RefreshToken(ctx context.Context) (*model.Session, error) {
	c.mu.RLock()
	arl := c.arl
	c.mu.RUnlock()
	if arl == "" {
		return nil, perrors.NewAuth("no session to refresh", nil)
	}
	return c.Login(ctx, arl)
}

// ensureFreshToken proactively refreshes the session when the stored token
// is within tokenRefreshWindow of expiring, so the caller's own request
// never races an expiry (spec.md §4.1, scenario S3: "refreshes silently
// mid-session, no controller disconnect").
func (c *Client) ensureFreshToken(ctx context.Context) error {
	c.mu.RLock()
	expiry := c.tokenExpiry
	c.mu.RUnlock()
	if expiry.IsZero() || time.Until(expiry) >= tokenRefreshWindow {
		return nil
	}
	_, err := c.RefreshToken(ctx)
	return err
}

// noAuthRefreshKey suppresses doRateLimited's on-401 refresh for requests
// issued by Login/RefreshToken themselves, so a bad ARL fails as a plain
// auth error instead of recursing through RefreshToken -> Login -> getUserData
// -> doRateLimited -> RefreshToken indefinitely.
type noAuthRefreshKey struct{}

func withNoAuthRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, noAuthRefreshKey{}, true)
}

func noAuthRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(noAuthRefreshKey{}).(bool)
	return v
}

// getUserData performs deezer.getUserData and decodes the typed response.
func (c *Client) getUserData(ctx context.Context) (*userDataResponse, error) {
	body, err := c.rawRequest(withNoAuthRefresh(ctx), "deezer.getUserData", nil)
	if err != nil {
		return nil, err
	}

	var out userDataResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, perrors.NewProtocol("decoding getUserData response", err)
	}
	if !out.Error.empty() {
		return nil, perrors.NewAuth(fmt.Sprintf("getUserData: %v", map[string]string(out.Error)), nil)
	}
	return &out, nil
}

// TrackToken requests the per-track token required before a media URL can
// be issued (spec.md §4.2, grounded on gw-light's deezer.pageTrack method).
func (c *Client) TrackToken(ctx context.Context, track model.TrackID) (string, error) {
	if err := c.ensureFreshToken(ctx); err != nil {
		return "", err
	}

	body, err := c.rawRequest(ctx, "deezer.pageTrack", map[string]any{"sng_id": track.ID})
	if err != nil {
		return "", err
	}

	var out pageTrackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", perrors.NewProtocol("decoding pageTrack response", err)
	}
	if !out.Error.empty() {
		return "", perrors.NewMedia(fmt.Sprintf("pageTrack: %v", map[string]string(out.Error)), nil)
	}
	if out.Results.Data.TrackToken == "" {
		return "", perrors.NewMedia("pageTrack returned no track token", nil)
	}
	return out.Results.Data.TrackToken, nil
}

// TrackMetaInfo is the descriptive metadata get_track_meta (spec.md §4.1)
// returns: title/artist/album/cover/duration/replay-gain, independent of
// which media URL or quality a separate TrackToken/MediaURL call later
// negotiates.
type TrackMetaInfo struct {
	Title    string
	Artist   string
	Album    string
	CoverID  string
	Duration *int // milliseconds
	GainDB   *float64
}

// TrackMeta fetches track/episode descriptive metadata (spec.md §4.1:
// get_track_meta, backed by song.getListData for songs and user uploads,
// episode.getData for podcast episodes). Livestreams carry none of this and
// are not a valid input.
func (c *Client) TrackMeta(ctx context.Context, track model.TrackID) (*TrackMetaInfo, error) {
	if err := c.ensureFreshToken(ctx); err != nil {
		return nil, err
	}
	if track.Kind == model.KindEpisode {
		return c.episodeMeta(ctx, track)
	}
	return c.songMeta(ctx, track)
}

func (c *Client) songMeta(ctx context.Context, track model.TrackID) (*TrackMetaInfo, error) {
	body, err := c.rawRequest(ctx, "song.getListData", map[string]any{"sng_ids": []string{track.ID}})
	if err != nil {
		return nil, err
	}

	var out trackListResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, perrors.NewProtocol("decoding song.getListData response", err)
	}
	if !out.Error.empty() {
		return nil, perrors.NewMedia(fmt.Sprintf("song.getListData: %v", map[string]string(out.Error)), nil)
	}
	if len(out.Results.Data) == 0 {
		return nil, perrors.NewMedia("song.getListData returned no data", nil)
	}
	d := out.Results.Data[0]

	meta := &TrackMetaInfo{
		Title:   d.Title,
		Artist:  d.ArtistName,
		Album:   d.AlbumTitle,
		CoverID: d.AlbumCover,
	}
	if ms, ok := secondsToMs(d.Duration); ok {
		meta.Duration = &ms
	}
	if gain, ok := parseGain(d.Gain); ok {
		meta.GainDB = &gain
	}
	return meta, nil
}

func (c *Client) episodeMeta(ctx context.Context, track model.TrackID) (*TrackMetaInfo, error) {
	body, err := c.rawRequest(ctx, "episode.getData", map[string]any{"episode_id": track.ID})
	if err != nil {
		return nil, err
	}

	var out episodeDataResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, perrors.NewProtocol("decoding episode.getData response", err)
	}
	if !out.Error.empty() {
		return nil, perrors.NewMedia(fmt.Sprintf("episode.getData: %v", map[string]string(out.Error)), nil)
	}

	meta := &TrackMetaInfo{
		Title:   out.Results.Title,
		Artist:  out.Results.ShowName,
		CoverID: out.Results.PictureID,
	}
	if ms, ok := secondsToMs(out.Results.Duration); ok {
		meta.Duration = &ms
	}
	return meta, nil
}

// secondsToMs parses a gw-light decimal-seconds duration string into
// milliseconds. Returns ok=false for blank, unparsable or non-positive
// values rather than erroring: livestreams and some user uploads simply
// don't carry a usable duration.
func secondsToMs(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(f * 1000), true
}

// parseGain parses a gw-light decimal-dB replay gain string.
func parseGain(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// formatFor maps a resolver-requested codec to the gw-light FORMAT string
// (spec.md §4.2 quality ladder: FLAC > MP3_320 > MP3_128).
func formatFor(codec model.Codec) string {
	switch codec {
	case model.CodecFLAC:
		return "FLAC"
	case model.CodecMP3:
		return "MP3_320"
	default:
		return "MP3_128"
	}
}

// MediaURL issues a media URL for track using trackToken, requesting codec
// under the fixed BF_CBC_STRIPE cipher (spec.md §4.2, §5: "the gateway never
// issues media URLs under any cipher but BF_CBC_STRIPE").
func (c *Client) MediaURL(ctx context.Context, trackToken string, codec model.Codec) (string, error) {
	if err := c.ensureFreshToken(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	license := c.licenseToken
	c.mu.RUnlock()
	if license == "" {
		return "", perrors.NewAuth("no license token; login first", nil)
	}

	reqBody := mediaURLRequest{
		LicenseToken: license,
		Media: []mediaRequestItem{{
			Type: "FULL",
			Formats: []mediaFormatSpec{{
				Cipher: "BF_CBC_STRIPE",
				Format: formatFor(codec),
			}},
		}},
		TrackTokens: []string{trackToken},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", perrors.NewInternal("marshaling media url request", err)
	}

	build := func() (*http.Request, error) {
		c.mu.RLock()
		arl := c.arl
		c.mu.RUnlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, mediaURLAPI, bytes.NewReader(payload))
		if err != nil {
			return nil, perrors.NewInternal("building media url request", err)
		}
		req.Header.Set("Cookie", "arl="+arl)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := c.doRateLimited(ctx, build)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perrors.NewNetwork("reading media url response", err)
	}

	var out mediaURLResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", perrors.NewProtocol("decoding media url response", err)
	}
	if len(out.Data) == 0 {
		return "", perrors.NewMedia("media url response had no data", nil)
	}
	track := out.Data[0]
	if len(track.Errors) > 0 {
		return "", perrors.NewMedia(fmt.Sprintf("track unavailable: %s", track.Errors[0].Message), nil)
	}
	if len(track.Media) == 0 || len(track.Media[0].Sources) == 0 {
		return "", perrors.NewMedia("media url response had no sources", nil)
	}
	return track.Media[0].Sources[0].URL, nil
}

// rawRequest performs one gw-light.php call, retrying transient failures,
// and returns the raw JSON body. It rebuilds the request fresh on every
// attempt (arl/api_token read under lock each time) since a refreshed token
// mid-retry must be picked up and an *http.Request's body can only be read
// once.
func (c *Client) rawRequest(ctx context.Context, method string, params map[string]any) ([]byte, error) {
	var payload []byte
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, perrors.NewInternal("marshaling gw-light params", err)
		}
		payload = b
	}

	build := func() (*http.Request, error) {
		c.mu.RLock()
		arl, apiToken := c.arl, c.apiToken
		c.mu.RUnlock()

		url := fmt.Sprintf("%s?method=%s&input=3&api_version=1.0&api_token=%s", privateAPIURL, method, apiToken)
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, perrors.NewInternal("building gw-light request", err)
		}
		req.Header.Set("Cookie", "arl="+arl)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := c.doRateLimited(ctx, build)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perrors.NewNetwork("reading gw-light response", err)
	}
	return respBody, nil
}

// doRateLimited waits on the limiter and performs the request newReq builds,
// retrying transient network/5xx failures with exponential backoff (spec.md
// §4.1: "transient gateway failures are retried with backoff, base 1s, cap
// 60s, jittered"). A 401/403 triggers one token refresh before the next
// attempt rather than bubbling straight up, since gw-light returning
// "token expired" mid-session must refresh silently (spec.md §4.1 scenario
// S3). newReq is called fresh on every attempt: an *http.Request's body can
// only be read once, and a refreshed api_token must be picked up.
func (c *Client) doRateLimited(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response
	err := perrors.Retry(ctx, perrors.DefaultBackoff(), maxGatewayAttempts, c.rng, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return perrors.NewInternal("rate limiter wait", err)
		}

		req, err := newReq()
		if err != nil {
			return err
		}

		r, err := c.http.Do(req)
		if err != nil {
			return perrors.NewNetwork("gw-light request failed", err)
		}

		switch {
		case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
			r.Body.Close()
			if !noAuthRefresh(ctx) {
				if _, rerr := c.RefreshToken(ctx); rerr != nil {
					c.log.Warn("token refresh after 401/403 failed", zap.Error(rerr))
				}
			}
			return perrors.NewAuthExpired("gateway rejected credentials", nil)
		case r.StatusCode == http.StatusOK:
			resp = r
			return nil
		case r.StatusCode >= 500:
			r.Body.Close()
			return perrors.NewNetwork(fmt.Sprintf("gw-light returned status %d", r.StatusCode), nil)
		default:
			r.Body.Close()
			return perrors.NewProtocol(fmt.Sprintf("gw-light returned status %d", r.StatusCode), nil)
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
