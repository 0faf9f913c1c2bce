package gateway

import "encoding/json"

// apiError normalizes the Deezer private API's "error" field, which arrives
// as either [] (no error), {} (no error), or an {code: message} object.
type apiError map[string]string

func (e *apiError) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		*e = obj
		return nil
	}
	// Anything that isn't an object (notably the empty-array case) carries no error.
	*e = nil
	return nil
}

func (e apiError) empty() bool { return len(e) == 0 }

// userDataResponse mirrors the subset of deezer.getUserData's "results" this
// client cares about (spec.md §4.1: login, token refresh, HQ/lossless
// entitlement flags).
type userDataResponse struct {
	Results struct {
		CheckForm string `json:"checkForm"`
		User      struct {
			UserID  int64  `json:"USER_ID"`
			Blog    string `json:"BLOG_NAME"`
			Options struct {
				LicenseToken    string `json:"license_token"`
				WebHQ           bool   `json:"web_hq"`
				WebSoundQuality struct {
					Lossless bool `json:"lossless"`
					HQ       bool `json:"high_quality"`
				} `json:"web_sound_quality"`
				ExpirationTimestamp int64 `json:"expiration_timestamp"`
			} `json:"OPTIONS"`
		} `json:"USER"`
	} `json:"results"`
	Error apiError `json:"error"`
}

// pageTrackResponse mirrors deezer.pageTrack's "results.DATA", which carries
// the per-track token required by media.deezer.com/v1/get_url.
type pageTrackResponse struct {
	Results struct {
		Data struct {
			TrackToken string `json:"TRACK_TOKEN"`
		} `json:"DATA"`
	} `json:"results"`
	Error apiError `json:"error"`
}

// trackListResponse mirrors song.getListData's "results.data[0]", the
// subset of catalog metadata get_track_meta needs: title, artist, album,
// cover, duration and replay gain (spec.md §4.1).
type trackListResponse struct {
	Results struct {
		Data []struct {
			Title      string `json:"SNG_TITLE"`
			ArtistName string `json:"ART_NAME"`
			AlbumTitle string `json:"ALB_TITLE"`
			AlbumCover string `json:"ALB_PICTURE"`
			Duration   string `json:"DURATION"` // seconds, decimal string
			Gain       string `json:"GAIN"`      // dB, decimal string
		} `json:"data"`
	} `json:"results"`
	Error apiError `json:"error"`
}

// episodeDataResponse mirrors episode.getData's "results", the podcast
// episode metadata get_track_meta needs.
type episodeDataResponse struct {
	Results struct {
		Title     string `json:"EPISODE_TITLE"`
		ShowName  string `json:"SHOW_NAME"`
		Duration  string `json:"DURATION"`
		PictureID string `json:"EPISODE_IMAGE_MD5"`
	} `json:"results"`
	Error apiError `json:"error"`
}

// mediaURLRequest is the body POSTed to media.deezer.com/v1/get_url
// (spec.md §4.2: media URL issuance, cipher always BF_CBC_STRIPE).
type mediaURLRequest struct {
	LicenseToken string             `json:"license_token"`
	Media        []mediaRequestItem `json:"media"`
	TrackTokens  []string           `json:"track_tokens"`
}

type mediaRequestItem struct {
	Type    string            `json:"type"`
	Formats []mediaFormatSpec `json:"formats"`
}

type mediaFormatSpec struct {
	Cipher string `json:"cipher"`
	Format string `json:"format"`
}

type mediaURLResponse struct {
	Data []struct {
		Media []struct {
			Sources []struct {
				URL string `json:"url"`
			} `json:"sources"`
		} `json:"media"`
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"data"`
}
