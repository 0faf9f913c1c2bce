package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"pleezer/internal/model"
)

func TestLoginDecodesUserData(t *testing.T) {
	c := New(http.DefaultClient, zap.NewNop(), nil)

	resp := userDataResponse{}
	resp.Results.CheckForm = "tok123"
	resp.Results.User.UserID = 42
	resp.Results.User.Options.LicenseToken = "lic456"
	resp.Results.User.Options.WebSoundQuality.Lossless = true
	body, _ := json.Marshal(resp)

	var out userDataResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Results.User.UserID != 42 || out.Results.User.Options.LicenseToken != "lic456" {
		t.Errorf("unexpected decode: %+v", out)
	}
	_ = c
}

func TestApiErrorEmptyArrayIsNotAnError(t *testing.T) {
	var out userDataResponse
	if err := json.Unmarshal([]byte(`{"results":{},"error":[]}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Error.empty() {
		t.Error("expected empty array error field to decode as no error")
	}
}

func TestApiErrorObjectIsAnError(t *testing.T) {
	var out userDataResponse
	if err := json.Unmarshal([]byte(`{"results":{},"error":{"VALID_TOKEN_REQUIRED":"..."}}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Error.empty() {
		t.Error("expected object error field to decode as an error")
	}
}

func TestFormatForCodec(t *testing.T) {
	cases := []struct {
		codec model.Codec
		want  string
	}{
		{model.CodecFLAC, "FLAC"},
		{model.CodecMP3, "MP3_320"},
		{model.CodecAACADTS, "MP3_128"},
	}
	for _, tc := range cases {
		if got := formatFor(tc.codec); got != tc.want {
			t.Errorf("formatFor(%v) = %q, want %q", tc.codec, got, tc.want)
		}
	}
}

func TestSecondsToMsParsesDecimalSeconds(t *testing.T) {
	ms, ok := secondsToMs("217.5")
	if !ok || ms != 217500 {
		t.Errorf("secondsToMs(217.5) = (%d, %v), want (217500, true)", ms, ok)
	}
}

func TestSecondsToMsRejectsBlankAndZero(t *testing.T) {
	for _, s := range []string{"", "0", "-1", "garbage"} {
		if _, ok := secondsToMs(s); ok {
			t.Errorf("secondsToMs(%q): ok = true, want false", s)
		}
	}
}

func TestParseGainParsesNegativeDecibels(t *testing.T) {
	gain, ok := parseGain("-6.7")
	if !ok || gain != -6.7 {
		t.Errorf("parseGain(-6.7) = (%v, %v), want (-6.7, true)", gain, ok)
	}
}

func TestMediaURLUnavailableTrack(t *testing.T) {
	// MediaURL hits the hardcoded media.deezer.com host, so this validates
	// response-shape decoding directly rather than through an HTTP round trip.
	var out mediaURLResponse
	if err := json.Unmarshal([]byte(`{"data":[{"errors":[{"code":2001,"message":"Track not available"}]}]}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Errors) == 0 {
		t.Fatal("expected decoded error entry")
	}
}
