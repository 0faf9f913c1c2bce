package remote

import (
	"encoding/json"

	"pleezer/internal/model"
	"pleezer/internal/perrors"
	"pleezer/internal/player"
	"pleezer/internal/resolver"
)

// Command is the JSON envelope carried on the control channel (spec.md
// §4.7: "bodies are either JSON ... or protobuf"; §4.6: "translate
// incoming JSON commands to Player operations").
type Command struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// action names, matching the Player operations table of spec.md §4.6 plus
// the session-level connect/disconnect handshake of §4.8.
const (
	actionConnect    = "connect"
	actionDisconnect = "disconnect"
	actionSetQueue   = "set_queue"
	actionPlay       = "play"
	actionPause      = "pause"
	actionSeek       = "seek"
	actionNext       = "next"
	actionPrev       = "prev"
	actionSetShuffle = "set_shuffle"
	actionSetRepeat  = "set_repeat"
	actionSetVolume  = "set_volume"
	actionSetQuality = "set_quality_preference"
)

type trackIDWire struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (w trackIDWire) toModel() model.TrackID {
	switch w.Kind {
	case "episode":
		return model.Episode(w.ID)
	case "livestream":
		return model.Livestream(w.ID)
	case "user_upload":
		return model.UserUpload(w.ID)
	default:
		return model.Song(w.ID)
	}
}

type queueItemWire struct {
	TrackID trackIDWire `json:"track_id"`
	Context string      `json:"context"`
}

type setQueueParams struct {
	Items      []queueItemWire `json:"items"`
	StartIndex int             `json:"start_index"`
}

type seekParams struct {
	PositionMs int `json:"position_ms"`
}

type setShuffleParams struct {
	Shuffle bool `json:"shuffle"`
}

type setRepeatParams struct {
	Mode string `json:"mode"`
}

func parseRepeatMode(s string) model.RepeatMode {
	switch s {
	case "one":
		return model.RepeatOne
	case "all":
		return model.RepeatAll
	default:
		return model.RepeatOff
	}
}

type setVolumeParams struct {
	Volume int `json:"volume"`
}

type setQualityParams struct {
	Quality string `json:"quality"`
}

func parseQuality(s string) resolver.Quality {
	switch s {
	case "flac":
		return resolver.QualityFLAC
	case "mp3_320":
		return resolver.QualityMP3320
	default:
		return resolver.QualityMP3128
	}
}

type connectParams struct {
	ControllerID string `json:"controller_id"`
}

// dispatch applies cmd to engine. It returns an error for malformed
// params or an unknown action; the caller treats any error as grounds to
// disconnect the controller (spec.md §4.8: "when a command's effect on
// the Player fails, disconnect the controller so it can re-sync").
func dispatch(engine *player.Engine, cmd Command) error {
	switch cmd.Action {
	case actionSetQueue:
		var p setQueueParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding set_queue params", err)
		}
		items := make([]model.QueueItem, len(p.Items))
		for i, it := range p.Items {
			items[i] = model.QueueItem{
				TrackID:         it.TrackID.toModel(),
				PositionInQueue: i,
				Context:         model.Context(it.Context),
			}
		}
		engine.SetQueue(items, p.StartIndex)
	case actionPlay:
		engine.Play()
	case actionPause:
		engine.Pause()
	case actionSeek:
		var p seekParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding seek params", err)
		}
		return engine.Seek(p.PositionMs)
	case actionNext:
		engine.Next()
	case actionPrev:
		engine.Prev()
	case actionSetShuffle:
		var p setShuffleParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding set_shuffle params", err)
		}
		engine.SetShuffle(p.Shuffle)
	case actionSetRepeat:
		var p setRepeatParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding set_repeat params", err)
		}
		engine.SetRepeat(parseRepeatMode(p.Mode))
	case actionSetVolume:
		var p setVolumeParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding set_volume params", err)
		}
		return engine.SetVolume(p.Volume)
	case actionSetQuality:
		var p setQualityParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return perrors.NewProtocol("decoding set_quality_preference params", err)
		}
		engine.SetQualityPreference(parseQuality(p.Quality))
	default:
		return perrors.NewProtocol("unknown command action: "+cmd.Action, nil)
	}
	return nil
}
