// Package resolver turns a queue item into a playable track (spec.md
// §4.2): it asks the gateway for metadata and a media URL, negotiates
// quality against the subscription ceiling and the controller's stated
// preference, and falls back down the quality ladder, trying each quality
// at most once per track.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"pleezer/internal/decrypt"
	"pleezer/internal/gateway"
	"pleezer/internal/model"
	"pleezer/internal/perrors"
)

// Quality is a resolver-internal ranking of codecs, highest first, used to
// walk the fallback ladder (spec.md §4.2: "falls back to next-lower").
type Quality int

const (
	QualityFLAC Quality = iota
	QualityMP3320
	QualityMP3128
)

func (q Quality) codec() model.Codec {
	switch q {
	case QualityFLAC:
		return model.CodecFLAC
	case QualityMP3320:
		return model.CodecMP3
	default:
		return model.CodecMP3
	}
}

func (q Quality) bitrateHint() int {
	switch q {
	case QualityFLAC:
		return 1411
	case QualityMP3320:
		return 320
	default:
		return 128
	}
}

// ladder lists qualities from best to worst starting at ceiling.
func ladder(ceiling Quality) []Quality {
	all := []Quality{QualityFLAC, QualityMP3320, QualityMP3128}
	for i, q := range all {
		if q == ceiling {
			return all[i:]
		}
	}
	return all
}

// Entitlements is the subset of a resolved session needed to cap quality
// (spec.md §4.1 "get_user_options": subscription quality ceiling).
type Entitlements struct {
	LosslessAllowed bool
	HQAllowed       bool
}

// ceilingFor combines subscription entitlements with the controller's
// requested preference (spec.md §4.2: "min(subscription_ceiling,
// controller_quality_preference)").
func ceilingFor(ent Entitlements, preference Quality) Quality {
	subCeiling := QualityMP3128
	if ent.HQAllowed {
		subCeiling = QualityMP3320
	}
	if ent.LosslessAllowed {
		subCeiling = QualityFLAC
	}
	if preference > subCeiling {
		return preference
	}
	return subCeiling
}

// Resolver resolves queue items against one gateway.Client. secret is the
// per-installation Blowfish secret (spec.md §4.3); it is never hardcoded here
// and must be supplied by the caller (cmd/pleezer passes an all-zero
// placeholder).
type Resolver struct {
	gw     *gateway.Client
	log    *zap.Logger
	secret [decrypt.SecretSize]byte
}

func New(gw *gateway.Client, log *zap.Logger, secret [decrypt.SecretSize]byte) *Resolver {
	return &Resolver{gw: gw, log: log, secret: secret}
}

// Resolved is what the player needs to hand off to an AudioFile + decoder:
// the metadata plus (for encrypted sources) the cipher key.
type Resolved struct {
	Meta model.TrackMeta
}

// Resolve fetches a playable source for item, walking the quality ladder
// from the negotiated ceiling down on media errors. Each quality is tried
// exactly once per call, so the number of attempts is bounded by the ladder
// length (spec.md §4.2 edge case: "finite retry cap = 1 for unavailable,
// infinite loops are forbidden"); any non-media error stops the walk.
func (r *Resolver) Resolve(ctx context.Context, item model.QueueItem, ent Entitlements, preference Quality) (*Resolved, error) {
	if item.TrackID.Kind == model.KindLivestream {
		return r.resolveLivestream(ctx, item, preference)
	}

	token, err := r.gw.TrackToken(ctx, item.TrackID)
	if err != nil {
		return nil, err
	}

	// get_track_meta (spec.md §4.1) is independent of quality negotiation;
	// a failure here is a descriptive-metadata miss, not a media failure,
	// so it's logged and tolerated rather than aborting playback.
	info, err := r.gw.TrackMeta(ctx, item.TrackID)
	if err != nil {
		r.log.Warn("track metadata unavailable, playing with blank tags",
			zap.String("track_id", item.TrackID.ID), zap.Error(err))
		info = &gateway.TrackMetaInfo{}
	}

	qualities := ladder(ceilingFor(ent, preference))

	var lastErr error
	for i, q := range qualities {
		url, err := r.gw.MediaURL(ctx, token, q.codec())
		if err == nil {
			meta := model.TrackMeta{
				TrackID:     item.TrackID,
				Title:       info.Title,
				Artist:      info.Artist,
				Album:       info.Album,
				CoverID:     info.CoverID,
				Duration:    info.Duration,
				GainDB:      info.GainDB,
				Codec:       q.codec(),
				BitrateKbps: q.bitrateHint(),
				MediaURL:    url,
			}
			// Podcast episodes stream from an external, unencrypted URL
			// (spec.md §4.2 edge case); every other kind is BF_CBC_STRIPE.
			if item.TrackID.Kind != model.KindEpisode {
				key := decrypt.GenerateKey(item.TrackID.ID, r.secret)
				meta.CipherKey = &key
			}
			return &Resolved{Meta: meta}, nil
		}
		lastErr = err
		if perrors.TypeOf(err) != perrors.TypeMedia {
			return nil, err
		}
		r.log.Warn("quality unavailable, falling back",
			zap.String("track_id", item.TrackID.ID),
			zap.Int("tried", i),
			zap.Error(err))
	}

	return nil, perrors.NewMedia("track unavailable at every quality", lastErr)
}

func (r *Resolver) resolveLivestream(ctx context.Context, item model.QueueItem, preference Quality) (*Resolved, error) {
	token, err := r.gw.TrackToken(ctx, item.TrackID)
	if err != nil {
		return nil, err
	}
	url, err := r.gw.MediaURL(ctx, token, model.CodecHLS)
	if err != nil {
		return nil, err
	}
	return &Resolved{Meta: model.TrackMeta{
		TrackID:  item.TrackID,
		Codec:    model.CodecHLS,
		MediaURL: url,
	}}, nil
}
