package player

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"pleezer/internal/audiofile"
	"pleezer/internal/decode"
	"pleezer/internal/decrypt"
	"pleezer/internal/dsp"
	"pleezer/internal/events"
	"pleezer/internal/model"
	"pleezer/internal/perrors"
	"pleezer/internal/resolver"
)

// PreloadThreshold is how far into the current track (as a fraction of
// duration) the engine starts resolving+opening the next item (spec.md
// §4.6: "near end").
const PreloadThreshold = 0.92

// frameBatch is how many interleaved samples the play loop pulls per
// iteration; small enough to keep seek/pause latency low, large enough to
// amortize per-call overhead.
const frameBatch = 4096

// DeviceFactory opens a Device for the given PCM format, lazily, on first
// playback after controller connect (spec.md §4.6).
type DeviceFactory func(decode.Format) (Device, error)

// Engine is pleezer's playback state machine (spec.md §4.6). All exported
// methods acquire mu, making the engine's logical single-threadedness
// explicit even though the play loop runs on its own goroutine.
type Engine struct {
	mu  sync.Mutex
	log *zap.Logger
	rng *rand.Rand

	httpClient *http.Client
	resolver   *resolver.Resolver
	newDevice  DeviceFactory
	entitle    resolver.Entitlements
	quality    resolver.Quality
	dspOpts    dsp.Options
	maxRAMBytes int64

	state  State
	queue  *model.Queue
	volume int

	current *slot
	preload *slot
	device  Device

	loopCtx    context.Context
	loopCancel context.CancelFunc

	onStop  func(err error)                          // notifies the remote session a stop needs publishing
	onEvent func(kind events.Kind, fields events.Fields) // publishes playing/paused/track_changed
}

// Config bundles Engine's fixed dependencies.
type Config struct {
	HTTPClient   *http.Client
	Resolver     *resolver.Resolver
	NewDevice    DeviceFactory
	Log          *zap.Logger
	Rng          *rand.Rand
	DSPOptions   dsp.Options
	InitialVol   int
	// MaxRAMBytes bounds an AudioFile's in-RAM buffer before it spills to a
	// temp file (spec.md §6 --max-ram); 0 falls back to an 8 MiB default.
	MaxRAMBytes int64
	OnStop      func(err error)
	// OnEvent publishes the engine's playing/paused/track_changed transitions
	// (spec.md §4.8 Rules, testable scenario S1). Wired directly to the
	// events.Sink rather than routed through remote.Session, since
	// internal/remote already imports internal/player.
	OnEvent func(kind events.Kind, fields events.Fields)
}

func NewEngine(cfg Config) *Engine {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	maxRAM := cfg.MaxRAMBytes
	if maxRAM <= 0 {
		maxRAM = 8 << 20
	}
	return &Engine{
		log:         cfg.Log,
		rng:         rng,
		httpClient:  cfg.HTTPClient,
		resolver:    cfg.Resolver,
		newDevice:   cfg.NewDevice,
		dspOpts:     cfg.DSPOptions,
		volume:      cfg.InitialVol,
		state:       StateStopped,
		onStop:      cfg.OnStop,
		onEvent:     cfg.OnEvent,
		maxRAMBytes: maxRAM,
	}
}

// State returns the engine's current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Progress reports (position_ms, duration_ms?) (spec.md §4.6). Frozen while
// paused: it simply reads the slot's last-updated positionMs, which the
// play loop only advances while Playing.
func (e *Engine) Progress() (int, *int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0, nil
	}
	var dur *int
	if ms, ok := e.current.durationMs(); ok {
		dur = &ms
	}
	return e.current.positionMs, dur
}

// SetQueue replaces the queue and loads startIndex (spec.md §4.6).
func (e *Engine) SetQueue(items []model.QueueItem, startIndex int) {
	e.mu.Lock()
	q := model.NewQueue(items, startIndex)
	e.queue = q
	e.teardownLocked(nil)
	item, ok := q.Current()
	e.mu.Unlock()

	if ok {
		e.loadCurrent(item)
	}
}

// SetQualityPreference influences the resolver on the next load (spec.md
// §4.6); it does not retroactively re-resolve the current track.
func (e *Engine) SetQualityPreference(q resolver.Quality) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quality = q
}

// SetEntitlements updates the subscription ceiling the resolver honors
// (spec.md §4.1 get_user_options).
func (e *Engine) SetEntitlements(ent resolver.Entitlements) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entitle = ent
}

// SetVolume sets [0,100] volume, applied by the DSP chain on the next
// processed block (spec.md §4.6). It fails when there is no loaded track to
// apply it to (spec.md §4.8 Rules' named example: "set_volume on a stopped
// device"), so the controller dispatching it gets disconnected to re-sync.
func (e *Engine) SetVolume(v int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return perrors.NewMedia("set_volume: no track loaded", nil)
	}
	e.volume = v
	if e.current.chain != nil {
		e.current.chain.SetVolume(v)
	}
	return nil
}

// SetShuffle rewrites queue order, preserving the current item identity
// (spec.md §4.6, §3 invariant).
func (e *Engine) SetShuffle(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		e.queue.SetShuffle(on, e.rng)
	}
}

// SetRepeat sets the queue's repeat mode (spec.md §4.6).
func (e *Engine) SetRepeat(mode model.RepeatMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		e.queue.RepeatMode = mode
	}
}

// Play resumes or starts playback with a volume ramp (spec.md §4.6).
func (e *Engine) Play() {
	e.mu.Lock()
	if e.state == StatePlaying || e.current == nil {
		e.mu.Unlock()
		return
	}
	e.state = StatePlaying
	ctx, cancel := context.WithCancel(context.Background())
	e.loopCtx, e.loopCancel = ctx, cancel
	cur := e.current
	e.mu.Unlock()

	go e.playLoop(ctx, cur)
}

// Pause stops feeding the device, freezing position (spec.md §4.6).
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.state = StatePaused
	cur := e.current
	if e.loopCancel != nil {
		e.loopCancel()
	}
	e.mu.Unlock()

	e.emitPaused(cur)
}

// Stop halts playback and tears down the device (spec.md §4.6: device
// lifecycle, "closed on controller disconnect").
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked(nil)
}

func (e *Engine) teardownLocked(err error) {
	if e.loopCancel != nil {
		e.loopCancel()
	}
	if e.current != nil {
		e.current.close()
		e.current = nil
	}
	if e.preload != nil {
		e.preload.close()
		e.preload = nil
	}
	if e.device != nil {
		e.device.Close()
		e.device = nil
	}
	e.state = StateStopped
	if err != nil && e.onStop != nil {
		go e.onStop(err)
	}
}

// Next advances per repeat_mode (spec.md §4.6).
func (e *Engine) Next() {
	e.mu.Lock()
	if e.queue == nil {
		e.mu.Unlock()
		return
	}
	item, ok := e.queue.Next()
	wasPlaying := e.state == StatePlaying
	e.mu.Unlock()
	if !ok {
		e.Stop()
		return
	}
	e.advanceTo(item, wasPlaying)
}

// Prev rewinds one position (spec.md §4.6).
func (e *Engine) Prev() {
	e.mu.Lock()
	if e.queue == nil {
		e.mu.Unlock()
		return
	}
	item, ok := e.queue.Prev()
	wasPlaying := e.state == StatePlaying
	e.mu.Unlock()
	if !ok {
		return
	}
	e.advanceTo(item, wasPlaying)
}

func (e *Engine) advanceTo(item model.QueueItem, resumePlaying bool) {
	e.mu.Lock()
	// If a preload for this exact item is already in flight, reuse it
	// (spec.md §4.6: "if user skips before promotion, reuse the in-flight
	// preload download rather than restart").
	var reuse *slot
	if e.preload != nil && e.preload.item.TrackID == item.TrackID {
		reuse = e.preload
		e.preload = nil
	}
	e.teardownLocked(nil)
	e.mu.Unlock()

	if reuse != nil {
		e.mu.Lock()
		e.current = reuse
		e.mu.Unlock()
	} else {
		e.loadCurrent(item)
	}
	if resumePlaying {
		e.Play()
	}
}

// Seek clamps into [0, duration] and only into the buffered region (spec.md
// §4.6, §4.4).
func (e *Engine) Seek(posMs int) error {
	e.mu.Lock()
	cur := e.current
	e.mu.Unlock()
	if cur == nil {
		return perrors.NewInternal("seek with no current track", nil)
	}
	if dur, ok := cur.durationMs(); ok {
		if posMs < 0 {
			posMs = 0
		}
		if posMs > dur {
			posMs = dur
		}
	}
	if cur.decoder == nil {
		return perrors.NewMedia("seek before track finished loading", nil)
	}
	seeker, ok := cur.decoder.(interface {
		SeekFrame(frame int64) error
	})
	if !ok {
		return perrors.NewMedia("decoder does not support seeking", nil)
	}
	format := cur.decoder.Format()
	frame := int64(posMs) * int64(format.SampleRate) / 1000
	if err := seeker.SeekFrame(frame); err != nil {
		return err
	}
	e.mu.Lock()
	cur.positionMs = posMs
	e.mu.Unlock()
	return nil
}

// loadCurrent resolves and opens item asynchronously, installing it as
// current once ready; playback continues only once this completes.
func (e *Engine) loadCurrent(item model.QueueItem) {
	s := newSlot(item)
	e.mu.Lock()
	e.current = s
	e.state = StateLoading
	ent, q := e.entitle, e.quality
	e.mu.Unlock()

	go e.openSlot(context.Background(), s, ent, q)
}

// maybePreload starts resolving the next queue item once playback has
// crossed PreloadThreshold (spec.md §4.6).
func (e *Engine) maybePreload() {
	e.mu.Lock()
	if e.queue == nil || e.preload != nil {
		e.mu.Unlock()
		return
	}
	next, ok := e.queue.PeekNext()
	ent, q := e.entitle, e.quality
	if !ok {
		e.mu.Unlock()
		return
	}
	s := newSlot(next)
	e.preload = s
	e.mu.Unlock()

	go e.openSlot(context.Background(), s, ent, q)
}

// openSlot performs resolve -> AudioFile -> optional decrypt -> decode,
// signaling readiness via s.ready.
func (e *Engine) openSlot(ctx context.Context, s *slot, ent resolver.Entitlements, q resolver.Quality) {
	defer close(s.ready)

	resolved, err := e.resolver.Resolve(ctx, s.item, ent, q)
	if err != nil {
		s.err = err
		return
	}
	s.meta = resolved.Meta

	if s.meta.IsLivestream() {
		s.err = perrors.NewMedia("livestream playback requires the HLS demuxer, not yet wired into openSlot", nil)
		return
	}

	af, err := audiofile.Open(ctx, e.httpClient, s.meta.MediaURL, nil, audiofile.Options{Backing: audiofile.BackingAuto, MaxRAM: e.maxRAMBytes})
	if err != nil {
		s.err = err
		return
	}

	var src io.ReadSeeker = af.NewReader()
	if s.meta.CipherKey != nil {
		src = decrypt.NewReader(af.NewReader(), *s.meta.CipherKey)
	}

	dec, err := decode.Open(src, s.meta.Codec)
	if err != nil {
		s.err = err
		return
	}
	s.decoder = dec

	if s.item.TrackID.Kind == model.KindUserUpload {
		e.enrichUserUpload(s, af)
	}

	opts := e.dspOpts
	opts.SampleRate = dec.Format().SampleRate
	opts.Channels = dec.Format().Channels
	s.chain = dsp.NewChain(opts, s.meta.GainDB, e.rng)
}

// enrichUserUpload fills in metadata the catalog RPCs don't carry for
// user-uploaded tracks (spec.md §4.2 edge case): the actual encoded MP3
// bitrate excluding ID3 tag and embedded art, and FLAC VORBIS_COMMENT/
// PICTURE fallback for title/artist/cover when the gateway left them blank.
func (e *Engine) enrichUserUpload(s *slot, af *audiofile.File) {
	probe := func() io.ReadSeeker {
		r := af.NewReader()
		if s.meta.CipherKey != nil {
			return decrypt.NewReader(r, *s.meta.CipherKey)
		}
		return r
	}

	switch s.meta.Codec {
	case model.CodecMP3:
		if s.meta.Duration == nil {
			return
		}
		size, ok := af.Len()
		if !ok {
			return
		}
		kbps, err := resolver.ComputeUserUploadBitrate(probe(), size, *s.meta.Duration)
		if err != nil {
			e.log.Debug("user upload bitrate probe failed", zap.Error(err))
			return
		}
		s.meta.BitrateKbps = kbps

	case model.CodecFLAC:
		if s.meta.Title != "" && s.meta.Artist != "" && s.meta.CoverID != "" {
			return
		}
		data, err := io.ReadAll(probe())
		if err != nil {
			e.log.Debug("user upload tag probe: reading file failed", zap.Error(err))
			return
		}
		if s.meta.Title == "" || s.meta.Artist == "" {
			if tags, err := decode.TagsFromFLAC(data); err == nil {
				if s.meta.Title == "" {
					s.meta.Title = tags.Title
				}
				if s.meta.Artist == "" {
					s.meta.Artist = tags.Artist
				}
			}
		}
		if s.meta.CoverID == "" {
			if id, err := decode.CoverIDFromFLAC(data); err == nil && id != "" {
				s.meta.CoverID = id
			}
		}
	}
}

// emitTrackChanged publishes track_changed exactly once per slot (spec.md
// §4.8 Rules, scenario S1: "track_changed not re-emitted").
func (e *Engine) emitTrackChanged(s *slot) {
	if e.onEvent == nil || s.announced {
		return
	}
	s.announced = true
	e.onEvent(events.TrackChanged, e.fieldsFor(s))
}

func (e *Engine) emitPlaying(s *slot) {
	if e.onEvent == nil {
		return
	}
	e.onEvent(events.Playing, e.fieldsFor(s))
}

func (e *Engine) emitPaused(s *slot) {
	if e.onEvent == nil || s == nil {
		return
	}
	e.onEvent(events.Paused, e.fieldsFor(s))
}

// fieldsFor builds the hook environment for s (spec.md §6: audio format and
// decoder output format are published as part of track_changed).
func (e *Engine) fieldsFor(s *slot) events.Fields {
	f := events.Fields{
		TrackType:  s.item.TrackID.Kind.String(),
		TrackID:    s.item.TrackID.ID,
		Title:      s.meta.Title,
		Artist:     s.meta.Artist,
		AlbumTitle: s.meta.Album,
		CoverID:    s.meta.CoverID,
		Format:     formatLabel(s.meta),
	}
	if s.meta.Duration != nil {
		ms := *s.meta.Duration
		f.DurationMs = &ms
	}
	if s.decoder != nil {
		f.Decoder = e.decoderLabel(s.decoder.Format())
	}
	return f
}

// formatLabel renders a track's codec+bitrate the way spec.md §8's S1
// expects it: "MP3 128K", "FLAC", etc.
func formatLabel(m model.TrackMeta) string {
	switch m.Codec {
	case model.CodecFLAC:
		return "FLAC"
	case model.CodecMP3:
		return fmt.Sprintf("MP3 %dK", m.BitrateKbps)
	case model.CodecAACADTS, model.CodecAACMP4:
		return fmt.Sprintf("AAC %dK", m.BitrateKbps)
	case model.CodecWAV:
		return "WAV"
	case model.CodecHLS:
		return "HLS"
	default:
		return string(m.Codec)
	}
}

// decoderLabel renders the decoder's PCM output format (spec.md §6:
// "PCM 16 bit 44.1 kHz, Stereo"). The bit depth reported is the DSP chain's
// configured target (0 --dither-bits means the device's native float32 path,
// reported as 16-bit since that's what internal/device ultimately writes).
func (e *Engine) decoderLabel(f decode.Format) string {
	bits := e.dspOpts.TargetBits
	if bits <= 0 {
		bits = 16
	}
	return fmt.Sprintf("PCM %d bit %.1f kHz, %s", bits, float64(f.SampleRate)/1000, channelLabel(f.Channels))
}

func channelLabel(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

// playLoop pulls frames from cur.decoder, runs the DSP chain, writes to the
// device, and advances position until paused/stopped/EOF.
func (e *Engine) playLoop(ctx context.Context, cur *slot) {
	select {
	case <-cur.ready:
	case <-ctx.Done():
		return
	}
	if cur.err != nil {
		e.teardownLocked(cur.err)
		return
	}

	e.emitTrackChanged(cur)
	e.emitPlaying(cur)

	e.mu.Lock()
	if e.device == nil {
		dev, err := e.newDevice(cur.decoder.Format())
		if err != nil {
			e.mu.Unlock()
			e.teardownLocked(perrors.NewDevice("opening audio device", err))
			return
		}
		e.device = dev
	}
	dev := e.device
	vol := e.volume
	e.mu.Unlock()
	cur.chain.SetVolume(vol)

	ramp := dsp.NewRamp(0, 1, 20, cur.decoder.Format().SampleRate)
	buf := make([]float32, frameBatch*cur.decoder.Format().Channels)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := cur.decoder.ReadFrames(buf)
		if n > 0 {
			frame := buf[:n]
			dsp.ApplyRamp(frame, cur.decoder.Format().Channels, ramp)
			cur.chain.Process(frame, cur.decoder.Format().Channels)
			if werr := dev.Write(frame); werr != nil {
				e.teardownLocked(perrors.NewDevice("writing to audio device", werr))
				return
			}
			e.mu.Lock()
			cur.positionMs += n / cur.decoder.Format().Channels * 1000 / cur.decoder.Format().SampleRate
			e.mu.Unlock()

			if dur, ok := cur.durationMs(); ok && dur > 0 {
				if float64(cur.positionMs)/float64(dur) >= PreloadThreshold {
					e.maybePreload()
				}
			}
		}
		if err == io.EOF {
			e.onTrackEnd()
			return
		}
		if err != nil {
			e.teardownLocked(err)
			return
		}
	}
}

// onTrackEnd promotes preload to current (gapless) or stops at queue end
// (spec.md §4.6).
func (e *Engine) onTrackEnd() {
	e.mu.Lock()
	if e.preload != nil {
		select {
		case <-e.preload.ready:
		default:
			// Not ready yet: wait synchronously rather than gap the audio
			// device; acceptable since this only happens if preload started
			// too late relative to PreloadThreshold.
		}
	}
	preload := e.preload
	e.preload = nil
	old := e.current
	e.mu.Unlock()

	if preload != nil {
		<-preload.ready
		old.close()
		if preload.err != nil {
			e.teardownLocked(preload.err)
			return
		}
		e.mu.Lock()
		// The preload was picked by queue.PeekNext, so move the queue onto it.
		if e.queue != nil {
			e.queue.Next()
		}
		e.current = preload
		ctx, cancel := context.WithCancel(context.Background())
		e.loopCtx, e.loopCancel = ctx, cancel
		e.mu.Unlock()
		go e.playLoop(ctx, preload)
		return
	}

	e.mu.Lock()
	item, ok := e.queue.Next()
	e.mu.Unlock()
	old.close()
	if !ok {
		e.Stop()
		return
	}
	e.loadCurrent(item)
	// Wait for the newly loaded slot before resuming playback so Play()
	// doesn't race an empty current.decoder.
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	go func() {
		<-s.ready
		e.Play()
	}()
}
