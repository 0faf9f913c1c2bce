// Command pleezer is a headless Deezer Connect playback endpoint (spec.md
// §1): it authenticates with a configured ARL, advertises itself over
// Deezer Connect, and streams whatever a controller app queues.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"pleezer/internal/config"
	"pleezer/internal/decode"
	"pleezer/internal/decrypt"
	"pleezer/internal/device"
	"pleezer/internal/dsp"
	"pleezer/internal/events"
	"pleezer/internal/gateway"
	"pleezer/internal/logging"
	"pleezer/internal/metrics"
	"pleezer/internal/model"
	"pleezer/internal/netutil"
	"pleezer/internal/player"
	"pleezer/internal/remote"
	"pleezer/internal/resolver"
	"pleezer/internal/session"
)

const connectEndpoint = "wss://live.deezer.com/ws/connect"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pleezer:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("pleezer", pflag.ContinueOnError)
	flags.String("secrets", "", "path to secrets.toml")
	flags.String("name", "pleezer", "device name advertised over Deezer Connect")
	flags.String("device", "", "device spec: host|device|rate|fmt")
	flags.String("device-type", "web", "device type advertised over Deezer Connect")
	flags.Bool("no-interruptions", false, "reject a controller while one is already bound")
	flags.Int("initial-volume", 100, "volume applied on first controller bind")
	flags.Bool("normalize-volume", false, "enable loudness-normalization limiter")
	flags.Bool("loudness", false, "enable equal-loudness compensation curve")
	flags.Float64("dither-bits", 0, "dither amplitude in bits (0 disables)")
	flags.Int("noise-shaping", 0, "noise-shaping level [0,7]")
	flags.Int("max-ram", 32, "max RAM (MiB) per in-flight download before spilling to disk")
	flags.String("bind", "", "local IP to bind outgoing connections to")
	flags.String("hook", "", "path to an event hook script")
	flags.Bool("eavesdrop", false, "log frames on the control channel at debug level")
	flags.String("metrics-addr", "", "address to serve Prometheus /metrics on, empty disables")
	flags.CountP("verbose", "v", "increase log verbosity (-v, -vv)")
	flags.BoolP("quiet", "q", false, "only log errors")
	devQuery := flags.StringP("list-devices", "d", "", `pass "?" to list audio output devices and exit`)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *devQuery == "?" {
		return device.ListDevices(os.Stdout)
	}

	cfg, err := config.Load(func(v *viper.Viper) error { return v.BindPFlags(flags) })
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verbosity := logging.Normal
	if quiet, _ := flags.GetBool("quiet"); quiet {
		verbosity = logging.Quiet
	} else if n, _ := flags.GetCount("verbose"); n == 1 {
		verbosity = logging.Verbose
	} else if n >= 2 {
		verbosity = logging.VeryVerbose
	}
	log, err := logging.New(logging.Config{Verbosity: verbosity})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	for {
		sessionCtx, cancelSession := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- runSession(sessionCtx, cfg, log) }()

		select {
		case <-ctx.Done():
			cancelSession()
			<-done
			return nil
		case <-reload:
			// spec.md §9: "tear down session, reload secrets, reopen
			// session; in-flight track is stopped."
			log.Info("SIGHUP received, reloading")
			cancelSession()
			<-done
			continue
		case err := <-done:
			cancelSession()
			return err
		}
	}
}

// runSession authenticates once and drives one remote.Session's reconnect
// loop until ctx is canceled or a fatal (non-retryable) error occurs.
func runSession(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	secrets, err := config.LoadSecrets(cfg.SecretsPath)
	if err != nil {
		return fmt.Errorf("loading secrets: %w", err)
	}

	clientCfg := netutil.DefaultClientConfig()
	if cfg.Bind != "" {
		clientCfg.BindAddr = net.ParseIP(cfg.Bind)
	}
	httpClient := netutil.NewClient(clientCfg)

	gw := gateway.New(httpClient, log, rand.New(rand.NewSource(time.Now().UnixNano())))

	arl := secrets.ARL
	if arl == "" {
		// email/password exchange is out of scope for this pass; arl is
		// the supported credential form until that flow is grounded.
		return fmt.Errorf("secrets.toml must set arl (email/password login not yet wired)")
	}
	sess, err := gw.Login(ctx, arl)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	if !sess.HQAllowed && !sess.LosslessAllowed {
		return fmt.Errorf("account tier insufficient for streaming playback")
	}

	fingerprint := session.MachineFingerprint()
	deviceID := session.DeviceID(fingerprint, cfg.Name)
	sess.DeviceID = deviceID
	sess.DeviceName = cfg.Name
	sess.DeviceType = cfg.DeviceType

	var secret [decrypt.SecretSize]byte // per-installation secret, out-of-band per spec.md §9 open questions
	res := resolver.New(gw, log, secret)

	sink := events.NewSink(cfg.Hook, log)

	remoteSession := remote.NewSession(remote.Config{
		Endpoint:        connectEndpoint,
		Header:          func() http.Header { return authHeader(sess) },
		DeviceID:        deviceID,
		DeviceName:      cfg.Name,
		DeviceType:      cfg.DeviceType,
		NoInterruptions: cfg.NoInterruptions,
		InitialVolume:   cfg.InitialVolume,
		Sink:            sink,
		Log:             log,
		Rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		Eavesdrop:       cfg.Eavesdrop,
	})

	newDevice := func(format decode.Format) (player.Device, error) {
		d := device.New()
		if err := d.Open(format); err != nil {
			return nil, err
		}
		return d, nil
	}

	targetBits := math.Round(cfg.DitherBits)
	if targetBits != cfg.DitherBits {
		log.Warn("dither_bits is not a whole number, rounding",
			zap.Float64("configured", cfg.DitherBits), zap.Float64("rounded", targetBits))
	}

	engine := player.NewEngine(player.Config{
		HTTPClient: httpClient,
		Resolver:   res,
		NewDevice:  newDevice,
		Log:        log,
		Rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		DSPOptions: dsp.Options{
			Normalize:    cfg.NormalizeVolume,
			Loudness:     cfg.Loudness,
			TargetBits:   int(targetBits),
			NoiseShaping: cfg.NoiseShaping,
		},
		InitialVol:  cfg.InitialVolume,
		MaxRAMBytes: int64(cfg.MaxRAMMiB) << 20,
		OnStop:      remoteSession.NotifyStop,
		OnEvent:     sink.Publish,
	})
	remoteSession.SetEngine(engine)

	err = remoteSession.Run(ctx)
	engine.Stop()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// authHeader carries the session's cookies as the control WebSocket's
// auth (spec.md §4.8 step 2: "using Bearer cookies").
func authHeader(sess *model.Session) http.Header {
	h := http.Header{}
	for _, c := range sess.Cookies {
		h.Add("Cookie", c)
	}
	h.Set("Authorization", "Bearer "+sess.UserToken)
	return h
}
