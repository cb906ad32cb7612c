package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ironsheep/pothole-cam/internal/annotate"
	"github.com/ironsheep/pothole-cam/internal/capture"
	"github.com/ironsheep/pothole-cam/internal/config"
	"github.com/ironsheep/pothole-cam/internal/detect"
	"github.com/ironsheep/pothole-cam/internal/fakeapi"
	"github.com/ironsheep/pothole-cam/internal/identity"
	"github.com/ironsheep/pothole-cam/internal/kvstore"
	"github.com/ironsheep/pothole-cam/internal/location"
	"github.com/ironsheep/pothole-cam/internal/logger"
	"github.com/ironsheep/pothole-cam/internal/metrics"
	"github.com/ironsheep/pothole-cam/internal/notify"
	"github.com/ironsheep/pothole-cam/internal/pipeline"
	"github.com/ironsheep/pothole-cam/internal/server"
	"github.com/ironsheep/pothole-cam/internal/share"
	"github.com/ironsheep/pothole-cam/internal/webcam"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("pothole-cam %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "help":
			usage()
			return
		}
	}

	cfg := config.Default()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "pothole-cam: %v\n", err)
		os.Exit(2)
	}

	fs := flag.NewFlagSet("pothole-cam", flag.ExitOnError)
	fs.Usage = usage
	bindFlags(fs, &cfg)
	_ = fs.Parse(os.Args[1:])

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["lat"] && set["lon"] {
		cfg.HasPosition = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "pothole-cam: invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pothole-cam: %v\n", err)
		os.Exit(2)
	}
	// stdout is for the JSON-RPC protocol
	logger.Init(level, os.Stderr, cfg.LogColor)
	logger.Info("Main", "pothole-cam %s (built %s, commit %s)", Version, BuildTime, GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Main", "%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("pothole-cam - pothole capture, annotate and share pipeline")
	fmt.Println()
	fmt.Println("Usage: pothole-cam [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v         Print version information")
	fmt.Println("  -api-url URL          Detection service root")
	fmt.Println("  -share-url URL        Public origin of the share page")
	fmt.Println("  -still PATH           Use an image file instead of the webcam")
	fmt.Println("  -lat, -lon DEGREES    Pin the device position")
	fmt.Println("  -fake-api             Serve an in-process detection service")
	fmt.Println("  -metrics-addr ADDR    Expose Prometheus metrics on ADDR")
	fmt.Println("  -log-level LEVEL      debug, info, warn, error or silent")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  POTHOLE_API_URL, POTHOLE_SHARE_URL, POTHOLE_STATE_DIR, POTHOLE_STILL_IMAGE,")
	fmt.Println("  POTHOLE_LATITUDE, POTHOLE_LONGITUDE, POTHOLE_LOG_LEVEL, POTHOLE_FAKE_API, ...")
	fmt.Println()
	fmt.Println("The pipeline is driven with JSON-RPC over stdin/stdout.")
}

// bindFlags registers flags whose defaults are the environment-adjusted
// configuration, so flags win over POTHOLE_* variables.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "detection service root")
	fs.StringVar(&cfg.ShareBaseURL, "share-url", cfg.ShareBaseURL, "public origin of the share page")
	fs.StringVar(&cfg.GeocoderURL, "geocoder-url", cfg.GeocoderURL, "Nominatim-compatible reverse geocoder")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for durable client state")
	fs.StringVar(&cfg.StillImage, "still", cfg.StillImage, "image file used instead of the webcam")
	fs.IntVar(&cfg.CameraWidth, "width", cfg.CameraWidth, "ideal camera width")
	fs.IntVar(&cfg.CameraHeight, "height", cfg.CameraHeight, "ideal camera height")
	fs.Float64Var(&cfg.CameraFPS, "fps", cfg.CameraFPS, "ideal camera frame rate")
	fs.DurationVar(&cfg.ToastDuration, "toast", cfg.ToastDuration, "how long notifications stay visible")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "detection request timeout")
	fs.IntVar(&cfg.JPEGQuality, "quality", cfg.JPEGQuality, "JPEG quality of submitted frames")
	fs.StringVar(&cfg.BoxColor, "box-color", cfg.BoxColor, "detection box colour")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "colour log output")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the Prometheus endpoint")
	fs.BoolVar(&cfg.FakeAPI, "fake-api", cfg.FakeAPI, "serve an in-process detection service")

	fs.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "fixed latitude (with -lon)")
	fs.Float64Var(&cfg.Longitude, "lon", cfg.Longitude, "fixed longitude (with -lat)")
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New()

	if cfg.MetricsAddr != "" {
		stopMetrics := serveHTTP(cfg.MetricsAddr, m.Handler(), "metrics")
		defer stopMetrics()
	}

	if cfg.FakeAPI {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("fake api: %w", err)
		}
		stopFake := serveListener(ln, fakeapi.New(nil).Handler(), "fake api")
		defer stopFake()

		base := "http://" + ln.Addr().String() + "/api"
		cfg.APIBaseURL = base
		cfg.ShareBaseURL = base
		logger.Info("Main", "fake detection service on %s", base)
	}

	kv := kvstore.NewFileStore(filepath.Join(cfg.StateDir, "state.json"))

	var cam capture.Camera = webcam.New()
	if cfg.StillImage != "" {
		cam = capture.NewStillCamera(cfg.StillImage)
	}
	constraints := capture.Constraints{
		Width:      cfg.CameraWidth,
		Height:     cfg.CameraHeight,
		FrameRate:  cfg.CameraFPS,
		FacingMode: "environment",
	}

	var positioner location.Positioner = location.Unsupported{}
	if cfg.HasPosition {
		positioner = location.FixedPositioner{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	}
	enricher := location.NewEnricher(positioner, location.NewNominatimGeocoder(cfg.GeocoderURL, cfg.UserAgent, cfg.GeocodeTimeout))
	enricher.Metrics = m

	opts := annotate.DefaultOptions()
	opts.BoxColor = cfg.BoxColor
	opts.BadgeColor = cfg.BadgeColor
	opts.BadgeOpacity = cfg.BadgeOpacity
	renderer, err := annotate.NewRenderer(opts)
	if err != nil {
		return err
	}

	client := detect.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, cfg.JPEGQuality)
	client.Metrics = m

	n := notify.New(cfg.ToastDuration)

	// No native share sheet on a desktop host; links go to the clipboard.
	coord := share.NewCoordinator(client, cfg.ShareBaseURL, nil, share.SystemClipboard{}, n)
	coord.Metrics = m

	ctrl := pipeline.New(pipeline.Deps{
		Surface:  capture.NewSurface(cam, constraints),
		Location: enricher,
		Identity: identity.NewStore(kv),
		Detector: client,
		Renderer: renderer,
		Notifier: n,
		Share:    coord,
		Metrics:  m,
	})
	logger.Info("Main", "device %s, state in %s", ctrl.DeviceID(), kv.Path())

	if err := ctrl.OnScreenEnter(ctx); err != nil {
		logger.Warn("Main", "camera unavailable, capture disabled: %v", err)
	}
	defer ctrl.OnScreenExit()

	server.Version = Version
	return server.New(ctrl, os.Stdin, os.Stdout).Run(ctx)
}

func serveHTTP(addr string, h http.Handler, name string) (stop func()) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Main", "%s listener: %v", name, err)
		return func() {}
	}
	logger.Info("Main", "%s on http://%s", name, ln.Addr())
	return serveListener(ln, h, name)
}

func serveListener(ln net.Listener, h http.Handler, name string) (stop func()) {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "%s server: %v", name, err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
