package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parkingo-client/config"
	"parkingo-client/internal/client"
	"parkingo-client/internal/db"
	"parkingo-client/internal/mw"
	"parkingo-client/internal/session"
	"parkingo-client/internal/store"
)

func main() {
	verbose := flag.Bool("v", false, "write diagnostic logs to stderr")
	flag.Usage = usage
	flag.Parse()

	// Setup logger
	log.SetPrefix("parkingo ")
	log.SetFlags(log.LstdFlags)
	if *verbose {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
		gin.SetMode(gin.ReleaseMode)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	log.Printf("configuration loaded from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)

	var metrics *mw.Metrics
	if cfg.Metrics.Enabled {
		metrics = mw.NewMetrics("parkingo")
	}

	// The client reads the token from the session on every request.
	var sess *session.Session
	apiClient := client.New(cfg.API, client.TokenFunc(func() string { return sess.Token() }), newTransport(cfg, metrics))
	sess = session.New(appStore, apiClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if err := sess.Restore(ctx); err != nil {
		log.Printf("Warning: could not restore saved session: %v", err)
	}

	a := &app{
		cfg:     cfg,
		session: sess,
		api:     apiClient,
		metrics: metrics,
		in:      os.Stdin,
		out:     os.Stdout,
	}
	err = a.run(ctx, flag.Args())
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newTransport builds the outbound chain: response cache, request id,
// per-host rate limit, metrics, proxy-aware base transport.
func newTransport(cfg *config.Config, metrics *mw.Metrics) http.RoundTripper {
	rt := client.NewTransport(cfg.API)
	if metrics != nil {
		rt = metrics.Instrument(rt)
	}
	rt = mw.RateLimited(rt, mw.NewKeyedLimiter(rate.Limit(cfg.API.RateLimitPerSec), cfg.API.RateLimitBurst))
	rt = mw.RequestID(rt)
	if cfg.Cache.Enabled {
		rt = mw.Cache(rt, cache.New(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL, "/v1/parkings")
	}
	return rt
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: parkingo [-v] <command> [arguments]

Commands:
  login                      sign in with Google through the browser
  logout                     forget the saved session
  whoami                     show the signed-in user
  parkings [flags]           list parking facilities
  parking <slug>             show a facility and its layout
  book <slug> [flags]        book a slot
  bookings                   list your bookings
  booking <reference>        show a booking (-watch to follow it)
  pay <reference>            open the checkout for an unpaid booking

Flags:
`)
	flag.PrintDefaults()
}
