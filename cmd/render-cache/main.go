package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	rendercache "github.com/render-cache/render-cache"
	"github.com/render-cache/render-cache/cache"
	"github.com/render-cache/render-cache/manifest"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	providerFlag       string
	dbFilenameFlag     string
	redisAddrFlag      string
	devFlag            bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "render-cache.yaml", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin render server URL (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Cache provider: sqlite, memory or redis (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name for the sqlite provider")
	flag.StringVar(&redisAddrFlag, "redis", "", "Redis address for the redis provider (overrides config)")
	flag.BoolVar(&devFlag, "dev", false, "Dev mode: on-demand path discovery, original errors in responses")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Str("config", configFilenameFlag).Msg("Could not read config")
	}
	if config.Port == 0 {
		config.Port = portFlag
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if providerFlag != "" {
		config.Provider = providerFlag
	}
	if redisAddrFlag != "" {
		config.Redis.Addr = redisAddrFlag
	}
	if config.DBFile == "" {
		config.DBFile = dbFilenameFlag
	}
	if devFlag {
		config.Dev = true
	}

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin URL")
	}

	if config.Manifest == "" {
		log.Fatal().Msg("Please specify manifest")
	}
	pages, err := manifest.Load(config.Manifest)
	if err != nil {
		log.Fatal().Err(err).Str("manifest", config.Manifest).Msg("Could not load manifest")
	}

	var provider cache.Provider
	switch config.Provider {
	case "sqlite", "":
		provider = cache.NewSQLiteCache(config.DBFile)
	case "memory":
		provider = cache.NewMemCache()
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisOptions{
			Addr:      config.Redis.Addr,
			Password:  config.Redis.Password,
			DB:        config.Redis.DB,
			KeyPrefix: config.Redis.KeyPrefix,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not set up redis cache")
		}
		provider = redisCache
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Provider)
	}

	server := rendercache.CreateServer(rendercache.Config{
		Renderer:        newOriginRenderer(originURL),
		Manifest:        pages,
		Artifacts:       pages,
		Cache:           provider,
		Logger:          &log.Logger,
		Profile:         rendercache.RuntimeProfile{Dev: config.Dev},
		CatchAllPage:    config.CatchAllPage,
		PreviewToken:    config.PreviewToken,
		RevalidateToken: config.RevalidateToken,
		DefaultLocale:   config.DefaultLocale,
		Metrics:         rendercache.NewMetrics(prometheus.DefaultRegisterer),
	})

	router := chi.NewRouter()
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Dur("duration", duration).
			Msg("Request served")
	}))
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/*", server)

	log.Info().Msgf("Serving port %v with origin %s", config.Port, config.Origin)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), router); err != nil {
		panic(err)
	}
}
