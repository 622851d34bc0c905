package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/commute-dashboard/internal/cache"
	"github.com/kjstillabower/commute-dashboard/internal/client"
	"github.com/kjstillabower/commute-dashboard/internal/config"
	"github.com/kjstillabower/commute-dashboard/internal/fixtures"
	"github.com/kjstillabower/commute-dashboard/internal/flags"
	httphandler "github.com/kjstillabower/commute-dashboard/internal/http"
	"github.com/kjstillabower/commute-dashboard/internal/idle"
	"github.com/kjstillabower/commute-dashboard/internal/lifecycle"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
	"github.com/kjstillabower/commute-dashboard/internal/poller"
	"github.com/kjstillabower/commute-dashboard/internal/publish"
	"github.com/kjstillabower/commute-dashboard/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var flagStore flags.Store
	var sqliteStore *flags.SQLiteStore
	if cfg.TestingMode {
		logger.Warn("testing mode enabled; all feeds use fixtures and flags are not persisted")
		flagStore = flags.NewMemoryStore(map[string]bool{flags.MockAlerts: true, flags.MockWeather: true, flags.MockAqi: true})
	} else {
		sqliteStore, err = flags.OpenSQLite(ctx, cfg.FlagsDBPath)
		if err != nil {
			logger.Fatal("flag store", zap.Error(err), zap.String("path", cfg.FlagsDBPath))
		}
		flagStore = sqliteStore
	}
	mockFlags, err := flags.Load(ctx, flagStore)
	if err != nil {
		logger.Fatal("load flags", zap.Error(err))
	}
	logger.Info("mock data flags loaded", zap.Any("flags", mockFlags.All()))

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleFor)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(nil, cfg.StaleFor)
		logger.Info("cache backend: in_memory")
	}

	transitClient, err := client.NewTransitFeedClient(cfg.TransitFeedURL, cfg.TransitFeedFormat, cfg.TransitTimeout)
	if err != nil {
		logger.Fatal("transit client", zap.Error(err))
	}
	nwsClient, err := client.NewNWSClient(cfg.NWSURL, cfg.NWSUserAgent, cfg.NWSTimeout)
	if err != nil {
		logger.Fatal("nws client", zap.Error(err))
	}

	// The proxy answers /api/aqi. Without an API key it reports itself unconfigured.
	var sensorReader service.SensorReader
	if cfg.PurpleAirAPIKey != "" {
		pa, err := client.NewPurpleAirClient(cfg.PurpleAirURL, cfg.PurpleAirAPIKey, cfg.AqiTimeout)
		if err != nil {
			logger.Fatal("purpleair client", zap.Error(err))
		}
		sensorReader = pa
	} else {
		logger.Warn("PURPLEAIR_API_KEY not set; /api/aqi will report not configured")
	}
	aqiProxy := service.NewAqiProxy(sensorReader, nil)

	// The AQI card reads a deployed proxy when one is configured, otherwise this process's own.
	var aqiLive service.AqiSource = aqiProxy
	aqiUpstream := observability.UpstreamPurpleAir
	if cfg.AqiProxyURL != "" {
		aqiClient, err := client.NewAqiClient(cfg.AqiProxyURL, cfg.AqiTimeout)
		if err != nil {
			logger.Fatal("aqi client", zap.Error(err))
		}
		aqiLive = aqiClient
		aqiUpstream = observability.UpstreamAqi
	}

	var sink service.AlertSink
	var kafkaWriter *publish.Writer
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		kafkaWriter = publish.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.RouteID, logger)
		sink = kafkaWriter
		logger.Info("alert sink: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	alertService := service.NewAlertService(transitClient, fixtures.Feed{}, mockFlags, cacheSvc, service.AlertServiceOptions{
		RouteID:      cfg.RouteID,
		Location:     cfg.Location,
		TTL:          cfg.CacheTTL,
		PollInterval: cfg.AlertsPollInterval,
		FetchTimeout: cfg.TransitTimeout,
		Logger:       logger,
		Sink:         sink,
	})

	locations := make([]service.Location, 0, len(cfg.Locations))
	sensors := make(map[string]string, len(cfg.Locations))
	for _, l := range cfg.Locations {
		locations = append(locations, service.Location{Key: l.Key, Name: l.Name, Latitude: l.Latitude, Longitude: l.Longitude})
		if l.AqiSensor != "" {
			sensors[l.Key] = l.AqiSensor
		}
	}
	keys := cfg.LocationKeys()

	weatherService := service.NewWeatherService(nwsClient, fixtures.Weather{}, mockFlags, cacheSvc, locations, service.FeedServiceOptions{
		Location:     cfg.Location,
		TTL:          cfg.CacheTTL,
		PollInterval: cfg.WeatherPollInterval,
		FetchTimeout: cfg.NWSTimeout,
		Logger:       logger,
	})
	aqiService := service.NewAqiService(aqiLive, fixtures.Aqi{}, mockFlags, cacheSvc, aqiUpstream, keys, sensors, service.FeedServiceOptions{
		Location:     cfg.Location,
		TTL:          cfg.CacheTTL,
		PollInterval: cfg.AqiPollInterval,
		FetchTimeout: cfg.AqiTimeout,
		Logger:       logger,
	})

	refresh := map[string]func(context.Context) error{
		flags.MockAlerts:  alertService.Refresh,
		flags.MockWeather: cache.NewWarmer("weather", weatherService, logger).WarmFunc(keys),
		flags.MockAqi:     cache.NewWarmer("aqi", aqiService, logger).WarmFunc(keys),
	}

	pollers := poller.NewGroup(
		poller.New("alerts", cfg.AlertsPollInterval, refresh[flags.MockAlerts], poller.WithLogger(logger)),
		poller.New("weather", cfg.WeatherPollInterval, refresh[flags.MockWeather], poller.WithLogger(logger)),
		poller.New("aqi", cfg.AqiPollInterval, refresh[flags.MockAqi], poller.WithLogger(logger)),
	)
	pollersDone := make(chan struct{})
	go func() {
		pollers.Run(ctx)
		close(pollersDone)
	}()
	go idle.Watch(ctx, nil, cfg.IdleWindow, cfg.VisibilityCheck, pollers.SetVisible)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	if sqliteStore != nil {
		healthConfig.FlagsPing = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return sqliteStore.Ping(pingCtx)
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(httphandler.Services{
		Alerts:  alertService,
		Weather: weatherService,
		Aqi:     aqiService,
		Proxy:   aqiProxy,
		Flags:   mockFlags,
		Refresh: refresh,
	}, healthConfig, logger)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigin:     cfg.CORSOrigin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("route_id", cfg.RouteID), zap.Strings("locations", keys))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	// a refresh still running would write to the cache and Kafka after they close
	select {
	case <-pollersDone:
	case <-shutdownCtx.Done():
		logger.Warn("pollers still running at shutdown deadline")
	}

	var closers []observability.Closer
	if kafkaWriter != nil {
		closers = append(closers, observability.Closer{Name: "kafka writer", Close: kafkaWriter.Close})
	}
	if memcacheCloser != nil {
		closers = append(closers, observability.Closer{Name: "memcached", Close: memcacheCloser.Close})
	}
	if sqliteStore != nil {
		closers = append(closers, observability.Closer{Name: "flag store", Close: sqliteStore.Close})
	}
	logger.Info("shutdown complete, releasing resources", zap.Int("resources", len(closers)))
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer closeCancel()
	if err := observability.FlushTelemetry(closeCtx, logger, closers...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
