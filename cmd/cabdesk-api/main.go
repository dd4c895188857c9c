// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cabdesk/internal/config"
	"cabdesk/internal/events"
	httptransport "cabdesk/internal/http"
	"cabdesk/internal/infra"
	"cabdesk/internal/maps"
	"cabdesk/internal/modules/booking"
	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/estimate"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/location"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/modules/pricing"
)

// roster is what every driver store offers: proximity search, position pings and push tokens.
type roster interface {
	location.Roster
	location.Reporter
	events.TokenSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("cabdesk-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := infra.Migrate(ctx, dbPool); err != nil {
		return err
	}

	var fb *infra.Firebase
	if cfg.Roster.Source == "firebase" || cfg.Events.PushEnabled {
		if fb, err = infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL); err != nil {
			return err
		}
	}

	var drivers roster
	switch cfg.Roster.Source {
	case "postgres":
		drivers = location.NewPostgresRoster(dbPool)
	case "firebase":
		drivers = location.NewFirebaseRoster(fb.DB)
	default:
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		drivers = syncedRedisRoster(ctx, rdb, location.NewPostgresRoster(dbPool), logger)
	}

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Currency, logger)
	geocoder := geocoding.NewService(geocodeProvider(cfg, logger), cfg.DefaultCenter, logger)
	distanceSvc := distance.NewService(routeProvider(cfg, logger), cfg.Distance.RoadBuffer, logger)
	locator := matching.NewLocator(drivers, cfg.Matching.RadiusMiles, cfg.Matching.MaxCandidates, logger)

	fanout := events.NewFanout(logger, events.NewLogObserver(logger))
	closers, err := attachPublishers(cfg, fanout)
	for _, c := range closers {
		defer c.Close()
	}
	if err != nil {
		return err
	}
	if cfg.Events.PushEnabled {
		fanout.Add(events.NewFCMNotifier(fb.Messaging, drivers, logger))
	}

	bookingStore := booking.NewStore(dbPool)
	bookingSvc := booking.NewService(booking.Deps{
		Store:      bookingStore,
		Geocoder:   geocoder,
		Distance:   distanceSvc,
		Pricing:    pricingSvc,
		Dispatcher: matching.NewAutoDispatcher(locator, bookingStore, logger),
		Events:     fanout,
		Currency:   cfg.Currency,
		Logger:     logger,
	})
	estimateSvc := estimate.NewService(geocoder, distanceSvc, pricingSvc, locator, logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Bookings:  bookingSvc,
		Pricing:   pricingSvc,
		Estimates: estimateSvc,
		Nearby:    locator,
		Locations: location.NewService(drivers, logger),
		Sessions:  estimateSvc,
		Logger:    logger,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, logger).Run(ctx)
}

// syncedRedisRoster seeds the Redis position index from the drivers table so a fresh
// cache can answer proximity queries before the first pings arrive.
func syncedRedisRoster(ctx context.Context, rdb *redis.Client, registry location.Registry, logger *zap.Logger) *location.RedisRoster {
	r := location.NewRedisRoster(rdb)
	n, err := location.SyncRoster(ctx, registry, r)
	if err != nil {
		logger.Warn("roster sync incomplete", zap.Int("indexed", n), zap.Error(err))
		return r
	}
	logger.Info("roster synced", zap.Int("indexed", n))
	return r
}

func geocodeProvider(cfg config.Config, logger *zap.Logger) geocoding.Provider {
	if cfg.Maps.APIKey == "" {
		logger.Warn("maps api key not set; addresses will not be geocoded")
		return nil
	}
	if cfg.Maps.Geocoder == "places" {
		p, err := maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			logger.Warn("places client init failed", zap.Error(err))
			return nil
		}
		return p
	}
	g, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
	if err != nil {
		logger.Warn("geocode client init failed", zap.Error(err))
		return nil
	}
	return g
}

func routeProvider(cfg config.Config, logger *zap.Logger) distance.Router {
	if cfg.Maps.APIKey == "" {
		return nil
	}
	r, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
	if err != nil {
		logger.Warn("route client init failed", zap.Error(err))
		return nil
	}
	return r
}

// attachPublishers adds the configured broker publisher to fanout. The returned closers must
// be closed on shutdown even when err is non-nil.
func attachPublishers(cfg config.Config, fanout *events.Fanout) ([]io.Closer, error) {
	switch cfg.Events.Driver {
	case "kafka":
		p := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		fanout.Add(p)
		return []io.Closer{p}, nil
	case "rabbitmq":
		conn, err := infra.NewRabbit(cfg.Events.RabbitURL)
		if err != nil {
			return nil, err
		}
		p, err := events.NewRabbitPublisher(conn, cfg.Events.RabbitTopic)
		if err != nil {
			return []io.Closer{conn}, err
		}
		fanout.Add(p)
		return []io.Closer{conn, p}, nil
	}
	return nil, nil
}
