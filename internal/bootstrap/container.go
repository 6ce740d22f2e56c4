package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aprs-friend-alert/internal/config"
	"aprs-friend-alert/internal/controller"
	"aprs-friend-alert/internal/conversation"
	"aprs-friend-alert/internal/directory"
	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/outbox"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/poller"
	"aprs-friend-alert/internal/repository/contract"
	"aprs-friend-alert/internal/repository/implementation"
	"aprs-friend-alert/internal/repository/memory"
	"aprs-friend-alert/internal/telegram"
	"aprs-friend-alert/internal/websocket"
	"aprs-friend-alert/pkg/aprs"
	"aprs-friend-alert/pkg/database"
	pktNats "aprs-friend-alert/pkg/nats"
	"aprs-friend-alert/pkg/ors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	moduleName        = "BOOTSTRAP"
	validationTimeout = 20 * time.Second
	errorBanner       = "Oh no! There was an error!\n"
)

var errSourceUnavailable = errors.New("no position source configured")

// unavailableSource stands in when no position source passed startup checks.
// Following is refused in that case, so it is never polled in practice.
type unavailableSource struct{}

func (unavailableSource) Query(context.Context) (model.PositionSample, error) {
	return model.PositionSample{}, errSourceUnavailable
}

type Container struct {
	Directory *directory.Directory
	Session   *follow.Session
	Poller    *poller.Poller
	Routes    *ors.Client
	Manager   *conversation.Manager

	Bot        *telegram.Bot
	Dispatcher *telegram.Dispatcher
	Outbox     *outbox.Outbox

	FollowController controller.IFollowController
	WebSocketHub     *websocket.Hub

	logger  *logger.ZapLogger
	pubSub  *gochannel.GoChannel
	rdb     *redis.Client
	db      *gorm.DB
	natsPub *pktNats.Publisher
	enabled bool
}

// NewContainer wires every component. Background goroutines that deliver
// chat messages start here already so startup problems reach the owner; the
// update loop starts with Run.
func NewContainer(ctx context.Context, cfg *config.Config, log *logger.ZapLogger) (*Container, error) {
	c := &Container{logger: log}

	ladder, err := follow.NewLadder(cfg.Follow.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("ALERT_THRESHOLDS: %w", err)
	}

	// 1. Persistence
	store, err := c.directoryStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	dir, err := directory.Load(ctx, store, log)
	if err != nil {
		return nil, err
	}
	if dir.Owner() == "" && cfg.Telegram.OwnerChatID != "" {
		if err := dir.SetOwner(ctx, cfg.Telegram.OwnerChatID); err != nil {
			return nil, fmt.Errorf("seed owner: %w", err)
		}
		log.Info(moduleName, "Seeded owner from configuration", map[string]interface{}{"owner": cfg.Telegram.OwnerChatID})
	}
	c.Directory = dir

	// 2. Chat transport and the async outbox
	bot, err := telegram.NewBot(cfg.Telegram.Token, "", log)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	c.Bot = bot

	watermillLogger := watermill.NewStdLogger(false, false)
	c.pubSub = gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.Outbox = outbox.New(c.pubSub, log)
	if err := c.Outbox.Consume(ctx, bot); err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}

	log.SetErrorForwarder(func(module, message string) {
		// Resolved off the caller's goroutine; the caller may hold the directory lock.
		go func() {
			if owner := dir.Owner(); owner != "" {
				c.Outbox.Send(context.Background(), owner, errorBanner+module+": "+message)
			}
		}()
	})

	// 3. External services
	source := c.positionSource(ctx, cfg, log)

	c.Routes = ors.NewClient(cfg.ORS.BaseURL, cfg.ORS.APIKey, log)
	if cfg.HasORS() {
		vctx, cancel := context.WithTimeout(ctx, validationTimeout)
		if err := c.Routes.Validate(vctx); err != nil {
			log.Error(moduleName, "OpenRouteService validation failed, routing disabled", map[string]interface{}{"error": err.Error()})
		}
		cancel()
	} else {
		log.Error(moduleName, "OPEN_ROUTE_SERVICE_KEY is not set, routing disabled", nil)
	}

	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, log)
		if err != nil {
			log.Warn(moduleName, "Failed to connect to NATS, follow events will not be published", map[string]interface{}{"error": err.Error()})
		} else {
			c.natsPub = pub
		}
	}

	// 4. Follow engine
	c.Poller = poller.New(source, poller.Config{
		Interval:      cfg.APRS.PollInterval,
		MaxFailures:   cfg.APRS.MaxFailures,
		BackoffBase:   cfg.APRS.BackoffBase,
		BackoffGrowth: cfg.APRS.BackoffGrowth,
		BackoffUnit:   time.Second,
		QueryTimeout:  10 * time.Second,
	}, log)

	c.WebSocketHub = websocket.NewHub(c.rdb, log)

	opts := []follow.Option{follow.WithObserver(c.WebSocketHub.Publish)}
	if c.natsPub != nil {
		opts = append(opts, follow.WithPublisher(c.natsPub))
	}
	c.Session = follow.NewSession(ladder, c.Routes, c.Outbox, c.Poller, dir, log, opts...)
	c.Poller.SetHandlers(c.Session.OnPositionSample, c.Session.OnSourceLost)

	// 5. Conversations
	c.Manager = conversation.NewManager(dir, memory.NewConversationRepository(), c.Routes, c.Session, bot, conversation.Config{
		SetupKey:      cfg.Telegram.SetupKey,
		FollowEnabled: c.enabled,
	}, log)
	c.Dispatcher = telegram.NewDispatcher(c.Manager.Handle)

	// 6. Status surface
	c.FollowController = controller.NewFollowController(c.Session, c.WebSocketHub, controller.HealthProbe{
		PositionSource: func() bool { return c.enabled && c.Poller.Validated() },
		Routing:        c.Routes.Validated,
	}, cfg.Telegram.SetupKey, log)

	return c, nil
}

func (c *Container) directoryStore(ctx context.Context, cfg *config.Config, log logger.ILogger) (contract.DirectoryRepository, error) {
	switch cfg.Store.Backend {
	case "redis":
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			log.Warn(moduleName, "Failed to parse Redis URL, using it as an address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.Store.RedisURL}
		}
		c.rdb = redis.NewClient(opt)
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		log.Info(moduleName, "Using Redis directory store", map[string]interface{}{"key": cfg.Store.RedisKey})
		return implementation.NewDirectoryRedisRepository(c.rdb, cfg.Store.RedisKey), nil

	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Store.DBConnection, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.WithContext(ctx).AutoMigrate(&model.DirectoryDocumentRow{}); err != nil {
			return nil, fmt.Errorf("migrate directory table: %w", err)
		}
		c.db = db
		log.Info(moduleName, "Using Postgres directory store", nil)
		return implementation.NewDirectoryGormRepository(db), nil

	default:
		log.Info(moduleName, "Using file directory store", map[string]interface{}{"path": cfg.Store.DataFilePath})
		return implementation.NewDirectoryFileRepository(cfg.Store.DataFilePath), nil
	}
}

// positionSource picks the replay file, then aprs.fi. Following stays
// disabled for the process lifetime when neither is usable.
func (c *Container) positionSource(ctx context.Context, cfg *config.Config, log logger.ILogger) poller.Source {
	if cfg.APRS.ReplayFile != "" {
		replay, err := aprs.LoadReplaySource(cfg.APRS.ReplayFile)
		if err != nil {
			log.Error(moduleName, "Failed to load replay route, following disabled", map[string]interface{}{"error": err.Error()})
			return unavailableSource{}
		}
		log.Info(moduleName, "Replaying recorded route", map[string]interface{}{"file": cfg.APRS.ReplayFile})
		c.enabled = true
		return replay
	}

	if !cfg.HasAPRS() {
		log.Error(moduleName, "APRS_API_KEY or APRS_FOLLOW_CALL is not set, following disabled", nil)
		return unavailableSource{}
	}

	client := aprs.NewClient(cfg.APRS.APIKey, cfg.APRS.FollowCall, log)
	vctx, cancel := context.WithTimeout(ctx, validationTimeout)
	defer cancel()
	if err := client.Validate(vctx); err != nil {
		log.Error(moduleName, "aprs.fi validation failed, following disabled", map[string]interface{}{"error": err.Error()})
		return unavailableSource{}
	}
	c.enabled = true
	return client
}

// Run starts the hub and the update loop and blocks until ctx is done.
func (c *Container) Run(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)
	c.Bot.Run(ctx, func(msg conversation.Message) {
		c.Dispatcher.Dispatch(ctx, msg)
	})
}

// Close releases everything NewContainer opened. Cancel the Run context first.
func (c *Container) Close() {
	c.logger.SetErrorForwarder(nil)
	if c.Session != nil {
		c.Session.Stop()
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Wait()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.pubSub != nil {
		_ = c.pubSub.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	if c.db != nil {
		if sqlDB, err := c.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = c.logger.Sync()
}
