package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"

	"cgm-alerts/internal/alerting"
	"cgm-alerts/internal/auth"
	"cgm-alerts/internal/bot"
	"cgm-alerts/internal/config"
	"cgm-alerts/internal/fetcher"
	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/logging"
	"cgm-alerts/internal/metrics"
	"cgm-alerts/internal/mute"
	"cgm-alerts/internal/rules"
	"cgm-alerts/internal/scheduler"
	"cgm-alerts/internal/service"
	"cgm-alerts/internal/storage"
	"cgm-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Stdout receives command output; defaults to os.Stdout.
	Stdout io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Stdout: os.Stdout}
}

type backend struct {
	subscribers storage.SubscriberStore
	alerts      storage.AlertStore
	locker      storage.AdvisoryLocker
	persistent  bool
	close       func()
}

// openBackend connects to PostgreSQL when a DSN is configured and falls back
// to process memory otherwise.
func (a *App) openBackend(ctx context.Context) (backend, error) {
	if a.Config.Database.DSN == "" {
		mem := storage.NewMemoryStore()
		return backend{subscribers: mem, alerts: mem, locker: mem, close: func() {}}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return backend{}, err
	}
	store := storage.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return backend{}, err
	}
	return backend{
		subscribers: store,
		alerts:      store,
		locker:      store,
		persistent:  true,
		close:       store.Close,
	}, nil
}

func (a *App) newSource() (fetcher.Source, error) {
	if err := a.Config.RequireNightscout(); err != nil {
		return nil, err
	}
	userAgent := a.Config.Nightscout.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.NewNightscout(fetcher.NightscoutOptions{
		BaseURL:   a.Config.Nightscout.BaseURL,
		APISecret: a.Config.Nightscout.APISecret,
		Timeout:   a.Config.Nightscout.RequestTimeout,
		UserAgent: userAgent,
	}, a.Logger), nil
}

func (a *App) thresholds() gate.Thresholds {
	return gate.Thresholds{High: a.Config.Glucose.LimitHigh, Low: a.Config.Glucose.LimitLow}
}

func (a *App) location() *time.Location {
	loc, err := a.Config.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func (a *App) newGate() *gate.Gate {
	return gate.New(gate.Options{
		Thresholds: a.thresholds(),
		Cooldown:   a.Config.Alerting.Cooldown,
		Format:     alerting.PointFormatter(a.location()),
	})
}

func (a *App) newTelegramClient(extra ...tgbot.Option) (*tgbot.Bot, error) {
	if !a.Config.Alerting.Telegram.Enabled {
		return nil, nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramClient(alerting.TelegramOptions{
		BotToken: cfg.BotToken,
		APIBase:  cfg.APIBase,
		Options:  extra,
	})
}

func (a *App) newPublisher() (alerting.EventPublisher, error) {
	if !a.Config.Alerting.Kafka.Enabled {
		return alerting.NopPublisher{}, nil
	}
	cfg := a.Config.Alerting.Kafka
	return alerting.NewKafkaPublisher(alerting.KafkaOptions{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
	}, a.Logger)
}

// loadDirectory reads registered subscribers and makes them mutable.
func (a *App) loadDirectory(ctx context.Context, be backend) (*auth.Directory, *mute.Registry, error) {
	directory := auth.NewDirectory(a.Config.Auth.Whitelist, be.subscribers, a.Logger)
	if err := directory.Load(ctx); err != nil {
		return nil, nil, err
	}
	mutes := mute.NewRegistry()
	for _, sub := range directory.Subscribers() {
		mutes.Init(sub.Username)
	}
	return directory, mutes, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()
	if !be.persistent {
		a.Logger.Warn().Msg("database.dsn not configured; subscribers and alert audit kept in memory")
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}
	directory, mutes, err := a.loadDirectory(ctx, be)
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close event publisher")
		}
	}()

	g := a.newGate()
	commands := bot.NewCommands(bot.Options{
		Directory:  directory,
		Mutes:      mutes,
		Thresholds: a.thresholds(),
		Location:   a.location(),
	}, a.Logger)

	client, err := a.newTelegramClient(commands.ClientOptions()...)
	if err != nil {
		return err
	}

	var dispatcher *alerting.Dispatcher
	if client != nil {
		sender := alerting.NewTelegramSender(client, a.Config.Alerting.Telegram.Timeout, a.Logger)
		dispatcher = alerting.NewDispatcher(directory, mutes, sender, a.Config.Alerting.RuleOverrideMute, a.Logger)
	} else {
		a.Logger.Warn().Msg("telegram disabled; alerts will only be logged")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunImmediately,
	}, a.Logger)

	svc := service.New(service.Deps{
		Scheduler:  sched,
		Source:     source,
		Gate:       g,
		Evaluator:  rules.NewDefaultEvaluator(),
		Dispatcher: dispatcher,
		Alerts:     be.alerts,
		Locker:     be.locker,
		Publisher:  publisher,
	}, service.Options{
		FetchCount:    a.Config.Nightscout.FetchCount,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		AlertsEnabled: a.Config.Alerting.Enabled,
	}, a.Logger)
	commands.UseSnapshot(svc)

	if client != nil {
		commands.Register(client)
		go client.Start(ctx)
		a.Logger.Info().Msg("telegram command bot started")
	}

	if a.Config.Metrics.Enabled {
		srv := metrics.NewServer(a.Config.Metrics.Listen, a.Config.Metrics.Path, a.Logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Int("whitelist", len(a.Config.Auth.Whitelist)).
		Int("subscribers", len(directory.Subscribers())).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// CheckOptions configure the check command.
type CheckOptions struct {
	At time.Time
}

// SnapshotOptions configure the snapshot command.
type SnapshotOptions struct {
	PNGPath string
}

// AlertsOptions configure the alerts command.
type AlertsOptions struct {
	Limit int
}

// SimulateOptions describe a synthetic alert.
type SimulateOptions struct {
	Channel gate.Channel
	Value   int
	Rule    string
}
