package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"

	"guild-archive/archive"
	"guild-archive/db"
	"guild-archive/handlers"
	"guild-archive/internal"
	"guild-archive/store"
	"guild-archive/util"
)

var debugLogger *slog.Logger

func main() {
	cfg, err := internal.LoadConfig()
	if err != nil {
		panic(err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:           cfg.SentryDSN,
		EnableTracing: false,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if cfg.Environment == "PROD" { // only log events in prod
				return event
			}
			return nil
		},
	})
	if err != nil {
		panic(err)
	}

	defer sentry.Flush(2 * time.Second)

	fileWriter, err := os.OpenFile("archive.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		panic(err)
	}
	defer fileWriter.Close()
	debugLogger = slog.New(slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	logger := slog.New(slogmulti.Fanout(
		tint.NewHandler(os.Stdout, &tint.Options{
			Level: slog.LevelInfo,
		}),
		sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
		}.NewSentryHandler(context.Background())))
	slog.SetDefault(logger)

	slog.Info("starting the archiver...", slog.String("disgo.version", disgo.Version))

	var index *db.DB
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			panic(err)
		}
		defer pool.Close()
		index = db.NewDB(pool)
		if err := index.Init(context.Background()); err != nil {
			panic(err)
		}
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	b := &internal.Bot{
		Store: st,
		DB:    index,
	}
	h := handlers.NewHandler(b, cfg)

	done := make(chan struct{})
	var ready sync.Once

	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds),
			gateway.WithPresenceOpts(gateway.WithWatchingActivity("the archives"))),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagChannels, cache.FlagRoles, cache.FlagMembers)),
		bot.WithEventListeners(h, &events.ListenerAdapter{
			OnGuildReady: func(event *events.GuildReady) {
				if event.GuildID != cfg.GuildID {
					return
				}
				debugLogger.Debug("archive: guild ready", slog.Any("guild.id", event.GuildID))
				if !cfg.RunOnReady {
					return
				}
				ready.Do(func() {
					go func() {
						defer close(done)
						if _, err := b.Archiver.Run(context.Background()); err != nil {
							slog.Error("archive: run failed", tint.Err(err))
						}
					}()
				})
			},
		}))
	if err != nil {
		panic(err)
	}

	defer client.Close(context.TODO())

	b.Archiver = archive.New(client, st, index, util.NewMediaClient(), archive.Options{
		GuildID:          cfg.GuildID,
		OutputDir:        cfg.OutputDir,
		ResumeDir:        cfg.ResumeDir,
		SkipMedia:        cfg.SkipMedia,
		MediaConcurrency: cfg.MediaConcurrency,
	})

	if _, err := client.Rest().SetGuildCommands(client.ApplicationID(), cfg.GuildID, handlers.Commands()); err != nil {
		slog.Error("error while registering guild commands", tint.Err(err))
	}

	if err := client.OpenGateway(context.TODO()); err != nil {
		panic(err)
	}

	slog.Info("guild archive bot is now running.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt, os.Kill)
	if cfg.RunOnReady {
		select {
		case <-done:
		case <-s:
		}
		return
	}
	<-s
}
