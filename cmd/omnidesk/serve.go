package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/gmail"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/webform"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/whatsapp"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/db"
	"github.com/omnidesk/omnidesk/internal/guardrail"
	"github.com/omnidesk/omnidesk/internal/handlers"
	"github.com/omnidesk/omnidesk/internal/identity"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/metrics"
	"github.com/omnidesk/omnidesk/internal/pipeline"
	"github.com/omnidesk/omnidesk/internal/queue"
	"github.com/omnidesk/omnidesk/internal/responder"
	"github.com/omnidesk/omnidesk/internal/sentiment"
	"github.com/omnidesk/omnidesk/internal/server"
	"github.com/omnidesk/omnidesk/internal/store"
	"github.com/omnidesk/omnidesk/internal/ticket"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			store.NewCustomerStore,
			store.NewConversationStore,
			store.NewMessageStore,
			store.NewTicketStore,
			store.NewMetricStore,
			store.NewKnowledgeStore,
			provideChannelRegistry,
			provideIdentityResolver,
			provideConversationManager,
			provideTicketService,
			sentiment.NewKeywordScorer,
			guardrail.NewEngine,
			provideResponder,
			provideProducer,
			provideRecorder,
			provideCollector,
			provideProcessor,
			provideWorkers,
			provideServerHandler(provideGmailWebhookHandler),
			provideServerHandler(provideWhatsAppWebhookHandler),
			provideServerHandler(provideSupportFormHandler),
			provideServerHandler(handlers.NewTicketsHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(handlers.NewKnowledgeHandler),
			provideServerHandler(handlers.NewCustomersHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startWorkers,
			startCollector,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(gmail.New(log, cfg.Gmail, cfg.Mailgun))
	registry.MustRegister(whatsapp.New(log, cfg.Twilio))
	registry.MustRegister(webform.New(log))
	return registry
}

func provideIdentityResolver(log *slog.Logger, customers *store.CustomerStore) *identity.Resolver {
	return identity.NewResolver(log, customers)
}

func provideConversationManager(log *slog.Logger, cfg config.Config, conversations *store.ConversationStore) *conversation.Manager {
	return conversation.NewManager(log, conversations, cfg.Conversation.ScopeByChannel)
}

func provideTicketService(log *slog.Logger, tickets *store.TicketStore) *ticket.Service {
	return ticket.NewService(log, tickets)
}

func provideResponder(log *slog.Logger, cfg config.Config) responder.Responder {
	return responder.NewClient(log, cfg.Responder)
}

func provideProducer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *queue.Producer {
	producer := queue.NewProducer(log, cfg.Kafka)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return producer.Close() }})
	return producer
}

func provideRecorder(log *slog.Logger, metricStore *store.MetricStore) *metrics.Recorder {
	return metrics.NewRecorder(log, metricStore)
}

func provideCollector(log *slog.Logger, cfg config.Config, metricStore *store.MetricStore, recorder *metrics.Recorder) *metrics.Collector {
	return metrics.NewCollector(log, metricStore, recorder, cfg.Metrics)
}

func provideProcessor(
	log *slog.Logger,
	cfg config.Config,
	registry *channel.Registry,
	resolver *identity.Resolver,
	conversations *conversation.Manager,
	tickets *ticket.Service,
	messages *store.MessageStore,
	scorer *sentiment.KeywordScorer,
	guard *guardrail.Engine,
	resp responder.Responder,
	recorder *metrics.Recorder,
) *pipeline.Processor {
	return pipeline.NewProcessor(log, cfg.Pipeline, registry, resolver, conversations, tickets, messages, scorer, guard, resp, recorder)
}

// workerSet holds one consumer and worker per configured pipeline worker.
// Each worker owns its reader; the group balances partitions across them.
type workerSet struct {
	workers   []*pipeline.Worker
	consumers []*queue.Consumer
}

func provideWorkers(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, producer *queue.Producer, processor *pipeline.Processor, registry *channel.Registry) *workerSet {
	count := cfg.Pipeline.Workers
	if count < 1 {
		count = 1
	}
	set := &workerSet{}
	for i := 0; i < count; i++ {
		consumer := queue.NewConsumer(log, cfg.Kafka)
		set.consumers = append(set.consumers, consumer)
		set.workers = append(set.workers, pipeline.NewWorker(log, consumer, producer, processor, registry))
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		for _, consumer := range set.consumers {
			if err := consumer.Close(); err != nil {
				log.Error("consumer close failed", slog.Any("error", err))
			}
		}
		return nil
	}})
	return set
}

type serverParams struct {
	fx.In

	Config         config.Config
	Logger         *slog.Logger
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func provideGmailWebhookHandler(log *slog.Logger, registry *channel.Registry, producer *queue.Producer) *handlers.GmailWebhookHandler {
	return handlers.NewGmailWebhookHandler(log, registry, producer)
}

func provideWhatsAppWebhookHandler(log *slog.Logger, registry *channel.Registry, producer *queue.Producer, cfg config.Config) *handlers.WhatsAppWebhookHandler {
	return handlers.NewWhatsAppWebhookHandler(log, registry, producer, cfg.Twilio)
}

func provideSupportFormHandler(log *slog.Logger, resolver *identity.Resolver, conversations *conversation.Manager, tickets *ticket.Service, messages *store.MessageStore, producer *queue.Producer) *handlers.SupportFormHandler {
	return handlers.NewSupportFormHandler(log, resolver, conversations, tickets, messages, producer)
}

func provideHealthHandler(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log, pool, cfg.Gmail, cfg.Twilio)
}

func startWorkers(lc fx.Lifecycle, log *slog.Logger, set *workerSet) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, worker := range set.workers {
				go worker.Run(ctx)
			}
			log.Info("pipeline workers started", slog.Int("count", len(set.workers)))
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startCollector(lc fx.Lifecycle, collector *metrics.Collector) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go collector.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
