package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"

	"sameieportalen.no/internal/admin"
	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/audit"
	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/config"
	"sameieportalen.no/internal/httpapi"
	"sameieportalen.no/internal/lock"
	"sameieportalen.no/internal/mail"
	"sameieportalen.no/internal/obs"
	"sameieportalen.no/internal/store/pg"
)

var version = "0.1.0"

type backends struct {
	roster  auth.RosterRepository
	repo    approval.Repository
	docs    approval.Documents
	admin   admin.Store
	audit   audit.Store
	locker  lock.Locker
	db      *sql.DB
	redis   *redis.Client
	closers []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func main() {
	if err := run(); err != nil {
		obs.Component("main").WithError(err).Fatal("sameieportalen-api failed")
	}
}

func run() error {
	log := obs.Component("main")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo("sameieportalen-api", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer be.close()

	resolver := auth.NewResolver(
		auth.NewRosterAdapter(be.roster, cfg.AdminEmails),
		auth.WithCacheTTL(cfg.RoleCacheTTL),
		auth.WithCacheSize(cfg.RoleCacheMax),
	)
	auditor := audit.NewLogger(be.audit)
	engine := auth.NewEngine(resolver, auditor)

	urlPattern, err := cfg.Approval.URLPattern()
	if err != nil {
		return fmt.Errorf("document url pattern: %w", err)
	}
	svc, err := approval.NewService(
		be.repo,
		be.docs,
		approval.NewRosterRecipients(auth.NewRosterAdapter(be.roster, nil)),
		newMailer(cfg.SMTP),
		engine,
		approval.WithLocker(be.locker),
		approval.WithAuditor(auditor),
		approval.WithDocumentURLPattern(urlPattern),
		approval.WithPublicURL(cfg.PublicURL),
		approval.WithTokenTTL(cfg.Approval.TokenTTL),
	)
	if err != nil {
		return fmt.Errorf("approval service: %w", err)
	}

	ready := httpapi.ReadyCheck{DB: be.db, Redis: be.redis}
	api := httpapi.New(httpapi.Deps{
		Engine:     engine,
		Sessions:   auth.NewSessions(cfg.AuthSecret),
		Approvals:  svc,
		Admin:      admin.NewService(be.admin, engine, resolver, auditor),
		Ready:      ready,
		Version:    version,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	})
	if cfg.AuthSecret == "" {
		log.Warn("SAMEIE_AUTH_SECRET not set, API callers resolve as guests")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(ready)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc health listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.WithError(err).Error("grpc serve")
			}
		}()
	}

	reminders, err := scheduleReminders(svc, cfg.Approval)
	if err != nil {
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		return fmt.Errorf("reminder schedule: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).WithField("version", version).Info("starting sameieportalen-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		log.WithError(err).Error("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if reminders != nil {
		<-reminders.Stop().Done()
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Warn("http shutdown")
	}
	log.Info("stopped")
	return err
}

// openBackends connects to PostgreSQL and Redis when configured and falls
// back to in-memory storage and process-local locks otherwise.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	log := obs.Component("main")
	be := &backends{locker: lock.NewLocal()}

	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		be.closers = append(be.closers, store.Close)
		be.roster, be.repo, be.docs, be.admin, be.audit = store, store, store, store, store
		be.db = store.DB()
	} else {
		log.Warn("SAMEIE_PG_DSN not set, using in-memory storage")
		mem := admin.NewMemoryStore()
		be.roster, be.docs, be.admin = mem, mem, mem
		be.repo = approval.NewMemoryRepository()
	}

	if cfg.RedisURL != "" {
		client, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			be.close()
			return nil, err
		}
		be.closers = append(be.closers, client.Close)
		be.redis = client
		be.locker = lock.NewRedis(client, lock.WithTTL(cfg.LockTTL), lock.WithKeyPrefix(cfg.LockPrefix))
	}
	return be, nil
}

func newMailer(c config.SMTPConfig) mail.Sender {
	if c.Host == "" {
		obs.Component("main").Warn("SAMEIE_SMTP_HOST not set, emails are only logged")
		return mail.NewLogSender()
	}
	return mail.NewSMTPSender(c.Host, c.Port, c.Username, c.Password, c.From)
}

// scheduleReminders starts the reminder job when a cron schedule is configured.
func scheduleReminders(svc *approval.Service, c config.ApprovalConfig) (*cron.Cron, error) {
	if c.ReminderSchedule == "" {
		return nil, nil
	}
	log := obs.Component("reminders")
	sched := cron.New()
	_, err := sched.AddFunc(c.ReminderSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := svc.SendReminders(ctx, c.ReminderAfter)
		if err != nil {
			log.WithError(err).Error("send reminders")
			return
		}
		log.WithField("sent", n).Info("reminders sent")
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
