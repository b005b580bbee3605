package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/api"
	"github.com/azariacindy/MyStudyMate/internal/bot"
	"github.com/azariacindy/MyStudyMate/internal/circuitbreaker"
	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/config"
	"github.com/azariacindy/MyStudyMate/internal/logger"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/notifier"
	"github.com/azariacindy/MyStudyMate/internal/redis"
	"github.com/azariacindy/MyStudyMate/internal/repository"
	"github.com/azariacindy/MyStudyMate/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single reminder cycle and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// logger is not built yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("timezone", zap.Error(err))
	}
	plan, err := cfg.StagePlan()
	if err != nil {
		log.Fatal("stage plan", zap.Error(err))
	}
	clk := clock.NewRealClock(loc)

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	messages := service.NewReminderService(loc)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, messages, loc)
	scheduleSvc := service.NewScheduleService(scheduleRepo, loc, cfg.Reminder.DefaultLeadMinutes)

	var telegramAPI *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		telegramAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatal("telegram", zap.Error(err))
		}
		log.Info("bot authorized", zap.String("account", telegramAPI.Self.UserName))
	}

	breakers := circuitbreaker.NewRegistry()
	sender := buildSender(ctx, cfg, telegramAPI, breakers, clk, log)

	var locker service.Locker = service.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		locker = redis.NewLocker(rdb, log)
	}

	dispatcher := service.NewDispatcher(
		assignmentRepo,
		scheduleRepo,
		userRepo,
		sender,
		locker,
		messages,
		plan,
		clk,
		service.DispatcherConfig{
			Workers:      cfg.Reminder.Workers,
			SendTimeout:  cfg.Reminder.SendTimeout,
			CycleTimeout: cfg.Reminder.CycleTimeout,
			LockTTL:      cfg.Reminder.LockTTL,
		},
		log,
	)

	if *once {
		report, err := dispatcher.Run(ctx, api.TriggerManual)
		log.Info("reminder cycle finished",
			zap.String("cycle_id", report.ID),
			zap.Any("assignments", report.Assignments),
			zap.Any("schedules", report.Schedules),
		)
		if err != nil {
			log.Fatal("reminder cycle", zap.Error(err))
		}
		return
	}

	var telegramBot *bot.Bot
	if telegramAPI != nil {
		telegramBot = bot.New(telegramAPI, userRepo, assignmentSvc, scheduleSvc, messages, clk, loc, log)
	}

	scheduler := service.NewSchedulerService(loc, log)
	if _, err := scheduler.ScheduleInterval(cfg.Reminder.TickInterval, func() {
		dispatcher.Tick(ctx)
	}); err != nil {
		log.Fatal("schedule reminders", zap.Error(err))
	}
	if telegramBot != nil && cfg.Reminder.DigestTime != "" {
		if _, err := scheduler.ScheduleDaily(cfg.Reminder.DigestTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			if err := telegramBot.SendDailyDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("daily digest", zap.Error(err))
			}
		}); err != nil {
			log.Fatal("schedule digest", zap.Error(err))
		}
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewHandler(log, dispatcher, breakers).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Reminder.CycleTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	botDone := make(chan struct{})
	if telegramBot != nil {
		go func() {
			defer close(botDone)
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped with error", zap.Error(err))
			}
		}()
	} else {
		close(botDone)
	}

	log.Info("studymate started",
		zap.String("env", cfg.Env),
		zap.String("timezone", loc.String()),
		zap.Any("stages", plan.Stages()),
		zap.Duration("tick", cfg.Reminder.TickInterval),
	)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
		}
		stop()
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	scheduler.Stop()
	<-botDone
	log.Info("shutdown complete")
}

// buildSender wires every configured transport behind its own breaker.
// The log sender only serves users on the log channel; any other channel
// without a transport fails the send so the stage stays pending.
func buildSender(
	ctx context.Context,
	cfg config.Config,
	telegramAPI *tgbotapi.BotAPI,
	breakers *circuitbreaker.Registry,
	clk clock.Clock,
	log *zap.Logger,
) notifier.Sender {
	protect := func(name string, s notifier.Sender) notifier.Sender {
		bc := circuitbreaker.DefaultConfig(name)
		bc.MaxFailures = cfg.Breaker.MaxFailures
		bc.RecoveryTimeout = cfg.Breaker.RecoveryTimeout
		cb := circuitbreaker.New(bc, log, clk.Now)
		breakers.Add(cb)
		return circuitbreaker.NewProtectedSender(s, cb, log)
	}

	var senders []notifier.Sender
	if cfg.FCM.CredentialsFile != "" {
		fcm, err := notifier.NewFCMSender(ctx, notifier.FCMConfig{
			ProjectID:       cfg.FCM.ProjectID,
			CredentialsFile: cfg.FCM.CredentialsFile,
			Timeout:         cfg.Reminder.SendTimeout,
		}, log)
		if err != nil {
			log.Fatal("fcm", zap.Error(err))
		}
		senders = append(senders, protect(model.ChannelFCM, fcm))
	}
	if cfg.SNS.Enabled {
		sns, err := notifier.NewSNSSender(ctx, notifier.SNSConfig{Region: cfg.SNS.Region}, log)
		if err != nil {
			log.Fatal("sns", zap.Error(err))
		}
		senders = append(senders, protect(model.ChannelSNS, sns))
	}
	if telegramAPI != nil {
		senders = append(senders, protect(model.ChannelTelegram, notifier.NewTelegramSender(telegramAPI, log)))
	}
	senders = append(senders, notifier.NewLogSender(log, model.ChannelLog))

	return notifier.NewMultiSender(log, senders...)
}
