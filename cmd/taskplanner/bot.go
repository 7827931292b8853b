package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"task-planner/internal/api"
	"task-planner/internal/bot"
	"task-planner/internal/service"
)

func botCmd() *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with reminders and periodic reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(withAPI)
		},
	}
	cmd.Flags().BoolVar(&withAPI, "with-api", false, "also serve the HTTP API on HTTP_ADDR")
	return cmd
}

func runBot(withAPI bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	reports := service.NewReportService(a.loc)
	telegramBot, err := bot.New(cfg.TelegramToken, a.users, a.stores, reports, &a.cfg, a.loc)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	a.reminders.SetSender(telegramBot)

	if err := a.restoreReminders(ctx); err != nil {
		return err
	}

	reportJob := func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("report: %v", err)
		}
	}
	reportSchedule, err := scheduleReports(a.scheduler, cfg.ReportTime, cfg.ReportInterval, reportJob)
	if err != nil {
		return err
	}
	telegramBot.OnIntervalChange(reportSchedule.setInterval)
	a.scheduler.Start()

	if withAPI {
		server := api.NewServer(a.stores, a.loc)
		go func() {
			log.Printf("[info] http api listening on %s", cfg.HTTPAddr)
			if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
				log.Printf("http api: %v", err)
			}
		}()
	}

	log.Println("Task planner bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}
	log.Println("Shutdown complete.")
	return nil
}

// reportSchedule keeps track of the cron entry used for periodic reports.
type reportSchedule struct {
	scheduler *service.SchedulerService
	job       func()

	mu    sync.Mutex
	entry cron.EntryID
}

// scheduleReports registers the report job daily at reportTime or, without one, every interval.
func scheduleReports(scheduler *service.SchedulerService, reportTime string, interval time.Duration, job func()) (*reportSchedule, error) {
	rs := &reportSchedule{scheduler: scheduler, job: job}

	var err error
	if reportTime != "" {
		rs.entry, err = scheduler.ScheduleDaily(reportTime, job)
		if err != nil {
			return nil, fmt.Errorf("schedule reports at %s: %w", reportTime, err)
		}
		log.Printf("[info] reports scheduled daily at %s", reportTime)
		return rs, nil
	}

	if interval <= 0 {
		return rs, nil
	}
	rs.entry, err = scheduler.ScheduleInterval(interval, job)
	if err != nil {
		return nil, fmt.Errorf("schedule reports: %w", err)
	}
	log.Printf("[info] reports scheduled every %s", interval)
	return rs, nil
}

func (rs *reportSchedule) setInterval(interval time.Duration) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	entry, err := rs.scheduler.ScheduleInterval(interval, rs.job)
	if err != nil {
		return err
	}
	if rs.entry != 0 {
		rs.scheduler.Remove(rs.entry)
	}
	rs.entry = entry
	log.Printf("[info] reports rescheduled every %s", interval)
	return nil
}
