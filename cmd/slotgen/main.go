// Command slotgen opens hourly slots on a range of days, the way the admin
// form does for a single day. Re-running it with the same flags is safe: each
// hour is keyed in the creation ledger and never created twice while its
// slot exists; deleting a slot from the admin page releases its key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"glazestudio/internal/config"
	"glazestudio/internal/database"
	"glazestudio/internal/domain"
	"glazestudio/internal/modules/admin"
	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/repository"
	"glazestudio/internal/slotapi"
)

func main() {
	from := flag.String("from", time.Now().Format(domain.DateLayout), "first day, YYYY-MM-DD")
	to := flag.String("to", "", "last day, YYYY-MM-DD (defaults to -from)")
	start := flag.Int("start", 10, "first hour, 0-23")
	end := flag.Int("end", 18, "hour after the last slot, 1-24")
	batch := flag.String("batch", "", "batch key; defaults to one derived from the flags")
	skipWeekends := flag.Bool("skip-weekends", false, "leave Saturdays and Sundays closed")
	user := flag.String("user", os.Getenv("SLOTGEN_USER"), "backend admin username")
	password := flag.String("password", os.Getenv("SLOTGEN_PASSWORD"), "backend admin password")
	flag.Parse()

	if *to == "" {
		*to = *from
	}
	if *batch == "" {
		*batch = fmt.Sprintf("slotgen-%d-%d", *start, *end)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	l, err := logger.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	days, err := dayRange(*from, *to, *skipWeekends)
	if err != nil {
		l.Fatal("invalid day range", zap.Error(err))
	}

	db, err := database.Connect(cfg.Ledger.DSN, l)
	if err != nil {
		l.Fatal("ledger connect failed", zap.Error(err))
	}
	ledger := repository.NewCreationLedger(db)
	if err := ledger.Migrate(); err != nil {
		l.Fatal("ledger migrate failed", zap.Error(err))
	}

	client, err := slotapi.New(cfg.Backend.Origin, slotapi.WithLogger(l))
	if err != nil {
		l.Fatal("backend client", zap.Error(err))
	}

	ctx := context.Background()
	if *user != "" {
		token, err := client.Login(ctx, *user, *password)
		if err != nil {
			l.Fatal("login failed", zap.String("reason", slotapi.UserMessage(err)))
		}
		ctx = slotapi.WithToken(ctx, token)
	}

	svc := admin.NewService(client, ledger, nil, l)
	var created, skipped, failed int
	for _, day := range days {
		res, err := svc.CreateRange(ctx, admin.CreateRangeRequest{
			Date:      day,
			StartHour: *start,
			EndHour:   *end,
			BatchKey:  *batch,
		})
		if err != nil {
			l.Fatal("invalid inputs", zap.String("date", day), zap.Error(err))
		}
		created += res.Created
		skipped += res.Skipped
		failed += res.Failed
		fmt.Println(res.Message)
		if allSkipped(res) {
			l.Warn("every hour was already handled by this batch; pass -batch to start a new one",
				zap.String("date", day), zap.String("batch", *batch))
		}
	}

	l.Info("slotgen completed",
		zap.Int("days", len(days)),
		zap.Int("created", created),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

// allSkipped reports a day on which the batch created nothing and nothing
// failed, usually a re-run with the same flags.
func allSkipped(res *admin.CreateRangeResult) bool {
	return res.Created == 0 && res.Failed == 0 && res.Skipped > 0
}

// dayRange lists the dates from..to inclusive.
func dayRange(from, to string, skipWeekends bool) ([]string, error) {
	first, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("-from: %w", err)
	}
	last, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("-to: %w", err)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("-to %s is before -from %s", to, from)
	}

	var days []string
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if skipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		days = append(days, d.Format(domain.DateLayout))
	}
	return days, nil
}
