// Command backfill reports and fills the occurrences a rule should have
// produced but did not.
//
// Usage:
//
//	backfill [-rule ID] [-until YYYY-MM-DD] [-dry-run]
//
// Without -rule every rule is scanned.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cli"
	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/services"
)

func main() {
	ruleID := flag.Int64("rule", 0, "rule ID to scan (default: all rules)")
	until := flag.String("until", "", "last day to scan, YYYY-MM-DD (default: today)")
	dryRun := flag.Bool("dry-run", false, "report missing occurrences without creating them")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentBackfill)
	cfg := cli.LoadAndValidateConfig(logger)

	windowEnd := core.Day(services.SystemClock{}.Now())
	if *until != "" {
		d, err := core.ParseDate(*until)
		if err != nil {
			cli.Fatal(logger, "Invalid -until date", err, "until", *until)
		}
		windowEnd = d
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.OccurrencePublisher
	if cfg.AMQPURL != "" && !*dryRun {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, backfilled occurrences will not be announced", "error", err)
		} else {
			defer client.Close()
			publisher = client
		}
	}
	occurrences := services.NewOccurrenceService(repo, repo, repo, publisher)

	ctx := context.Background()
	var rules []core.RecurrenceRule
	if *ruleID != 0 {
		rule, err := repo.GetRule(ctx, *ruleID)
		if err != nil {
			cli.Fatal(logger, "Failed to load rule", err, "rule_id", *ruleID)
		}
		rules = append(rules, rule)
	} else {
		var err error
		if rules, err = repo.ListRules(ctx); err != nil {
			cli.Fatal(logger, "Failed to list rules", err)
		}
	}

	failed := false
	for _, rule := range rules {
		report, err := occurrences.FindMissing(ctx, rule, windowEnd.Time)
		if err != nil {
			logger.Error("Scan failed", "rule_id", rule.ID, "error", err)
			failed = true
			continue
		}
		fmt.Printf("rule %d %q (%s): expected %d, linked %d, missing %d\n",
			rule.ID, rule.Template.Name, rule.Frequency,
			report.ExpectedCount, report.ActualCount, len(report.MissingDates))
		if len(report.MissingDates) == 0 {
			continue
		}
		fmt.Printf("  missing: %s\n", joinDates(report.MissingDates))
		if *dryRun {
			continue
		}

		result, err := occurrences.Backfill(ctx, rule, report.MissingDates)
		if err != nil {
			logger.Error("Backfill could not link occurrences", "rule_id", rule.ID, "error", err)
			failed = true
		}
		fmt.Printf("  generated %d, relinked %d, failed %d\n",
			len(result.GeneratedIDs), len(result.RelinkedIDs), len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  %s\n", e.Error())
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func joinDates(dates []core.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}
