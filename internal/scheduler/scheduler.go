package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"kitsu2sonarr/internal/config"
	"kitsu2sonarr/internal/kitsu"
	"kitsu2sonarr/internal/library"
	"kitsu2sonarr/internal/reconcile"
	"kitsu2sonarr/internal/sonarr"
	"kitsu2sonarr/internal/util"

	"github.com/robfig/cron/v3"
)

const scheduleTagText = "[SCHEDULE]"

// Quietable is a component whose logging is muted during scheduled runs.
type Quietable interface {
	GetLogger() *log.Logger
	SetLogger(*log.Logger)
}

type Runner interface {
	Run(ctx context.Context) (reconcile.Summary, error)
}

var quietLogger = log.New(io.Discard, "", 0)

func classify(err error) string {
	var rejected *sonarr.RemoteRejectedError
	switch {
	case errors.Is(err, library.ErrStoreLocked):
		return util.Yellow("[STATUS] SKIPPED (Another run holds the library lock)")
	case errors.Is(err, library.ErrCorruptStore):
		return util.RedBold("[STATUS] ERROR (Library file is corrupt)")
	case errors.Is(err, kitsu.ErrRemoteUnavailable), errors.Is(err, kitsu.ErrMalformedResponse):
		return util.RedBold("[STATUS] ERROR (Kitsu)")
	case errors.As(err, &rejected), errors.Is(err, sonarr.ErrRemoteUnavailable):
		return util.RedBold("[STATUS] ERROR (Sonarr)")
	}
	return util.RedBold("[STATUS] ERROR")
}

func runChecks(ctx context.Context, runner Runner, dryRun bool, isScheduledRun bool, quiet []Quietable) (int, bool) {
	if isScheduledRun {
		originals := make([]*log.Logger, len(quiet))
		for i, q := range quiet {
			originals[i] = q.GetLogger()
			q.SetLogger(quietLogger)
		}
		defer func() {
			for i, q := range quiet {
				q.SetLogger(originals[i])
			}
		}()
	}

	sum, err := runner.Run(ctx)

	if isScheduledRun && err == nil && !sum.Changed() {
		return 0, true
	}

	log.Println()
	if err != nil {
		log.Printf("  %s %v", util.RedBold("!!! ERROR"), err)
		log.Printf("  %s", classify(err))
	} else if sum.Changed() {
		log.Printf("  %s", util.GreenBold("[STATUS] OK (New actions taken)"))
	} else {
		log.Printf("  %s", util.GreenBold("[STATUS] OK (No new actions)"))
	}

	var statsParts []string
	statsParts = append(statsParts, "Library: "+util.BlueBold(strconv.Itoa(sum.Known)))
	statsParts = append(statsParts, "Entries: "+util.BlueBold(strconv.Itoa(sum.Entries)))
	statsParts = append(statsParts, "New: "+util.GreenBold(strconv.Itoa(sum.Discovered)))
	statsParts = append(statsParts, "Added: "+util.GreenBold(strconv.Itoa(sum.Delivered)))
	if sum.AlreadyPresent > 0 {
		statsParts = append(statsParts, "Already in Sonarr: "+util.Green(strconv.Itoa(sum.AlreadyPresent)))
	}
	if sum.Skipped() > 0 {
		statsParts = append(statsParts, "Skipped: "+util.YellowBold(strconv.Itoa(sum.Skipped())))
	}
	if sum.SkippedUnmapped > 0 {
		statsParts = append(statsParts, "No TVDB mapping: "+util.Yellow(strconv.Itoa(sum.SkippedUnmapped)))
	}
	if sum.Held > 0 {
		statsParts = append(statsParts, util.Purple("Movies not sent: ")+util.Purple(strconv.Itoa(sum.Held)))
	}
	if sum.Failed > 0 {
		statsParts = append(statsParts, "Failed: "+util.RedBold(strconv.Itoa(sum.Failed)))
	}
	log.Printf("%s %s", util.Cyan("[Run Stats]"), strings.Join(statsParts, " | "))

	if dryRun {
		log.Printf("  %s", util.YellowBold("(Dry Run - No changes made)"))
		if sum.Pending > 0 {
			log.Printf("  %s %d show(s) would have been added.", util.Yellow("[DRY RUN]"), sum.Pending)
		}
	}

	if err != nil {
		log.Println(util.Red("  Run completed with errors. Re-running resumes where it stopped."))
		return 1, false
	}
	log.Println(util.Green("  Run completed successfully."))
	return 0, false
}

// Run performs a single sync, or when a cron spec is configured, an initial
// verbose sync followed by scheduled ones until ctx is cancelled. It returns
// the number of failed runs.
func Run(ctx context.Context, appConfig config.Config, runner Runner, quiet ...Quietable) int {
	cronSpec := appConfig.Schedule.CronSpec
	dryRun := appConfig.DryRun
	schedulerTagColored := util.YellowBold(scheduleTagText)

	jobFuncWrapper := func() {
		runStartTime := time.Now()
		errorsInRun, wasAllQuietOrNoOp := runChecks(ctx, runner, dryRun, true, quiet)

		if wasAllQuietOrNoOp && errorsInRun == 0 {
			dayWithSuffix := strconv.Itoa(runStartTime.Day()) + util.GetOrdinalSuffix(runStartTime.Day())
			dateTimePart := fmt.Sprintf("%s %s %d at %s",
				dayWithSuffix, runStartTime.Month().String(), runStartTime.Year(), runStartTime.Format("15:04"))
			durationPart := fmt.Sprintf("took %s", time.Since(runStartTime).Round(time.Millisecond).String())
			detailsInsideParentheses := util.Gray(fmt.Sprintf("%s, %s", dateTimePart, durationPart))

			log.Printf("%s %s %s%s%s",
				schedulerTagColored,
				"Watch-list checked, all quiet.",
				util.Gray("("),
				detailsInsideParentheses,
				util.Gray(")"))
			return
		}
		log.Printf("%s ----- Scheduled Run Finished (%s, Duration: %s) -----",
			schedulerTagColored,
			time.Now().Format("2006-01-02 15:04:05"),
			time.Since(runStartTime).Round(time.Millisecond))
		if errorsInRun > 0 {
			log.Printf("%s   Note: Scheduled run completed with %s.", schedulerTagColored, util.Yellow("issues"))
		}
		log.Println()
	}

	if cronSpec == "" {
		log.Println()
		log.Println(util.BlueBold("--- Single Run Mode ---"))
		errs, _ := runChecks(ctx, runner, dryRun, false, quiet)
		return errs
	}

	log.Println(util.BlueBold("\n--- Scheduler Mode ---"))
	log.Printf("%s Cron Spec: %s.", schedulerTagColored, util.Yellow(cronSpec))
	log.Printf("%s Performing initial sync (verbose)...", schedulerTagColored)
	_, _ = runChecks(ctx, runner, dryRun, false, quiet)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cronSpec, jobFuncWrapper); err != nil {
		log.Printf("%s Failed to add cron job: %v", util.RedBold("!!! FATAL"), err)
		return 1
	}
	log.Printf("%s Scheduler active. Waiting for next run...", schedulerTagColored)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("%s Stopped.", schedulerTagColored)
	return 0
}
