// Package reconcile pulls a Kitsu watch-list into the local record store and
// pushes records that Sonarr has not seen yet.
//
// A run has two phases. Discovery walks the watch-list and creates a record
// for every new anime TV show or movie that has a TVDB mapping. Delivery sends
// every undelivered TV record to Sonarr. The store is saved after each record
// is created and after each delivery, so a failed run can simply be repeated.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"kitsu2sonarr/internal/kitsu"
	"kitsu2sonarr/internal/library"
	"kitsu2sonarr/internal/sonarr"
	"kitsu2sonarr/internal/util"
)

var engNilLogger = log.New(io.Discard, "", 0)

type Tracker interface {
	FetchWatchList(ctx context.Context, userID string) ([]kitsu.WatchListEntry, error)
	FetchMedia(ctx context.Context, entryID string) (*kitsu.MediaItem, error)
	ResolveCrossReference(ctx context.Context, mediaID string) (string, bool, error)
}

type Manager interface {
	AddShow(ctx context.Context, rec library.Record) (sonarr.AddResult, error)
}

type Store interface {
	Lock() error
	Unlock() error
	Load() (library.Records, error)
	Save(library.Records) error
}

type Options struct {
	UserID string
	DryRun bool
	// ResetCorruptStore continues with an empty map when the store cannot be
	// parsed instead of failing the run.
	ResetCorruptStore bool
}

type Engine struct {
	tracker Tracker
	manager Manager
	store   Store
	opts    Options
	logger  *log.Logger
}

func NewEngine(tracker Tracker, manager Manager, store Store, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = engNilLogger
	}
	return &Engine{tracker: tracker, manager: manager, store: store, opts: opts, logger: logger}
}

func (e *Engine) GetLogger() *log.Logger { return e.logger }

func (e *Engine) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = engNilLogger
	}
	e.logger = logger
}

// Run locks the store, loads it and runs discovery followed by delivery.
// The summary is filled in as far as the run got, also when it fails.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := e.store.Lock(); err != nil {
		return sum, err
	}
	defer func() {
		if err := e.store.Unlock(); err != nil {
			e.logger.Printf("  %s Unlocking store: %v", util.Yellow("[STORE]"), err)
		}
	}()

	records, err := e.load()
	if err != nil {
		return sum, err
	}
	sum.Known = len(records)

	if err := e.Discover(ctx, records, &sum); err != nil {
		return sum, err
	}
	if err := e.Deliver(ctx, records, &sum); err != nil {
		return sum, err
	}
	return sum, nil
}

func (e *Engine) load() (library.Records, error) {
	records, err := e.store.Load()
	if err == nil {
		return records, nil
	}
	if errors.Is(err, library.ErrCorruptStore) && e.opts.ResetCorruptStore {
		e.logger.Printf("  %s %v", util.RedBold("!!! WARNING [STORE]"), err)
		e.logger.Printf("  %s Continuing with an empty library; already delivered shows may be submitted again.",
			util.RedBold("!!! WARNING [STORE]"))
		return library.Records{}, nil
	}
	return nil, err
}

// Discover adds a record for every newly seen eligible watch-list entry.
// records is extended in place and saved after each insert.
func (e *Engine) Discover(ctx context.Context, records library.Records, sum *Summary) error {
	if sum == nil {
		sum = &Summary{}
	}
	e.logger.Printf("%s Gathering new shows from Kitsu...", util.Green("[INFO]"))

	entries, err := e.tracker.FetchWatchList(ctx, e.opts.UserID)
	if err != nil {
		return fmt.Errorf("fetching watch-list: %w", err)
	}
	sum.Entries = len(entries)

	for _, entry := range entries {
		if entry.Status == kitsu.StatusDropped {
			sum.SkippedDropped++
			continue
		}

		item, err := e.tracker.FetchMedia(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("fetching media of library entry %s: %w", entry.ID, err)
		}
		if item == nil {
			sum.SkippedEmpty++
			continue
		}
		if _, known := records[item.ID]; known {
			sum.SkippedKnown++
			continue
		}
		subtype, ok := eligibleSubtype(item)
		if !ok {
			sum.SkippedIneligible++
			continue
		}

		romaji, _ := item.Title(titleLocaleRomaji)
		english, hasEnglish := item.Title(titleLocaleEnglish)
		if romaji == "" && !hasEnglish {
			sum.SkippedUntitled++
			e.logger.Printf("  %s Media %s has no romaji or English title, skipping.",
				util.Yellow("[KITSU]"), item.ID)
			continue
		}

		ref, found, err := e.tracker.ResolveCrossReference(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("resolving tvdb mapping of media %s: %w", item.ID, err)
		}
		if !found {
			sum.SkippedUnmapped++
			e.logger.Printf("  %s No TVDB mapping for %s (media %s) yet.",
				util.Yellow("[KITSU]"), util.Blue(fmt.Sprintf("'%s'", romaji)), item.ID)
			continue
		}

		rec := library.Record{
			Title:   library.Title{Romaji: romaji},
			TVDBRef: ref,
			Subtype: subtype,
		}
		if hasEnglish {
			rec.Title.English = &english
			if rec.Title.Romaji == "" {
				rec.Title.Romaji = english
			}
		} else {
			e.logger.Printf("  %s The English name does not exist on Kitsu for %s.",
				util.Gray("[KITSU]"), util.Blue(fmt.Sprintf("'%s'", romaji)))
		}

		records[item.ID] = rec
		sum.Discovered++
		e.logger.Printf("  %s New %s %s (TVDB: %s)",
			util.Purple("[KITSU]"), string(subtype),
			util.Blue(fmt.Sprintf("'%s'", romaji)), util.Yellow(ref))
		if err := e.save(records); err != nil {
			return err
		}
	}
	return nil
}

// Deliver submits every undelivered TV record and marks it delivered once
// Sonarr has it. The first unexpected failure stops delivery.
func (e *Engine) Deliver(ctx context.Context, records library.Records, sum *Summary) error {
	if sum == nil {
		sum = &Summary{}
	}
	e.logger.Printf("%s Adding shows to Sonarr...", util.Green("[INFO]"))

	for _, id := range records.Keys() {
		rec := records[id]
		if !rec.Deliverable() {
			if !rec.Delivered {
				sum.Held++
			}
			continue
		}

		if e.opts.DryRun {
			title, _ := rec.Title.Display()
			e.logger.Printf("  %s Would add %s %s",
				util.Cyan("[SONARR]"), util.Blue(fmt.Sprintf("'%s'", title)), util.YellowBold("(DRY RUN)"))
			sum.Pending++
			continue
		}

		res, err := e.manager.AddShow(ctx, rec)
		if err != nil {
			sum.Failed++
			return fmt.Errorf("adding media %s (TVDB %s) to Sonarr: %w", id, rec.TVDBRef, err)
		}
		switch res {
		case sonarr.Added:
			sum.Delivered++
		case sonarr.AlreadyExists:
			sum.AlreadyPresent++
		}

		rec.Delivered = true
		records[id] = rec
		if err := e.save(records); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) save(records library.Records) error {
	if e.opts.DryRun {
		return nil
	}
	if err := e.store.Save(records); err != nil {
		return fmt.Errorf("saving library: %w", err)
	}
	return nil
}

const (
	titleLocaleRomaji  = "en_jp"
	titleLocaleEnglish = "en"
)

func eligibleSubtype(item *kitsu.MediaItem) (library.Subtype, bool) {
	if item.Kind != kitsu.KindAnime {
		return "", false
	}
	switch library.Subtype(item.Subtype) {
	case library.SubtypeTV:
		return library.SubtypeTV, true
	case library.SubtypeMovie:
		return library.SubtypeMovie, true
	}
	return "", false
}

// Summary counts what a run did.
type Summary struct {
	Known             int
	Entries           int
	Discovered        int
	SkippedDropped    int
	SkippedEmpty      int
	SkippedKnown      int
	SkippedIneligible int
	SkippedUnmapped   int
	SkippedUntitled   int
	Delivered         int
	AlreadyPresent    int
	Pending           int
	Held              int
	Failed            int
}

// Changed reports whether the run created or delivered anything.
func (s Summary) Changed() bool {
	return s.Discovered > 0 || s.Delivered > 0 || s.AlreadyPresent > 0
}

func (s Summary) Skipped() int {
	return s.SkippedDropped + s.SkippedEmpty + s.SkippedKnown + s.SkippedIneligible + s.SkippedUnmapped + s.SkippedUntitled
}
