package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"kitsu2sonarr/internal/config"
	"kitsu2sonarr/internal/sonarr"
	"kitsu2sonarr/internal/util"
)

const maxProfilePrompts = 3

type profileLister interface {
	QualityProfiles(ctx context.Context) ([]sonarr.QualityProfile, error)
	SetProfileID(id int)
}

// ensureProfile makes sure a quality profile is chosen before anything is sent
// to Sonarr. A configured id is used as is. Otherwise the profiles are listed,
// one is picked (automatically when there is only one, by prompt when in is a
// terminal) and the choice is written back to the config file.
func ensureProfile(ctx context.Context, cfg *config.Config, client profileLister, in io.Reader, out io.Writer, interactive bool) error {
	if cfg.Sonarr.ProfileID > 0 {
		client.SetProfileID(cfg.Sonarr.ProfileID)
		return nil
	}

	profiles, err := client.QualityProfiles(ctx)
	if err != nil {
		return fmt.Errorf("looking up Sonarr quality profiles: %w", err)
	}
	id, err := chooseProfile(profiles, in, out, interactive)
	if err != nil {
		return err
	}
	if err := cfg.SaveProfileID(id); err != nil {
		return fmt.Errorf("saving sonarr.profile_id: %w", err)
	}
	client.SetProfileID(id)
	fmt.Fprintf(out, "%s Using quality profile %s, saved to %s.\n",
		util.Cyan("[SONARR]"), util.Yellow(strconv.Itoa(id)), cfg.File)
	return nil
}

func chooseProfile(profiles []sonarr.QualityProfile, in io.Reader, out io.Writer, interactive bool) (int, error) {
	if len(profiles) == 0 {
		return 0, errors.New("Sonarr has no quality profiles")
	}
	if len(profiles) == 1 {
		return profiles[0].ID, nil
	}

	valid := make(map[int]bool, len(profiles))
	var names []string
	for _, p := range profiles {
		valid[p.ID] = true
		names = append(names, fmt.Sprintf("%d=%s", p.ID, p.Name))
	}
	if !interactive {
		return 0, fmt.Errorf("%w: sonarr.profile_id is not defined (available: %s)",
			config.ErrConfigIncomplete, strings.Join(names, ", "))
	}

	fmt.Fprintln(out, "Which Sonarr quality profile should new shows use?")
	for _, p := range profiles {
		fmt.Fprintf(out, "  %s %s\n", util.Yellow(fmt.Sprintf("%4d", p.ID)), p.Name)
	}

	scanner := bufio.NewScanner(in)
	for attempt := 0; attempt < maxProfilePrompts; attempt++ {
		fmt.Fprint(out, "Profile id: ")
		if !scanner.Scan() {
			break
		}
		id, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && valid[id] {
			return id, nil
		}
		fmt.Fprintf(out, "%s %q is not one of the listed ids.\n", util.Yellow("[WARN]"), scanner.Text())
	}
	return 0, fmt.Errorf("%w: no quality profile chosen", config.ErrConfigIncomplete)
}
