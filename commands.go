package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"kitsu2sonarr/internal/config"
	"kitsu2sonarr/internal/kitsu"
	"kitsu2sonarr/internal/library"
	"kitsu2sonarr/internal/reconcile"
	"kitsu2sonarr/internal/scheduler"
	"kitsu2sonarr/internal/sonarr"
	"kitsu2sonarr/internal/util"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("sync finished with errors")

type options struct {
	configPath string
	dryRun     bool
}

func (o *options) loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "kitsu2sonarr",
		Short:         "Import your shows from Kitsu to Sonarr",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Log what would change without writing the library or Sonarr")

	rootCmd.AddCommand(newSyncCommand(opts))
	rootCmd.AddCommand(newProfilesCommand(opts))
	rootCmd.AddCommand(newRootFoldersCommand(opts))

	return rootCmd
}

func newSyncCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Add new shows from the Kitsu library to Sonarr (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	log.Println(util.BlueBold("--- Kitsu to Sonarr ---"))
	if cfg.DryRun {
		log.Println(util.YellowBold(" *** DRY RUN MODE ENABLED ***"))
	}

	appBaseLogger := log.Default()
	kClient := kitsu.NewClient(cfg, appBaseLogger)
	sClient := sonarr.NewClient(cfg, appBaseLogger)

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if err := ensureProfile(ctx, &cfg, sClient, os.Stdin, os.Stdout, interactive); err != nil {
		return err
	}
	if err := kClient.Login(ctx); err != nil {
		return err
	}

	store := library.NewStore(cfg.Store.Path, appBaseLogger)
	engine := reconcile.NewEngine(kClient, sClient, store, reconcile.Options{
		UserID:            cfg.Kitsu.UserID,
		DryRun:            cfg.DryRun,
		ResetCorruptStore: cfg.Store.OnCorrupt == config.OnCorruptReset,
	}, appBaseLogger)

	if errorCount := scheduler.Run(ctx, cfg, engine, engine, store, kClient, sClient); errorCount > 0 {
		return errRunFailed
	}
	return nil
}

func newProfilesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the quality profiles available in Sonarr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			profiles, err := sonarr.NewClient(cfg, log.Default()).QualityProfiles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range profiles {
				marker := util.Iif(p.ID == cfg.Sonarr.ProfileID, util.GreenBold("*"), " ")
				fmt.Fprintf(out, "%s %s %s\n", marker, util.Yellow(fmt.Sprintf("%4d", p.ID)), p.Name)
			}
			return nil
		},
	}
}

func newRootFoldersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rootfolders",
		Short: "List the root folders configured in Sonarr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			folders, err := sonarr.NewClient(cfg, log.Default()).RootFolders(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			found := false
			for _, f := range folders {
				configured := f.Path == cfg.Sonarr.RootFolder
				found = found || configured
				fmt.Fprintf(out, "%s %s %s\n",
					util.Iif(configured, util.GreenBold("*"), " "),
					util.Yellow(fmt.Sprintf("%4d", f.ID)), f.Path)
			}
			if !found {
				fmt.Fprintf(out, "%s sonarr.root_folder %q is not one of Sonarr's root folders.\n",
					util.YellowBold("[WARN]"), cfg.Sonarr.RootFolder)
			}
			return nil
		},
	}
}
