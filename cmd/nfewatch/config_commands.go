package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nfewatch/internal/config"
	"nfewatch/internal/preflight"
)

const sampleStoreURLLine = `base_url = "http://127.0.0.1:3000"`

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check the nfewatch configuration",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		storeURL   string
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration, optionally pointed at a record store",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("inspect %s: %w", target, err)
			}

			if err := config.CreateSample(target); err != nil {
				return err
			}
			if url := strings.TrimSpace(storeURL); url != "" {
				if err := seedStoreURL(target, url); err != nil {
					_ = os.Remove(target)
					return err
				}
			}
			cfg, _, _, err := config.Load(target)
			if err != nil {
				_ = os.Remove(target)
				return fmt.Errorf("sample does not load: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Artifacts move from %s into %s/<cnpj>/\n", cfg.Paths.SourceDir, cfg.Paths.EntityBaseDir)
			if strings.TrimSpace(storeURL) == "" {
				fmt.Fprintln(out, "Set store.base_url (or NFEWATCH_STORE_URL) to your record store before starting.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination file (default ~/.config/nfewatch/config.toml)")
	cmd.Flags().StringVar(&storeURL, "store-url", "", "Record store base URL written into the sample")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveInitTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(path)
}

// seedStoreURL rewrites the sample's store.base_url in place.
func seedStoreURL(path, url string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)
	if !strings.Contains(text, sampleStoreURLLine) {
		return errors.New("sample configuration has no store.base_url to replace")
	}
	text = strings.Replace(text, sampleStoreURLLine, "base_url = "+strconv.Quote(url), 1)
	return os.WriteFile(path, []byte(text), 0o644)
}

type configReport struct {
	Path       string             `json:"path"`
	FileExists bool               `json:"file_exists"`
	Settings   map[string]string  `json:"settings"`
	Checks     []preflight.Result `json:"checks"`
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and check the artifact directories",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			report := configReport{
				Path:       path,
				FileExists: exists,
				Settings:   effectiveSettings(cfg),
				Checks: []preflight.Result{
					preflight.CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir),
					preflight.CheckDirectoryAccess("Entity base directory", cfg.Paths.EntityBaseDir),
					preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
				},
			}
			failed := preflight.Failed(report.Checks)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderConfigReport(cmd, report)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d directory check(s) failed", len(failed))
			}
			if !ctx.jsonOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
			}
			return nil
		},
	}
}

func effectiveSettings(cfg *config.Config) map[string]string {
	return map[string]string{
		"paths.source_dir":              cfg.Paths.SourceDir,
		"paths.entity_base_dir":         cfg.Paths.EntityBaseDir,
		"paths.processed_subdir":        cfg.Paths.ProcessedSubdir,
		"store.base_url":                cfg.Store.BaseURL,
		"store.fetch_limit":             strconv.Itoa(cfg.Store.FetchLimit),
		"monitor.check_interval":        cfg.CheckInterval().String(),
		"workflow.retry_attempts":       strconv.Itoa(cfg.Workflow.RetryAttempts),
		"workflow.retry_delay":          cfg.RetryDelay().String(),
		"workflow.scan_interval":        cfg.ScanInterval().String(),
		"workflow.processing_timeout":   cfg.ProcessingTimeout().String(),
		"notifications.ntfy_configured": yesNo(strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
}

func renderConfigReport(cmd *cobra.Command, report configReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "Config path: %s\n", report.Path)
	if !report.FileExists {
		fmt.Fprintln(out, "No config file found; built-in defaults apply")
	}

	keys := make([]string, 0, len(report.Settings))
	for key := range report.Settings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, report.Settings[key]})
	}
	fmt.Fprint(out, renderTable([]string{"Setting", "Value"}, rows, nil))

	for _, line := range checkLines(report.Checks, colorize) {
		fmt.Fprintln(out, line)
	}
}
