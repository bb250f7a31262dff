package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/assets"
	"github.com/daryltucker/suite-runner/internal/output"
)

func newInitCmd(_ *app) *cobra.Command {
	var force, withSettings bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example suite file (default ./suite.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "suite.yaml"
			if len(args) == 1 {
				target = args[0]
			}

			files := map[string]string{target: assets.SuitePath}
			if withSettings {
				files[filepath.Join(filepath.Dir(target), "suite-runner.yaml")] = assets.SettingsPath
			}

			for path, embedded := range files {
				if err := writeAsset(path, embedded, force); err != nil {
					return err
				}
				output.Logger.Info("Wrote example", "path", path)
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	cmd.Flags().BoolVar(&withSettings, "settings", false, "also write an example suite-runner.yaml next to the suite")
	return cmd
}

func writeAsset(path, embedded string, force bool) error {
	content, err := fs.ReadFile(assets.Examples, embedded)
	if err != nil {
		return fmt.Errorf("failed to read embedded %s: %w", embedded, err)
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
