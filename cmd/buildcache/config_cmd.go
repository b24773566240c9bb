package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/raphi011/buildcache/internal/config"
	"github.com/raphi011/buildcache/internal/log"
	"github.com/raphi011/buildcache/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage configuration",
		Aliases: []string{"cfg"},
		GroupID: GroupConfig,
		Long: `Manage buildcache configuration.

Global config: ~/.config/buildcache/config.toml ($BUILDCACHE_CONFIG)
Local config:  .buildcache.toml (in the working directory)`,
		Example: `  buildcache config init          # Create default global config
  buildcache config init --local  # Create local config
  buildcache config show          # Show effective config`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

const defaultLocalConfig = `# buildcache local configuration
# Overrides the global config for this working directory.

# cache_dir = ".cache"

# [log]
# level = "debug"
`

func newConfigInitCmd() *cobra.Command {
	var (
		force  bool
		stdout bool
		local  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default config file",
		Args:  cobra.NoArgs,
		Long: `Create default config file.

Without flags, creates the global config. With --local, creates
.buildcache.toml in the working directory.`,
		Example: `  buildcache config init           # Create global config
  buildcache config init --local   # Create local config
  buildcache config init -f        # Overwrite existing config
  buildcache config init -s        # Print config to stdout`,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := log.FromContext(ctx)
			out := output.FromContext(ctx)

			content := config.DefaultConfig()
			if local {
				content = defaultLocalConfig
			}
			if stdout {
				out.Print(content)
				return nil
			}

			if !local {
				path, err := config.Init(force)
				if err != nil {
					return err
				}
				l.Printf("Created config file: %s\n", path)
				return nil
			}

			path := filepath.Join(config.WorkDirFromContext(ctx), config.LocalConfigFileName)
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("local config already exists: %s (use -f to overwrite)", path)
				}
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			l.Printf("Created local config: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config")
	cmd.Flags().BoolVarP(&stdout, "stdout", "s", false, "Print config to stdout")
	cmd.Flags().BoolVar(&local, "local", false, "Create .buildcache.toml instead of global config")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		Long: `Show effective configuration.

Prints the merged result of the global config, the local config, the
BUILDCACHE_* environment and command line flags, followed by the resolved
cache directory.`,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			out := output.FromContext(ctx)
			workDir := config.WorkDirFromContext(ctx)

			globalPath, err := config.Path()
			if err != nil {
				globalPath = "(unavailable)"
			}
			localPath := filepath.Join(workDir, config.LocalConfigFileName)
			if _, err := os.Stat(localPath); err != nil {
				localPath = "(none)"
			}

			out.Printf("# global: %s\n", globalPath)
			out.Printf("# local:  %s\n", localPath)
			if cacheDir, err := cfg.ResolveCacheDir(workDir); err == nil {
				out.Printf("# resolved cache dir: %s\n", cacheDir)
			}
			out.Println()

			return toml.NewEncoder(out.Writer()).Encode(cfg)
		},
	}

	return cmd
}
