package ganttsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/surrealdb/ganttsync/pkg/client"
	"github.com/surrealdb/ganttsync/pkg/syncer"
)

// Main runs the ganttsync command line with args and returns when the command
// finishes. Tests call it directly; cancel ctx to stop a running server.
//
//	ganttsync serve --store surrealdb --port 3000
//	ganttsync migrate
//	ganttsync import data.json
//	ganttsync export --output backup.json
//	ganttsync export --remote http://localhost:3000
//
// Every flag may also be given in a config file (--config) or through an
// environment variable prefixed with GANTTSYNC_, for example
// GANTTSYNC_SURREALDB_URL or GANTTSYNC_LOG_LEVEL.
func Main(ctx context.Context, args []string) error {
	cmd := NewCommand(os.Stdout)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewCommand builds the root command. Command output is written to out.
func NewCommand(out io.Writer) *cobra.Command {
	v := NewViper()
	var configFile string

	root := &cobra.Command{
		Use:           "ganttsync",
		Short:         "Synchronization backend for Gantt chart clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("store", StoreSurrealDB, "graph store: memory, surrealdb or postgres")
	flags.String("log-level", "info", "log level")
	flags.String("log-file", "", "log file, rotated by size; stderr when empty")
	flags.Bool("readonly", false, "reject every write")
	bindFlags(v, root, map[string]string{
		"store":     "store",
		"log.level": "log-level",
		"log.file":  "log-file",
		"readonly":  "readonly",
	})

	withApp := func(run func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(v, configFile)
			if err != nil {
				return err
			}
			app, err := New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer app.Close()
			return run(cmd.Context(), app, args)
		}
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the load and sync API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app *App, _ []string) error {
			if !app.IsReadOnly() {
				if err := app.Migrate(ctx); err != nil {
					return err
				}
			}
			if err := app.Run(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		}),
	}
	serve.Flags().Int("port", 3000, "HTTP port")
	bindFlags(v, serve, map[string]string{"port": "port"})

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Provision tables and indexes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app *App, _ []string) error {
			return app.Migrate(ctx)
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a project document into the store",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			doc, err := syncer.ReadDocument(f)
			if err != nil {
				return err
			}
			if err := app.Migrate(ctx); err != nil {
				return err
			}
			stats, err := app.Syncer().Import(ctx, doc)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			return writeJSON(out, stats)
		}),
	}

	var remote, output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the project as a document import accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if remote != "" {
				snap, err := client.New(remote).Load(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(w, syncer.SnapshotDocument(snap))
			}
			return withApp(func(ctx context.Context, app *App, _ []string) error {
				doc, err := app.Syncer().Export(ctx)
				if err != nil {
					return err
				}
				return writeJSON(w, doc)
			})(cmd, nil)
		},
	}
	export.Flags().StringVar(&remote, "remote", "", "read from a running server at this URL instead of the store")
	export.Flags().StringVarP(&output, "output", "o", "", "output file; stdout when empty")

	root.AddCommand(serve, migrate, importCmd, export)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
