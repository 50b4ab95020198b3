// Command catalogctl manages catalog templates from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goliatone/go-catalog-templates/internal/config"
	"github.com/goliatone/go-catalog-templates/pkg/di"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

func main() {
	a := newApp(os.Stdout)
	if err := a.execute(a.rootCmd()); err != nil {
		os.Exit(1)
	}
}

// skipContainer marks commands that run without opening the container.
const skipContainer = "catalogctl/skip-container"

// app carries the container built for the running command.
type app struct {
	out        io.Writer
	configFile string
	envFile    string
	container  *di.Container
}

func newApp(out io.Writer) *app {
	return &app{out: out}
}

// execute runs cmd and closes the container whether or not the command failed.
func (a *app) execute(cmd *cobra.Command) (err error) {
	defer func() {
		if closeErr := a.close(); err == nil {
			err = closeErr
		}
	}()
	return cmd.Execute()
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "catalogctl",
		Short:        "Manage catalog templates and review types",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipContainer] != "" {
				return nil
			}
			return a.open(cmd.Context())
		},
	}
	rootCmd.SetOut(a.out)
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Path to an optional .env file")

	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(a.seedCmd())
	rootCmd.AddCommand(a.listCmd())
	rootCmd.AddCommand(a.getCmd())
	rootCmd.AddCommand(a.kindsCmd())
	return rootCmd
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configFile, a.envFile)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.container, err = di.NewContainer(ctx, *cfg)
	return err
}

func (a *app) close() error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	return err
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.container.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "tables ready")
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Insert the records of a JSON file keyed by kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryBadInput, "read seed file")
			}

			var byKind map[string]json.RawMessage
			if err := json.Unmarshal(data, &byKind); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode seed file")
			}
			for kind := range byKind {
				if _, err := lookupKind(a.container, kind); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if err := a.container.Migrate(ctx); err != nil {
				return err
			}

			ops := kinds(a.container)
			for _, kind := range kindOrder {
				raw, ok := byKind[kind]
				if !ok {
					continue
				}
				n, err := ops[kind].insert(ctx, raw)
				if err != nil {
					return goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("seed %s after %d records", kind, n))
				}
				fmt.Fprintf(a.out, "%s: %d inserted\n", kind, n)
			}
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var productReviewID int64

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "Print every record of a kind as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := lookupKind(a.container, args[0])
			if err != nil {
				return err
			}
			records, err := ops.list(cmd.Context(), productReviewID)
			if err != nil {
				return err
			}
			return a.print(records)
		},
	}
	cmd.Flags().Int64Var(&productReviewID, "product-review", 0, "Product review id, required for mappings")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := lookupKind(a.container, args[0])
			if err != nil {
				return err
			}
			if ops.get == nil {
				return goerrors.New(args[0]+" records cannot be read by id", goerrors.CategoryBadInput)
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryBadInput, "parse id "+args[1])
			}

			record, ok, err := ops.get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return goerrors.New(fmt.Sprintf("%s %d not found", args[0], id), goerrors.CategoryNotFound)
			}
			return a.print(record)
		},
	}
}

func (a *app) kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "kinds",
		Short:       "List the supported kinds",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipContainer: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range kindOrder {
				fmt.Fprintln(a.out, kind)
			}
			return nil
		},
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
