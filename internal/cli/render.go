package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wehubfusion/Daedalus/pkg/prerender"
	"go.uber.org/zap"
)

func renderCmd(a *app) *cobra.Command {
	var out string
	var entryPath string
	var params string
	var documentURL string
	var kind string
	var as string

	c := &cobra.Command{
		Use:   "render [template]",
		Short: "Prerender one template and print or write the result",
		Long: "Compiles the configured entry as a prerender sub-build, renders it and injects the " +
			"markup into the template. Without a template the default empty document is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				options := a.config.Prerender
				if entryPath != "" {
					abs, err := filepath.Abs(entryPath)
					if err != nil {
						return err
					}
					options.Entry = []string{abs}
				}
				if documentURL != "" {
					options.DocumentURL = documentURL
				}
				if kind != "" {
					options.Strategy.Kind = kind
				}
				if as != "" {
					options.As = as
				}
				if params != "" {
					if err := json.Unmarshal([]byte(params), &options.Params); err != nil {
						return fmt.Errorf("invalid --params: %w", err)
					}
				}

				var request, content string
				if len(args) == 1 {
					b, err := os.ReadFile(args[0])
					if err != nil {
						return err
					}
					request, content = args[0], string(b)
				}

				loader, err := prerender.NewLoader(options, a.logger.Named("prerender"))
				if err != nil {
					return err
				}
				parent, err := a.parent()
				if err != nil {
					return err
				}

				output, err := loader.Load(ctx, parent, request, content)
				if err != nil {
					return err
				}

				if out == "" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), output)
					return err
				}
				if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
					return err
				}
				if err := os.WriteFile(out, []byte(output), 0644); err != nil {
					return err
				}
				a.logger.Info("Wrote prerendered output", zap.String("path", out))
				return nil
			})
		},
	}

	c.Flags().StringVarP(&out, "out", "o", "", "Write the result to this file instead of stdout")
	c.Flags().StringVarP(&entryPath, "entry", "e", "", "Entry to prerender (overrides the build entry)")
	c.Flags().StringVar(&params, "params", "", "JSON value passed to the render function")
	c.Flags().StringVar(&documentURL, "url", "", "Document URL scripts see")
	c.Flags().StringVar(&kind, "strategy", "", "Execution strategy: sandbox|process")
	c.Flags().StringVar(&as, "as", "", "Output form: empty for markup, string for a JS module")
	return c
}
