package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wehubfusion/Daedalus/internal/config"
	"github.com/wehubfusion/Daedalus/pkg/prerender"
	"github.com/wehubfusion/Daedalus/pkg/routes"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
)

func routesCmd(a *app) *cobra.Command {
	var outDir string
	var origin string
	var extra []string

	c := &cobra.Command{
		Use:   "routes",
		Short: "Prerender the configured routes and emit one document per route",
		Long: "Compiles the prerender bundle once and renders it for every route. Route failures " +
			"are reported in a summary; the command still succeeds so the build can continue.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				rc := a.config.Routes
				list := append([]routes.Route(nil), rc.Paths...)
				for _, p := range extra {
					list = append(list, routes.Route{Path: p})
				}
				if len(list) == 0 {
					return fmt.Errorf("no routes configured")
				}
				if origin != "" {
					rc.Origin = origin
				}
				if outDir != "" {
					rc.OutDir = outDir
				}

				var template string
				if rc.Template != "" {
					b, err := os.ReadFile(rc.Template)
					if err != nil {
						return err
					}
					template = string(b)
				}

				loader, err := prerender.NewLoader(a.config.Prerender, a.logger.Named("prerender"))
				if err != nil {
					return err
				}
				parent, err := a.parent()
				if err != nil {
					return err
				}
				artifact, err := loader.Compile(ctx, parent)
				if err != nil {
					return err
				}

				s, err := strategy.New(a.config.Prerender.Strategy, a.logger.Named("strategy"))
				if err != nil {
					return err
				}
				emitter, err := a.emitter(rc)
				if err != nil {
					return err
				}

				phase := &routes.Phase{
					Emitter:  emitter,
					Reporter: a.reporter,
					Logger:   a.logger.Named("routes"),
				}
				summary := phase.Run(ctx, &routes.SandboxRenderer{
					Artifact: artifact,
					Template: template,
					Origin:   rc.Origin,
					Strategy: s,
					Logger:   a.logger.Named("routes"),
				}, list)

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "rendered %d/%d routes\n", summary.Rendered, summary.Routes)
				for _, location := range summary.Emitted {
					fmt.Fprintf(w, "  %s\n", location)
				}
				return nil
			})
		},
	}

	c.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default <context>/dist)")
	c.Flags().StringVar(&origin, "origin", "", "Origin route paths are resolved against")
	c.Flags().StringSliceVarP(&extra, "route", "r", nil, "Additional route path; repeatable")
	return c
}

func (a *app) emitter(rc config.Routes) (routes.Emitter, error) {
	if rc.Azure != nil {
		return routes.NewAzureBlobEmitter(rc.Azure.ConnectionString, rc.Azure.Container, rc.Azure.Prefix, a.logger.Named("azure"))
	}
	return &routes.FileEmitter{Dir: rc.OutDir}, nil
}
