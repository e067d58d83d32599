package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nammaroute/companion/internal/app"
	"github.com/nammaroute/companion/internal/guide"
)

var errNoGuide = errors.New("no llm provider configured (set providers.llm in the config file)")

func newGuideCommand(ctx *commandContext) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "guide",
		Short: "Generate tourist content, itineraries and safety advice",
	}
	cmd.PersistentFlags().StringVar(&language, "language", "", "response language (defaults to the assistant language)")

	lang := func() string {
		if language != "" {
			return language
		}
		return ctx.config.Assistant.Language
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "tourist <landmark>",
		Short: "Describe a landmark for visitors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGuide(cmd, ctx, func(c context.Context, application *app.App, g *guide.Generator) (string, error) {
				name := strings.Join(args, " ")
				if lm, err := application.Catalog().FindLandmark(name); err == nil {
					name = lm.Name
				}
				return g.TouristContent(c, name, lang())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "itinerary <city>",
		Short: "Plan a short trip around a city",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGuide(cmd, ctx, func(c context.Context, _ *app.App, g *guide.Generator) (string, error) {
				return g.Itinerary(c, strings.Join(args, " "), lang())
			})
		},
	})

	var (
		lat, lng   float64
		reportType string
	)
	safety := &cobra.Command{
		Use:   "safety",
		Short: "Emergency guidance for the given position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGuide(cmd, ctx, func(c context.Context, _ *app.App, g *guide.Generator) (string, error) {
				return g.SafetyProtocol(c, lat, lng, reportType)
			})
		},
	}
	safety.Flags().Float64Var(&lat, "lat", 0, "latitude")
	safety.Flags().Float64Var(&lng, "lng", 0, "longitude")
	safety.Flags().StringVar(&reportType, "type", "general", "kind of emergency")
	_ = safety.MarkFlagRequired("lat")
	_ = safety.MarkFlagRequired("lng")
	cmd.AddCommand(safety)

	return cmd
}

func withGuide(cmd *cobra.Command, cc *commandContext, fn func(context.Context, *app.App, *guide.Generator) (string, error)) error {
	c := cmd.Context()
	application, err := newApp(c, cc.config, app.WithLogLevel(cc.logLevel))
	if err != nil {
		return err
	}
	defer func() { _ = application.Shutdown(context.Background()) }()

	g := application.Guide()
	if g == nil {
		return errNoGuide
	}
	text, err := fn(c, application, g)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
