package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"badge-print-service/internal/cache"
	"badge-print-service/internal/generator"
	"badge-print-service/internal/grid"
	"badge-print-service/internal/logging"
	"badge-print-service/internal/models"
	"badge-print-service/internal/parser"
	"badge-print-service/internal/render/pdf"
	"badge-print-service/internal/resolver"
)

// Build information (set by the release build)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "badgectl",
		Short:         "Render badge sheets offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  badgectl render --template badge.json --registrants attendees.json --out badges.pdf
  badgectl render --template badge.json --registrants attendees.json --format html --trim corners --out print.html
  badgectl layout --paper A3 --orientation landscape --width 9 --height 6`,
	}
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newLayoutCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

type renderOptions struct {
	template    string
	registrants string
	event       string
	out         string
	format      string
	paper       string
	orientation string
	layers      string
	trim        string
	preview     bool
	cacheDir    string
	fontDir     string
	cdnBase     string
	locale      string
	verbose     bool
}

func newRenderCommand() *cobra.Command {
	var o renderOptions
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a badge template for a list of registrants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.template, "template", "t", "", "badge template JSON (object or element array)")
	f.StringVarP(&o.registrants, "registrants", "r", "", "registrants JSON array")
	f.StringVar(&o.event, "event", "", "optional event JSON")
	f.StringVarP(&o.out, "out", "o", "badges.pdf", "output file, - for stdout")
	f.StringVar(&o.format, "format", "pdf", "output format: pdf or html")
	f.StringVar(&o.paper, "paper", "A4", "paper size: A4, A3 or Letter")
	f.StringVar(&o.orientation, "orientation", "portrait", "portrait or landscape")
	f.StringVar(&o.layers, "layers", "both", "layers to draw: both or print (background only)")
	f.StringVar(&o.trim, "trim", "none", "trim marks: none, dotted or corners")
	f.BoolVar(&o.preview, "preview", false, "render the first page only")
	f.StringVar(&o.cacheDir, "cache-dir", "", "image cache directory")
	f.StringVar(&o.fontDir, "font-dir", "fonts", "directory with UTF-8 TTF fonts")
	f.StringVar(&o.cdnBase, "cdn", "", "CDN base for relative asset paths")
	f.StringVar(&o.locale, "locale", "en-US", "locale for dates and checkboxes")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("registrants")
	return cmd
}

func runRender(cmd *cobra.Command, o renderOptions) error {
	log := logging.New(cmd.ErrOrStderr(), true, o.verbose)

	var tpl models.BadgeTemplate
	if err := readJSON(o.template, &tpl); err != nil {
		return err
	}
	var registrants []models.Registrant
	if err := readJSON(o.registrants, &registrants); err != nil {
		return err
	}
	var event models.EventContext
	if o.event != "" {
		if err := readJSON(o.event, &event); err != nil {
			return err
		}
	}

	output := generator.Output(strings.ToLower(o.format))
	if output != generator.OutputPDF && output != generator.OutputHTML {
		return fmt.Errorf("unknown format %q", o.format)
	}

	store, err := cache.NewStore(cache.Config{Dir: o.cacheDir})
	if err != nil {
		return err
	}
	gen := generator.New(generator.Config{
		Templates: parser.NewCache(0, o.cdnBase),
		Resolver: resolver.New(
			resolver.WithLocale(resolver.LocaleFor(o.locale)),
			resolver.WithCDNBase(o.cdnBase),
		),
		Assets:  store,
		FontDir: o.fontDir,
		Logger:  log,
	})

	res, err := gen.Generate(cmd.Context(), generator.Request{
		Template:    tpl,
		Registrants: registrants,
		Event:       &event,
		Output:      output,
		Settings: models.LayoutSettings{
			PaperSize:   models.PaperSize(o.paper),
			Orientation: models.Orientation(strings.ToLower(o.orientation)),
			Format:      models.Format(strings.ToLower(o.layers)),
			TrimMarks:   models.TrimMarks(strings.ToLower(o.trim)),
			Preview:     o.preview,
		},
	})
	if err != nil {
		return err
	}

	if output == generator.OutputPDF {
		if _, err := pdf.Validate(res.Document); err != nil {
			return fmt.Errorf("generated document is invalid: %w", err)
		}
	}
	if err := writeOutput(cmd.OutOrStdout(), o.out, res.Document); err != nil {
		return err
	}
	if o.out != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d badges on %d pages (%dx%d grid)\n",
			o.out, res.Badges, res.Pages, res.Layout.Cols, res.Layout.Rows)
	}
	return nil
}

func newLayoutCommand() *cobra.Command {
	var paper, orientation string
	var width, height float64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the badge grid for a paper size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := models.LayoutSettings{
				PaperSize:   models.PaperSize(paper),
				Orientation: models.Orientation(strings.ToLower(orientation)),
			}.WithDefaults()
			layout := grid.ForSettings(settings, width, height)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(layout)
			}
			fmt.Fprintf(out, "page:    %.1f x %.1f mm\n", layout.PageWidthMm, layout.PageHeightMm)
			fmt.Fprintf(out, "badge:   %.1f x %.1f mm\n", layout.BadgeWidthMm, layout.BadgeHeightMm)
			fmt.Fprintf(out, "grid:    %d x %d (%d per page)\n", layout.Cols, layout.Rows, layout.BadgesPerPage)
			fmt.Fprintf(out, "gap:     %.2f mm\n", layout.GapMm)
			if layout.Forced {
				fmt.Fprintln(out, "warning: badge does not fit, using a single clipped cell")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&paper, "paper", "A4", "paper size: A4, A3 or Letter")
	f.StringVar(&orientation, "orientation", "portrait", "portrait or landscape")
	f.Float64Var(&width, "width", models.DefaultBadgeWidthCm, "badge width in cm")
	f.Float64Var(&height, "height", models.DefaultBadgeHeightCm, "badge height in cm")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "badgectl %s (%s) %s/%s %s\n",
				version, commit, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
