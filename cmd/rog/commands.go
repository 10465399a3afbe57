package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/db"
	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/service"
	"github.com/joeblew999/plat-rog/internal/source"
)

func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build SOURCE OUTPUT",
		Short: "Build a ROG file from a GeoJSON, Shapefile, GeoParquet, GeoPackage or FlatGeobuf file",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			cfg, err := loadConfig(opts)
			if err != nil {
				fatal(logger, "invalid configuration", err)
			}
			if err := applyBuildFlags(cmd, &cfg); err != nil {
				fatal(logger, "invalid configuration", err)
			}

			srcOpts := source.Options{}
			if format, ok := source.DetectFormat(args[0]); ok && format != source.FormatGeoJSON && format != source.FormatShapefile {
				conn, err := db.Open("")
				if err != nil {
					fatal(logger, "opening duckdb", err)
				}
				defer conn.Close()
				srcOpts.DB = conn
			}
			src, err := source.Open(args[0], srcOpts)
			if err != nil {
				fatal(logger, "opening source", err)
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			reporters := builder.Reporters{builder.LogReporter{Logger: logger.With("output", args[1])}}
			var bar *builder.ProgressBar
			if !quiet {
				bar = builder.NewProgressBar(os.Stderr)
				reporters = builder.Reporters{bar}
			}

			b, err := builder.New(cfg, builder.Options{Reporter: reporters, Logger: logger})
			if err != nil {
				fatal(logger, "invalid configuration", err)
			}

			ctx, stop := signalContext()
			defer stop()
			stats, err := b.Build(ctx, src, args[1])
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				fatal(logger, "build failed", err)
			}
			if err := printYAML(stats); err != nil {
				fatal(logger, "printing stats", err)
			}
		}),
	}
	f := cmd.Flags()
	f.Int("min-zoom", 0, "First zoom level")
	f.Int("max-zoom", 14, "Last zoom level")
	f.Float64("tolerance", 1, "Simplification tolerance in pixels")
	f.Int("workers", 0, "Worker goroutines, 0 for one per CPU")
	f.Bool("keep-properties", false, "Store source attributes as object metadata")
	f.Bool("no-overlapping", false, "Mark polygons as non-overlapping in the header")
	f.String("temp-dir", "", "Directory for the temporary block file")
	f.BoolP("quiet", "q", false, "Log progress instead of drawing a progress bar")
	return cmd
}

// applyBuildFlags overrides cfg with the flags set on the command line.
func applyBuildFlags(cmd *cobra.Command, cfg *builder.Config) error {
	f := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if f.Changed(name) {
			errs = append(errs, apply())
		}
	}
	set("min-zoom", func() (err error) { cfg.MinZoom, err = f.GetInt("min-zoom"); return })
	set("max-zoom", func() (err error) { cfg.MaxZoom, err = f.GetInt("max-zoom"); return })
	set("tolerance", func() (err error) { cfg.Tolerance, err = f.GetFloat64("tolerance"); return })
	set("workers", func() (err error) { cfg.Workers, err = f.GetInt("workers"); return })
	set("keep-properties", func() (err error) { cfg.KeepProperties, err = f.GetBool("keep-properties"); return })
	set("no-overlapping", func() (err error) { cfg.NoOverlappingPolygons, err = f.GetBool("no-overlapping"); return })
	set("temp-dir", func() (err error) { cfg.TempDir, err = f.GetString("temp-dir"); return })
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return cfg.Validate()
}

func inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header, levels and objects of a ROG file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			r, err := rog.Open(args[0])
			if err != nil {
				fatal(logger, "opening rog file", err)
			}
			defer r.Close()

			info, err := service.Describe(args[0], r)
			if err != nil {
				fatal(logger, "reading blocks", err)
			}
			out := struct {
				service.RogInfo `yaml:",inline"`
				Index           []*service.ObjectInfo `yaml:"object_index,omitempty"`
			}{RogInfo: *info}

			n, _ := cmd.Flags().GetInt("objects")
			for i := 0; i < n && i < r.NumObjects(); i++ {
				out.Index = append(out.Index, service.DescribeObject(r, i))
			}
			if err := printYAML(out); err != nil {
				fatal(logger, "printing", err)
			}
		}),
	}
	cmd.Flags().IntP("objects", "n", 0, "Also print the index entries of the first N objects")
	return cmd
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check every block and object position of a ROG file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			ctx, stop := signalContext()
			defer stop()

			report, err := rog.ValidateFile(ctx, args[0])
			if err != nil {
				fatal(logger, "validation failed", err)
			}
			if err := printYAML(report); err != nil {
				fatal(logger, "printing", err)
			}
			fmt.Fprintln(os.Stderr, "OK")
		}),
	}
}
