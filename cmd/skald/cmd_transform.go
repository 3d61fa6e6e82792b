package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/engine"
	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/mux"
	"github.com/friendsincode/skald/internal/source"
)

var transformFlags struct {
	manifestPath  string
	input         string
	output        string
	containerMime string
	audioMime     string
	videoMime     string
	outputHeight  int
	rotation      int
	flatten       bool
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Run a single transform job locally",
	Long:  "Transform one sample log into another without the server: reads the input file, applies the requested changes and writes the output file",
	RunE:  runTransform,
}

func init() {
	f := transformCmd.Flags()
	f.StringVarP(&transformFlags.manifestPath, "manifest", "m", "", "path to a YAML job manifest")
	f.StringVarP(&transformFlags.input, "input", "i", "", "input sample log path")
	f.StringVarP(&transformFlags.output, "output", "o", "", "output sample log path")
	f.StringVar(&transformFlags.containerMime, "container-mime", "", "output container MIME type")
	f.StringVar(&transformFlags.audioMime, "audio-mime", "", "target audio sample MIME type")
	f.StringVar(&transformFlags.videoMime, "video-mime", "", "target video sample MIME type")
	f.IntVar(&transformFlags.outputHeight, "height", 0, "target video height in pixels")
	f.IntVar(&transformFlags.rotation, "rotation", 0, "video rotation in degrees")
	f.BoolVar(&transformFlags.flatten, "flatten", false, "flatten slow-motion video to normal speed")
}

func transformManifest() (*manifest.Manifest, error) {
	if transformFlags.manifestPath != "" {
		return manifest.Load(transformFlags.manifestPath)
	}
	m := &manifest.Manifest{
		Input:         transformFlags.input,
		Output:        transformFlags.output,
		ContainerMime: transformFlags.containerMime,
		AudioMime:     transformFlags.audioMime,
		VideoMime:     transformFlags.videoMime,
		OutputHeight:  transformFlags.outputHeight,
		Rotation:      transformFlags.rotation,
		Flatten:       transformFlags.flatten,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// printStitchPlan resolves the manifest's ad breaks against the input's
// duration and logs the resulting span order.
func printStitchPlan(m *manifest.Manifest) error {
	in, err := os.Open(m.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	durationUs, err := container.ScanDurationUs(in)
	if err != nil {
		return err
	}
	plan, err := engine.PlanFromManifest(m, durationUs, logger)
	if err != nil {
		return err
	}
	for i, s := range plan.Spans {
		logger.Info().
			Int("span", i).
			Stringer("period", s.Info.ID).
			Int64("output_start_us", s.OutputStartUs()).
			Int64("output_end_us", s.OutputEndUs()).
			Msg("stitch plan span")
	}
	logger.Info().
		Int("spans", len(plan.Spans)).
		Int64("output_duration_us", plan.OutputDurationUs()).
		Msg("stitch plan resolved")
	return nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	m, err := transformManifest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(m.AdBreaks) > 0 {
		if err := printStitchPlan(m); err != nil {
			return err
		}
	}

	src, err := source.OpenFile(m.Input)
	if err != nil {
		return err
	}

	out, err := os.Create(m.Output)
	if err != nil {
		src.Release()
		return fmt.Errorf("create output: %w", err)
	}
	muxer := mux.NewSampleLogMuxer(out, m.ContainerMime)

	tr := engine.New(engine.Options{
		Request: m.Request(),
		Logger:  logger,
		Progress: func(positionUs int64) {
			logger.Debug().Int64("position_us", positionUs).Msg("transform progress")
		},
	})
	if err := tr.Run(ctx, src, muxer); err != nil {
		os.Remove(m.Output)
		return err
	}

	logger.Info().Str("output", m.Output).Msg("transform finished")
	return nil
}
