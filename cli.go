package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/acquire"
	"github.com/ocupoint/salogger/pkg/plot"
	"github.com/ocupoint/salogger/pkg/spectrum"
)

// runCLI connects, records one run and exits. Log lines already reach the
// console through the controller's logger, so events are only inspected for
// the last trace.
func runCLI(ctx context.Context, cfg Config, ctrl *acquire.Controller) error {
	fmt.Println("--- FieldFox SA Measurement ---")

	last := make(chan *acquire.TraceFrame, 1)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		var frame *acquire.TraceFrame
		for {
			select {
			case ev := <-ctrl.Events():
				if ev.Type == acquire.EventTrace {
					frame = ev.Trace
				}
				if ev.Type == acquire.EventRunDone {
					last <- frame
					return
				}
			case <-ctx.Done():
				last <- frame
				return
			}
		}
	}()

	if err := ctrl.Connect(ctx, cfg.Address); err != nil {
		return err
	}

	summary, err := ctrl.Run(ctx, cfg.Run)
	if err != nil && summary.RunID == "" {
		// rejected before the run started; no run_done will follow
		return err
	}
	<-drained
	frame := <-last

	fmt.Println("--- Results ---")
	fmt.Printf("File:     %s\n", summary.Path)
	fmt.Printf("Rows:     %d\n", summary.Rows)
	fmt.Printf("Duration: %.3f s\n", summary.Duration)
	if summary.ArchiveTo != "" {
		fmt.Printf("Archived: %s\n", summary.ArchiveTo)
	}

	if cfg.Plot != "" && frame != nil {
		if perr := writePlot(cfg.Plot, frame); perr != nil {
			log.Error().Err(perr).Str("file", cfg.Plot).Msg("failed to write plot")
		} else {
			fmt.Printf("Plot:     %s\n", cfg.Plot)
		}
	}
	return err
}

func writePlot(path string, frame *acquire.TraceFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return plot.NewRenderer(0, 0).Render(f, traceForPlot(frame))
}

func traceForPlot(frame *acquire.TraceFrame) plot.Trace {
	return plot.Trace{
		Title:  fmt.Sprintf("%d/%d, max: %.2f dBm", frame.Index, frame.Total, frame.Peak),
		Freqs:  frame.Freqs,
		Unit:   spectrum.Unit{Name: frame.Unit},
		Levels: frame.Levels,
	}
}
