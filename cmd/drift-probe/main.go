// ABOUTME: Probe for dual-zone drift between two outputs of unequal latency
// ABOUTME: Plays a tone into two null zones and prints sync figures as it goes
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/app"
	"github.com/Resonate-Protocol/resonate-zones/internal/config"
	"github.com/Resonate-Protocol/resonate-zones/internal/source"
	"github.com/Resonate-Protocol/resonate-zones/internal/ui"
)

var (
	primaryLatency   = flag.Duration("primary-latency", 20*time.Millisecond, "Latency of the primary null output")
	secondaryLatency = flag.Duration("secondary-latency", 120*time.Millisecond, "Latency of the secondary null output")
	duration         = flag.Duration("duration", 10*time.Second, "Length of the probe tone")
	codec            = flag.String("codec", "pcm", "Tone codec (pcm or opus)")
	interval         = flag.Duration("interval", time.Second, "Report interval")
	verbose          = flag.Bool("v", false, "Show pipeline logs")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	cfg := config.Default()
	cfg.Primary.Output = "null"
	cfg.Primary.Latency = *primaryLatency
	cfg.Secondary.Enabled = true
	cfg.Secondary.Output = "null"
	cfg.Secondary.Latency = *secondaryLatency
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid probe settings: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Dual Zone Drift Probe ===")
	fmt.Printf("primary latency %v, secondary latency %v, tone %v (%s)\n\n",
		*primaryLatency, *secondaryLatency, *duration, *codec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create player: %v\n", err)
		os.Exit(1)
	}
	src, err := source.NewTone(source.ToneConfig{Codec: *codec, Frequency: 440, Duration: *duration})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create tone: %v\n", err)
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx, src) }()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var worst float64
	for {
		select {
		case err := <-runErr:
			fmt.Printf("\nworst drift seen: %.1fms\n", worst*1000)
			if err != nil {
				fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
				os.Exit(1)
			}
			return
		case <-ticker.C:
			st := a.Status()
			if st.Started && st.Info.Dual {
				if d := abs(st.Info.AudioDiff); d > worst {
					worst = d
				}
			}
			fmt.Print(ui.FormatStatus(st))
			c := st.Info.Counters
			fmt.Printf("counts: silence=%d skipped=%d decode_errors=%d\n\n",
				c.SilenceInserted, c.FramesSkipped, c.DecodeErrors)
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
