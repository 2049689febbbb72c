package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/marcut/runtime-bridge/bridge"
	"github.com/marcut/runtime-bridge/engine"
	"github.com/marcut/runtime-bridge/pipeline"
	"github.com/marcut/runtime-bridge/progress"
)

func main() {
	var (
		inPath      = flag.String("in", "", "Input document")
		outPath     = flag.String("out", "", "Output document")
		reportPath  = flag.String("report", "", "JSON entity report")
		mode        = flag.String("mode", "", "Redaction mode: rules, balanced, or enhanced")
		model       = flag.String("model", "", "Model for the extraction pass")
		chunkTokens = flag.Int("chunk-tokens", 0, "Tokens per chunk")
		overlap     = flag.Int("overlap", 0, "Token overlap between chunks")
		temperature = flag.Float64("temp", 0, "Sampling temperature")
		seed        = flag.Int("seed", 0, "Sampling seed")
		ollamaURL   = flag.String("ollama", "", "Model server base URL (default OLLAMA_HOST, then loopback)")
		allowRemote = flag.Bool("allow-remote", false, "Allow a non-loopback model server")
		scrub       = flag.Bool("scrub", false, "Strip document metadata only")
		metaArgs    = flag.String("meta-args", "", "Cleaning settings string for -scrub")
		scrubReport = flag.String("scrub-report", "", "Where -scrub writes its field report")
		analyze     = flag.Bool("analyze", false, "Report document statistics and exit")
		timing      = flag.Bool("timing", false, "Show the phase timing breakdown")
		debug       = flag.Bool("debug", false, "Enable pipeline diagnostics and debug logging")
		envFile     = flag.String("env", "", "Load environment from this file before anything else")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *inPath == "" || (*outPath == "" && !*analyze) {
		fmt.Fprintln(os.Stderr, "Usage: redact -in <doc.docx> -out <doc.docx> -report <report.json> [options]")
		fmt.Fprintln(os.Stderr, "       redact -in <doc.docx> -out <doc.docx> -scrub [-meta-args \"...\"]")
		fmt.Fprintln(os.Stderr, "       redact -in <doc.docx> -analyze")
		fmt.Fprintln(os.Stderr, "       redact -in <doc.docx> -out <doc.docx> -report <report.json> -i  (interactive mode)")
		os.Exit(1)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	log := zap.NewNop()
	if *debug {
		dev, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = dev
		engine.SetLogger(log)
	}

	b, err := bridge.New(bridge.Options{
		Logger:                  log,
		CollaboratorURL:         *ollamaURL,
		AllowRemoteCollaborator: *allowRemote,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Ctrl-C cancels the running job; the second one kills the process
	// through the default handler.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		<-interrupts
		signal.Stop(interrupts)
		b.Cancel()
	}()

	var code int
	switch {
	case *scrub:
		code = runScrub(b, pipeline.ScrubRequest{
			InputPath:    *inPath,
			OutputPath:   *outPath,
			MetadataArgs: *metaArgs,
			ReportPath:   *scrubReport,
			Debug:        *debug,
		})
	case *analyze:
		code = runAnalyze(b, pipeline.AnalyzeRequest{
			InputPath: *inPath,
			Debug:     *debug,
		})
	default:
		req := pipeline.Request{
			InputPath:   *inPath,
			OutputPath:  *outPath,
			ReportPath:  *reportPath,
			Mode:        pipeline.Mode(*mode),
			ModelID:     *model,
			ChunkTokens: *chunkTokens,
			Overlap:     *overlap,
			Temperature: *temperature,
			Seed:        *seed,
			Debug:       *debug,
			Timing:      *timing,
		}.WithDefaults()
		if *interactive && term.IsTerminal(int(os.Stdout.Fd())) {
			code = runInteractive(b, req, *timing)
		} else {
			code = run(b, req, *timing)
		}
	}

	if err := b.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: close: %v\n", err)
	}
	os.Exit(code)
}

// run submits a redaction job and relays its progress as parseable
// lines, one per update, the same shape the pipeline's own CLI emits.
func run(b *bridge.Bridge, req pipeline.Request, timing bool) int {
	start := time.Now()
	stream, handle := b.SubmitRedaction(req, nil)
	for ev := range stream.Chan() {
		printProgress(ev)
	}

	outcome := handle.Wait()
	switch outcome.Status {
	case bridge.StatusSuccess:
		fmt.Printf("Redaction completed in %.2fs\n", time.Since(start).Seconds())
		fmt.Printf("  Output: %s\n", req.OutputPath)
		if req.ReportPath != "" {
			fmt.Printf("  Report: %s\n", req.ReportPath)
		}
		if timing && len(outcome.Timings) > 0 {
			printTimings(outcome.Timings)
		}
		return 0
	case bridge.StatusCancelled:
		fmt.Fprintln(os.Stderr, "Operation cancelled by user")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Redaction failed: %s\n", outcome.Reason())
		if outcome.Code != 0 {
			return outcome.Code
		}
		return 1
	}
}

func runScrub(b *bridge.Bridge, req pipeline.ScrubRequest) int {
	res, outcome := b.ScrubMetadata(req)
	switch outcome.Status {
	case bridge.StatusSuccess:
		fmt.Println("Metadata scrub completed")
		if res.Message != "" {
			fmt.Printf("  %s\n", res.Message)
		}
		if req.ReportPath != "" {
			fmt.Printf("  Report: %s\n", req.ReportPath)
		}
		return 0
	case bridge.StatusCancelled:
		fmt.Fprintln(os.Stderr, "Operation cancelled by user")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Metadata scrub failed: %s\n", outcome.Reason())
		return 1
	}
}

func runAnalyze(b *bridge.Bridge, req pipeline.AnalyzeRequest) int {
	res, outcome := b.AnalyzeDocument(req)
	switch outcome.Status {
	case bridge.StatusSuccess:
		fmt.Printf("Document: %s\n", req.InputPath)
		fmt.Printf("  Words: %d\n", res.WordCount)
		fmt.Printf("  Detectable entities: %d\n", res.EntityCount)
		keys := make([]string, 0, len(res.Details))
		for k := range res.Details {
			if k == "word_count" || k == "entity_count" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, res.Details[k])
		}
		return 0
	case bridge.StatusCancelled:
		fmt.Fprintln(os.Stderr, "Operation cancelled by user")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Analysis failed: %s\n", outcome.Reason())
		return 1
	}
}

func printProgress(ev progress.Event) {
	switch {
	case ev.HasPhaseProgress() || ev.HasOverallProgress():
		line := fmt.Sprintf("MARCUT_PROGRESS: %s | Stage: %.1f%% | Overall: %.1f%%",
			ev.PhaseName, 100*fractionOrZero(ev.PhaseProgress), 100*fractionOrZero(ev.OverallProgress))
		if !math.IsNaN(ev.EstimatedRemaining) {
			line += fmt.Sprintf(" | Remaining: %.0fs", ev.EstimatedRemaining)
		}
		fmt.Println(line)
	case ev.HasChunks():
		fmt.Printf("MARCUT_PROGRESS: chunk %d/%d\n", ev.Chunk, ev.TotalChunks)
	}
	if ev.Message != "" {
		fmt.Printf("MARCUT_STATUS: %s\n", ev.Message)
	}
}

func printTimings(timings map[string]float64) {
	var total float64
	for _, d := range timings {
		total += d
	}
	names := make([]string, 0, len(timings))
	for name := range timings {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nPhase timing breakdown:\n")
	fmt.Printf("  %-20s %8s %6s\n", "Phase", "Time", "Pct")
	for _, name := range names {
		pct := 0.0
		if total > 0 {
			pct = timings[name] / total * 100
		}
		fmt.Printf("  %-20s %7.2fs %5.1f%%\n", name, timings[name], pct)
	}
}

func fractionOrZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
