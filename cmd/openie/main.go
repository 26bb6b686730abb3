// Command openie extracts entities and relations from one text and prints
// the resulting graph as JSON.
//
//	openie -in article.txt -language italian > graph.json
//	cat article.txt | openie
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	oc "github.com/linnemanlabs/openie/internal/cfg"
	"github.com/linnemanlabs/openie/internal/extract"
	"github.com/linnemanlabs/openie/internal/llm/claude"
)

const appName = "openie"
const component = "cli"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		modelCfg  oc.ModelConfig
		logCfg    log.Config
		inPath    string
		outPath   string
		language  string
		withStats bool
	)
	modelCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&inPath, "in", "-", "input text file (- = stdin)")
	flag.StringVar(&outPath, "out", "-", "output JSON file (- = stdout)")
	flag.StringVar(&language, "language", extract.DefaultLanguage, "language of the extracted labels and descriptions")
	flag.BoolVar(&withStats, "stats", false, "include run statistics in the output")
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "OPENIE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := errors.Join(modelCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	text, err := readInput(inPath, os.Stdin)
	if err != nil {
		return err
	}

	model, err := claude.New(modelCfg.Claude(), L)
	if err != nil {
		return err
	}
	pipeline := extract.NewPipeline(model, L, extract.PipelineHooks{}, modelCfg.Pipeline())

	L.Info(ctx, "extracting", "bytes", len(text), "language", language, "model", model.Model())
	graph, runErr := pipeline.Run(ctx, text, language)
	if runErr != nil {
		// the partial graph is still written so completed work is not lost
		L.Error(ctx, runErr, "extraction stopped early", "entities", len(graph.Entities), "triplets", len(graph.Triplets))
	}

	if err := writeOutput(outPath, graph, withStats); err != nil {
		return errors.Join(runErr, err)
	}
	L.Info(ctx, "extraction finished",
		"entities", len(graph.Entities),
		"triplets", len(graph.Triplets),
		"model_calls", graph.Stats.ModelCalls,
		"input_tokens", graph.Stats.InputTokens,
		"output_tokens", graph.Stats.OutputTokens,
	)
	return runErr
}

// readInput returns the text at path, or all of stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" || path == "" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path) //nolint:gosec // path is an operator-supplied flag
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", extract.ErrEmptyText
	}
	return string(raw), nil
}

// output is the CLI document: the graph without run bookkeeping unless asked.
type output struct {
	Entities []extract.Entity  `json:"entities"`
	Triplets []extract.Triplet `json:"triplets"`
	Stats    *extract.Stats    `json:"stats,omitempty"`
}

func writeOutput(path string, g *extract.Graph, withStats bool) error {
	w := io.Writer(os.Stdout)
	if path != "-" && path != "" {
		f, err := os.Create(path) //nolint:gosec // path is an operator-supplied flag
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return encodeGraph(w, g, withStats)
}

func encodeGraph(w io.Writer, g *extract.Graph, withStats bool) error {
	out := output{Entities: g.Entities, Triplets: g.Triplets}
	if withStats {
		stats := g.Stats
		out.Stats = &stats
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
