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
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"raidlab/internal/combatlog"
	"raidlab/internal/config"
	"raidlab/internal/mechanics"
)

func main() {
	_ = godotenv.Load(".env")
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "summary":
		return runSummary(args[1:], stdout, stderr)
	case "mechanics":
		return runMechanics(args[1:], stdout, stderr)
	case "classify":
		return runClassify(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		usage(stderr)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "combatlog summary --file <path> [--json]")
	fmt.Fprintln(w, "combatlog mechanics --file <path> [--presets <yaml>] [--json]")
	fmt.Fprintln(w, "combatlog classify --file <path> [--json]")
}

// loadSummary reads a log file, or the built-in demo when path is "demo".
func loadSummary(path string) (*combatlog.LogSummary, error) {
	if path == "demo" {
		return combatlog.DemoSummary(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return combatlog.BuildFromReader(f)
}

func parseFileFlags(name string, args []string, stderr io.Writer, extra func(fs *flag.FlagSet)) (file string, asJSON bool, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	filePath := fs.String("file", "", `path to a combat log ("demo" for the built-in sample)`)
	jsonOut := fs.Bool("json", false, "print JSON instead of a table")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", false, false
	}
	if *filePath == "" {
		fmt.Fprintln(stderr, "--file is required")
		return "", false, false
	}
	return *filePath, *jsonOut, true
}

func runSummary(args []string, stdout, stderr io.Writer) int {
	file, asJSON, ok := parseFileFlags("summary", args, stderr, nil)
	if !ok {
		return 2
	}
	summary, err := loadSummary(file)
	if err != nil {
		return fail(stderr, err)
	}
	if asJSON {
		return printJSON(stdout, stderr, summary)
	}

	encounter := summary.EncounterName
	if encounter == "" {
		encounter = "(unknown)"
	}
	fmt.Fprintf(stdout, "Encounter: %s\n", encounter)
	fmt.Fprintf(stdout, "Duration:  %.1fs\n", summary.Duration)
	fmt.Fprintf(stdout, "Lines:     %d valid, %d skipped\n\n", summary.RawLineCount, summary.SkippedLineCount)

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Ability\tCategory\tCount\tTotal\tAvg\tSource\tTargets")
	for _, sp := range summary.Spells {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%d\n",
			sp.Name, sp.Category, sp.Count, sp.TotalDamage, sp.AvgDamage, sp.Source, len(sp.Targets))
	}
	_ = w.Flush()

	if len(summary.Combatants) > 0 {
		fmt.Fprintln(stdout)
		w = tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "Combatant\tRole\tClass")
		for _, c := range summary.Combatants {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Role, c.Class)
		}
		_ = w.Flush()
	}
	return 0
}

func runMechanics(args []string, stdout, stderr io.Writer) int {
	var presetsPath string
	file, asJSON, ok := parseFileFlags("mechanics", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&presetsPath, "presets", "", "YAML mechanic presets")
	})
	if !ok {
		return 2
	}
	summary, err := loadSummary(file)
	if err != nil {
		return fail(stderr, err)
	}

	var enrichers []mechanics.Enricher
	if presetsPath != "" {
		presets, err := mechanics.LoadPresets(presetsPath)
		if err != nil {
			return fail(stderr, err)
		}
		enrichers = append(enrichers, presets)
	}
	if openai := openAIFromEnv(); openai != nil {
		enrichers = append(enrichers, openai)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	list, source := mechanics.NewExtractor(enrichers...).ExtractWithSource(ctx, summary)

	if asJSON {
		return printJSON(stdout, stderr, map[string]interface{}{"source": source, "mechanics": list})
	}
	fmt.Fprintf(stdout, "Source: %s\n\n", source)
	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Mechanic\tType\tDamage\tInterval\tRadius\tColor")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%.0f\t%s\n", m.Name, m.Type, m.Damage, m.Interval, m.Radius, m.Color)
	}
	_ = w.Flush()
	return 0
}

func runClassify(args []string, stdout, stderr io.Writer) int {
	file, asJSON, ok := parseFileFlags("classify", args, stderr, nil)
	if !ok {
		return 2
	}
	summary, err := loadSummary(file)
	if err != nil {
		return fail(stderr, err)
	}

	var classifier mechanics.Classifier
	if openai := openAIFromEnv(); openai != nil {
		classifier = openai
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result := mechanics.ClassifyWithFallback(ctx, classifier, summary.HostileSpells())

	if asJSON {
		return printJSON(stdout, stderr, result)
	}
	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Ability\tRoles\tNotes")
	for _, name := range names {
		c := result[name]
		roles := make([]string, len(c.Roles))
		for i, r := range c.Roles {
			roles[i] = string(r)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(roles, ","), c.Description)
	}
	_ = w.Flush()
	return 0
}

// openAIFromEnv returns nil unless OPENAI_API_KEY is set.
func openAIFromEnv() *mechanics.OpenAIEnricher {
	cfg := config.EnrichmentFromEnv()
	if cfg.APIKey == "" {
		return nil
	}
	return mechanics.NewOpenAIEnricher(mechanics.OpenAIConfig{
		APIKey:            cfg.APIKey,
		ResponsesURL:      cfg.ResponsesURL,
		Model:             cfg.Model,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
}

func printJSON(stdout, stderr io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func fail(stderr io.Writer, err error) int {
	switch {
	case errors.Is(err, combatlog.ErrEmptyInput):
		fmt.Fprintln(stderr, "log file is empty")
	case errors.Is(err, combatlog.ErrNoValidEvents):
		fmt.Fprintln(stderr, "no valid combat log events found")
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}
