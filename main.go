package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"pesurgeon/common"
	"pesurgeon/perw"
)

// Configurazione del programma
type Config struct {
	Remove      []string
	Presets     []common.SectionType
	StripDebug  bool
	Output      string
	LogLevel    common.LogLevel
	Color       bool
	Verbose     bool
	Inspect     bool
	Dump        bool
	Verify      bool
	GapPolicy   perw.GapPolicy
	Parallel    bool
	MaxWorkers  int
	ShowHelp    bool
	ShowVersion bool
}

// Statistiche di elaborazione
type ProcessStats struct {
	mu            sync.Mutex
	Processed     int
	Failed        int
	Skipped       int
	TotalReduced  int64
	OriginalSizes []int64
	NewSizes      []int64
}

const versionString = "pesurgeon, version 0.3 (PE section and debug directory remover)"

// listFlag collects repeatable, comma separated values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, common.SplitList(v)...)
	return nil
}

var (
	config = &Config{}
	stats  = &ProcessStats{}
	logger *common.Logger

	// stdout is shared by the workers
	stdoutMu sync.Mutex

	// Flag di comando
	removeNames listFlag
	presetNames listFlag
	stripDebug  = flag.Bool("strip-debug", false, "Clear the debug directory and its payloads (PDB references)")
	output      = flag.String("o", "", "Write the result to this file instead of editing in place (single input only)")
	logLevel    = flag.String("log", "medium", "Log level: full, medium, strict, critical, none")
	color       = flag.Bool("color", false, "Colorize log output")
	verbose     = flag.Bool("v", false, "Enable verbose output (same as -log full)")
	inspect     = flag.Bool("inspect", false, "Print a per-section report before editing")
	dump        = flag.Bool("dump", false, "Dump the section descriptors")
	verify      = flag.Bool("verify", true, "Re-parse the edited image before writing it")
	gapPolicy   = flag.String("gap", "sorted", "Virtual size repair after removal: sorted, adjacent")
	parallel    = flag.Bool("j", false, "Process files in parallel")
	maxWorkers  = flag.Int("workers", 4, "Maximum number of parallel workers (default: 4)")
	showHelp    = flag.Bool("help", false, "Display this help and exit")
	showVersion = flag.Bool("version", false, "Display version information and exit")
)

var ErrNotRegular = errors.New("not a regular file")

// ProcessResult rappresenta il risultato dell'elaborazione di un file
type ProcessResult struct {
	Filename     string
	OriginalSize int64
	NewSize      int64
	Skipped      bool
	Operation    *common.OperationResult
	Error        error
}

func init() {
	flag.Var(&removeNames, "remove", "Section to remove (repeatable, comma separated)")
	flag.Var(&presetNames, "preset", "Remove a section group: "+strings.Join(common.PresetNames(), ", "))
	flag.Usage = customUsage
}

func customUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] FILE...\n", os.Args[0])
	_, _ = fmt.Fprintln(os.Stderr, "Remove sections and debug information from Windows PE images.")
	_, _ = fmt.Fprintln(os.Stderr, "")
	_, _ = fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
	_, _ = fmt.Fprintln(os.Stderr, "")
	_, _ = fmt.Fprintln(os.Stderr, "Examples:")
	_, _ = fmt.Fprintf(os.Stderr, "  %s -strip-debug -remove .debug app.exe       # Drop PDB reference and .debug\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s -preset debug -o small.exe app.exe        # Write result to another file\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s -j -workers=8 -preset nonessential *.dll  # Parallel processing with 8 workers\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s -inspect app.exe                          # Report only\n", os.Args[0])
}

func parseFlags() error {
	flag.Parse()

	config.Remove = removeNames
	config.StripDebug = *stripDebug
	config.Output = *output
	config.Color = *color
	config.Verbose = *verbose
	config.Inspect = *inspect
	config.Dump = *dump
	config.Verify = *verify
	config.Parallel = *parallel
	config.MaxWorkers = *maxWorkers
	config.ShowHelp = *showHelp
	config.ShowVersion = *showVersion

	level, err := common.ParseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	if config.Verbose {
		level = common.LogFull
	}
	config.LogLevel = level

	for _, name := range presetNames {
		t, err := common.ParseSectionType(name)
		if err != nil {
			return err
		}
		config.Presets = append(config.Presets, t)
	}

	switch strings.ToLower(*gapPolicy) {
	case "sorted":
		config.GapPolicy = perw.GapRepairSorted
	case "adjacent":
		config.GapPolicy = perw.GapRepairAdjacent
	default:
		return fmt.Errorf("unknown gap policy %q (sorted, adjacent)", *gapPolicy)
	}

	// Validazione parametri
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.MaxWorkers > 16 {
		config.MaxWorkers = 16 // Limite ragionevole
	}
	if config.Output != "" && flag.NArg() > 1 {
		return errors.New("-o needs exactly one input file")
	}
	return nil
}

func (c *Config) plan() perw.EditPlan {
	return perw.EditPlan{
		StripDebug: c.StripDebug,
		Remove:     c.Remove,
		Presets:    c.Presets,
		Verify:     c.Verify,
	}
}

func processFile(filename string) *ProcessResult {
	result := &ProcessResult{Filename: filename}
	log := logger.With(filepath.Base(filename))
	opts := []perw.Option{perw.WithLogger(log), perw.WithGapPolicy(config.GapPolicy)}

	// Verifica esistenza e permessi del file
	fileInfo, err := os.Stat(filename)
	if err != nil {
		result.Error = fmt.Errorf("cannot access file: %w", err)
		return result
	}
	if !fileInfo.Mode().IsRegular() {
		result.Error = ErrNotRegular
		return result
	}
	result.OriginalSize = fileInfo.Size()
	result.NewSize = result.OriginalSize

	if config.Inspect || config.Dump {
		img, err := perw.Open(filename, opts...)
		if err != nil {
			result.Error = err
			return result
		}
		if err := printImage(filename, img); err != nil {
			result.Error = err
			return result
		}
	}

	plan := config.plan()
	if plan.Empty() {
		result.Skipped = true
		return result
	}

	out := filename
	if config.Output != "" {
		out = config.Output
	}
	op := perw.EditFile(filename, out, plan, opts...)
	result.Operation = op
	if op.Err != nil {
		result.Error = op.Err
		return result
	}
	if !op.Applied {
		result.Skipped = true
		return result
	}
	result.NewSize = result.OriginalSize - op.Removed
	return result
}

// printImage writes the -inspect and -dump output for one file.
func printImage(filename string, img *perw.Image) error {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()

	if config.Dump {
		spew.Fdump(os.Stdout, img.Sections())
	}
	if !config.Inspect {
		return nil
	}
	rep, err := img.Inspect()
	if err != nil {
		return err
	}
	bits := "PE32"
	if rep.Is64Bit {
		bits = "PE32+"
	}
	fmt.Printf("%s: %s, %d bytes, %d sections\n", filepath.Base(filename), bits, rep.Length, len(rep.Sections))
	for _, s := range rep.Sections {
		fmt.Printf("  %-8s raw=0x%08x size=0x%08x va=0x%08x vsize=0x%08x entropy=%.2f %s [%s]\n",
			s.NameString(), s.PointerToRawData, s.SizeOfRawData, s.VirtualAddress, s.VirtualSize,
			s.Entropy, s.Kind, s.Flags)
	}
	for _, e := range rep.DebugEntries {
		fmt.Printf("  debug %-10s raw=0x%08x size=0x%x\n", e.TypeName(), e.PointerToRawData, e.SizeOfData)
	}
	if rep.PDBPath != "" {
		fmt.Printf("  pdb: %s\n", rep.PDBPath)
	}
	if rep.OverlaySize > 0 {
		fmt.Printf("  overlay: %d bytes at 0x%x\n", rep.OverlaySize, rep.OverlayOffset)
	}
	if rep.LikelyPacked {
		fmt.Println("  ⚠️  sections look packed/compressed (high entropy)")
	}
	return nil
}

func processFilesSequential(filenames []string) []ProcessResult {
	results := make([]ProcessResult, 0, len(filenames))

	for _, filename := range filenames {
		result := processFile(filename)
		results = append(results, *result)

		if config.Verbose {
			printResult(result)
		}
	}

	return results
}

func processFilesParallel(filenames []string) []ProcessResult {
	jobs := make(chan string, len(filenames))
	results := make(chan ProcessResult, len(filenames))

	// Avvia i worker
	var wg sync.WaitGroup
	for i := 0; i < config.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filename := range jobs {
				result := processFile(filename)
				results <- *result
			}
		}()
	}

	// Invia i job
	go func() {
		for _, filename := range filenames {
			jobs <- filename
		}
		close(jobs)
	}()

	// Chiudi il canale dei risultati quando tutti i worker finiscono
	go func() {
		wg.Wait()
		close(results)
	}()

	// Raccogli i risultati
	var allResults []ProcessResult
	for result := range results {
		allResults = append(allResults, result)

		if config.Verbose {
			printResult(&result)
		}
	}

	return allResults
}

func printResult(result *ProcessResult) {
	name := filepath.Base(result.Filename)
	switch {
	case result.Error != nil:
		_, _ = fmt.Fprintf(os.Stderr, "  ❌ %s: %v\n", name, result.Error)
	case result.Skipped:
		msg := "no edits requested"
		if result.Operation != nil {
			msg = result.Operation.Message
		}
		fmt.Printf("  ⏭️  %s: %s\n", name, msg)
	default:
		reduction := result.OriginalSize - result.NewSize
		percentage := 0.0
		if result.OriginalSize > 0 {
			percentage = float64(reduction) / float64(result.OriginalSize) * 100
		}
		fmt.Printf("  ✅ %s: %d -> %d bytes (%.1f%% reduction)\n",
			name, result.OriginalSize, result.NewSize, percentage)
		if result.Operation != nil {
			fmt.Println(common.FormatOperationResult("  "+result.Operation.String(), result.Operation.Details))
		}
	}
}

func updateStats(results []ProcessResult) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	for _, result := range results {
		stats.Processed++
		switch {
		case result.Error != nil:
			stats.Failed++
		case result.Skipped:
			stats.Skipped++
		default:
			reduction := result.OriginalSize - result.NewSize
			stats.TotalReduced += reduction
			stats.OriginalSizes = append(stats.OriginalSizes, result.OriginalSize)
			stats.NewSizes = append(stats.NewSizes, result.NewSize)
		}
	}
}

func printSummary() {
	if stats.Processed == 0 {
		return
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Files processed: %d\n", stats.Processed)
	fmt.Printf("  Edited: %d\n", stats.Processed-stats.Failed-stats.Skipped)
	fmt.Printf("  Unchanged: %d\n", stats.Skipped)
	fmt.Printf("  Failed: %d\n", stats.Failed)

	if stats.TotalReduced > 0 {
		fmt.Printf("  Total space saved: %d bytes\n", stats.TotalReduced)

		var totalOriginal int64
		for _, original := range stats.OriginalSizes {
			totalOriginal += original
		}
		if totalOriginal > 0 {
			percentage := float64(stats.TotalReduced) / float64(totalOriginal) * 100
			fmt.Printf("  Average reduction: %.1f%%\n", percentage)
		}
	}
}

func main() {
	if err := parseFlags(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(2)
	}

	if config.ShowHelp {
		flag.Usage()
		os.Exit(0)
	}

	if config.ShowVersion {
		fmt.Println(versionString)
		os.Exit(0)
	}

	filenames := flag.Args()
	if len(filenames) == 0 {
		flag.Usage()
		os.Exit(0)
	}
	logger = common.NewLogger(os.Stderr, config.LogLevel, config.Color)

	// Elabora i file
	var results []ProcessResult
	if config.Parallel && len(filenames) > 1 {
		logger.Info("processing %d files with %d workers", len(filenames), config.MaxWorkers)
		results = processFilesParallel(filenames)
	} else {
		results = processFilesSequential(filenames)
	}

	// Aggiorna le statistiche
	updateStats(results)

	// Stampa errori non verbose
	if !config.Verbose {
		for _, result := range results {
			if result.Error != nil {
				logger.Err("%s: %v", result.Filename, result.Error)
			}
		}
	}

	// Stampa sommario se più di un file o se verbose
	if len(filenames) > 1 || config.Verbose {
		printSummary()
	}

	// Exit con codice appropriato
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
