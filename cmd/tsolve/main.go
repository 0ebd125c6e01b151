package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/fixture"
	"github.com/funvibe/tsolve/pkg/solver"
)

const usage = `Usage: tsolve <command> [flags] <scenario.txtar|dir>...

Commands:
  run      answer the queries of each scenario and compare with its want section
  dump     print the declared types of a scenario, evaluated
  help     show this message

Flags:
  -update        rewrite the want section with the current answers
  -v             trace solver decisions to stderr
  -j N           scenarios run at once (default: number of CPUs)
  -config PATH   tsolve.yaml used by scenarios without their own
`

// options holds the flags shared by all commands.
type options struct {
	update   bool
	verbose  bool
	jobs     int
	config   *config.Config
	paths    []string
	colorize bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{jobs: runtime.NumCPU()}
	var configPath string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-update", "--update":
			opts.update = true
		case "-v", "--verbose":
			opts.verbose = true
		case "-j", "-config", "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a value", arg)
			}
			i++
			if arg == "-j" {
				n, err := strconv.Atoi(args[i])
				if err != nil || n < 1 {
					return nil, fmt.Errorf("-j: bad value %q", args[i])
				}
				opts.jobs = n
			} else {
				configPath = args[i]
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag %s", arg)
			}
			opts.paths = append(opts.paths, arg)
		}
	}

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if configPath, err = config.FindConfig(wd); err != nil {
			return nil, err
		}
	}
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		opts.config = cfg
	}
	opts.colorize = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return opts, nil
}

// collectScenarios expands directories into the .txtar files they hold.
func collectScenarios(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.txtar"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func (o *options) sessionOptions() []solver.Option {
	if !o.verbose {
		return nil
	}
	return []solver.Option{solver.WithTracer(log.New(os.Stderr, "trace: ", 0))}
}

func (o *options) paint(code, text string) string {
	if !o.colorize {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func (o *options) load(path string) (*fixture.Scenario, error) {
	s, err := fixture.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	s.UseConfig(o.config)
	return s, nil
}

// runScenario answers one scenario and reports whether it matched.
func (o *options) runScenario(ctx context.Context, path string, out *sync.Mutex) (bool, error) {
	s, err := o.load(path)
	if err != nil {
		return false, err
	}
	report, err := fixture.Run(ctx, s, 0, o.sessionOptions()...)
	if err != nil {
		return false, err
	}
	if o.verbose {
		log.Printf("%s: session %s", s.Name, report.Session)
	}

	if o.update {
		if err := os.WriteFile(path, s.WithWant(report.Output()), 0o644); err != nil {
			return false, fmt.Errorf("updating %s: %w", path, err)
		}
		out.Lock()
		fmt.Printf("%s %s\n", o.paint("33", "UPDATE"), path)
		out.Unlock()
		return true, nil
	}

	diff := report.Diff(s.Want)
	out.Lock()
	defer out.Unlock()
	if len(diff) == 0 {
		fmt.Printf("%s   %s (%d queries)\n", o.paint("32", "PASS"), path, len(report.Lines))
		return true, nil
	}
	fmt.Printf("%s   %s\n", o.paint("31", "FAIL"), path)
	for _, d := range diff {
		fmt.Println("  " + strings.ReplaceAll(d, "\n", "\n  "))
	}
	return false, nil
}

func handleRun(args []string) bool {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if len(opts.paths) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	files, err := collectScenarios(opts.paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("No scenarios found")
		return true
	}

	// Scenarios are independent; each gets its own session.
	config.IsTestMode = true
	var out sync.Mutex
	passed := make([]bool, len(files))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(opts.jobs)
	for i, f := range files {
		g.Go(func() error {
			ok, err := opts.runScenario(ctx, f, &out)
			if err != nil {
				return err
			}
			passed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, ok := range passed {
		if !ok {
			failed++
		}
	}
	fmt.Printf("\n%d scenarios, %d failed\n", len(files), failed)
	if failed > 0 {
		os.Exit(1)
	}
	return true
}

func handleDump(args []string) bool {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if len(opts.paths) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: tsolve dump [flags] <scenario.txtar>\n")
		os.Exit(1)
	}
	s, err := opts.load(opts.paths[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	plan, err := fixture.Prepare(s, opts.sessionOptions()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	sess := plan.Session
	for _, name := range plan.Decoder.Names() {
		id, _ := plan.Decoder.Lookup(name)
		ev := sess.Evaluate(id)
		fmt.Printf("%s = %s\n", name, sess.Format(ev))
		if opts.verbose {
			key, _ := sess.Lookup(ev)
			fmt.Printf("  %# v\n", pretty.Formatter(key))
		}
	}
	if opts.verbose {
		pretty.Println(sess.Stats())
	}
	for _, d := range sess.Diagnostics() {
		log.Println(d)
	}
	return true
}

func handleHelp(args []string) bool {
	fmt.Print(usage)
	return true
}

func main() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)

	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(1)
		}
	}()

	if os.Getenv("TSOLVE_TEST_MODE") == "1" {
		config.IsTestMode = true
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	handlers := map[string]func([]string) bool{
		"run":    handleRun,
		"dump":   handleDump,
		"help":   handleHelp,
		"-help":  handleHelp,
		"--help": handleHelp,
	}
	if h, ok := handlers[os.Args[1]]; ok {
		h(os.Args[2:])
		return
	}
	// A bare path means run.
	handleRun(os.Args[1:])
}
