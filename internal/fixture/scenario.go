package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/txtar"

	"github.com/funvibe/tsolve/internal/config"
	"github.com/funvibe/tsolve/internal/typesystem"
	"github.com/funvibe/tsolve/pkg/solver"
)

// Section names inside a scenario archive.
const (
	SectionConfig  = config.ConfigFileName
	SectionTypes   = "types.yaml"
	SectionQueries = "queries.yaml"
	SectionWant    = "want"
)

// ErrMissingSection is returned when a scenario lacks a required file.
var ErrMissingSection = errors.New("missing section")

// Scenario is one txtar archive. The comment is free text; the files are
// an optional tsolve.yaml, types.yaml, queries.yaml and the expected output
// in want, one `name: result` line per query.
type Scenario struct {
	Name    string
	Path    string
	Config  *config.Config
	Types   []byte
	Queries []byte
	Want    string

	archive   *txtar.Archive
	ownConfig bool
}

// LoadScenario reads a scenario archive from path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := ParseScenario(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// ParseScenario parses archive bytes. A scenario without tsolve.yaml uses
// the default configuration.
func ParseScenario(name string, data []byte) (*Scenario, error) {
	ar := txtar.Parse(data)
	s := &Scenario{Name: name, archive: ar, Config: config.Default()}
	var haveQueries bool
	for _, f := range ar.Files {
		switch f.Name {
		case SectionConfig:
			cfg, err := config.ParseConfig(f.Data, name+"/"+f.Name)
			if err != nil {
				return nil, err
			}
			s.Config, s.ownConfig = cfg, true
		case SectionTypes:
			s.Types = f.Data
		case SectionQueries:
			s.Queries, haveQueries = f.Data, true
		case SectionWant:
			s.Want = string(f.Data)
		default:
			return nil, fmt.Errorf("unexpected section %q", f.Name)
		}
	}
	if !haveQueries {
		return nil, fmt.Errorf("%s: %w", SectionQueries, ErrMissingSection)
	}
	return s, nil
}

// UseConfig sets the configuration for a scenario that carries no
// tsolve.yaml of its own.
func (s *Scenario) UseConfig(cfg *config.Config) {
	if !s.ownConfig && cfg != nil {
		s.Config = cfg
	}
}

// WithWant returns the archive with its want section replaced by got.
func (s *Scenario) WithWant(got string) []byte {
	ar := &txtar.Archive{Comment: s.archive.Comment}
	replaced := false
	for _, f := range s.archive.Files {
		if f.Name == SectionWant {
			f.Data, replaced = []byte(got), true
		}
		ar.Files = append(ar.Files, f)
	}
	if !replaced {
		ar.Files = append(ar.Files, txtar.File{Name: SectionWant, Data: []byte(got)})
	}
	return txtar.Format(ar)
}

// Plan is a scenario with its types declared in a fresh session and its
// queries decoded.
type Plan struct {
	Scenario *Scenario
	Session  *solver.Session
	Decoder  *Decoder
	Queries  []Query
}

// Prepare declares the scenario's types and decodes its queries.
func Prepare(s *Scenario, opts ...solver.Option) (*Plan, error) {
	r := typesystem.NewMapResolver()
	sess := solver.NewSession(s.Config, r, opts...)
	d := NewDecoder(sess.Interner(), r)
	if len(s.Types) > 0 {
		if err := d.Declare(s.Types); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", s.Name, SectionTypes, err)
		}
	}
	qs, err := d.DecodeQueries(s.Queries)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", s.Name, SectionQueries, err)
	}
	return &Plan{Scenario: s, Session: sess, Decoder: d, Queries: qs}, nil
}

// Report holds the answers of one run, in query order.
type Report struct {
	Scenario string
	Session  uuid.UUID
	Lines    []string
}

// Output renders the report the way want sections are written.
func (r *Report) Output() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return strings.Join(r.Lines, "\n") + "\n"
}

// Diff compares the report with want line by line and describes each
// mismatch. An empty result means they agree.
func (r *Report) Diff(want string) []string {
	wantLines := splitLines(want)
	var out []string
	for i := 0; i < max(len(wantLines), len(r.Lines)); i++ {
		var w, g string
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if i < len(r.Lines) {
			g = r.Lines[i]
		}
		if w != g {
			out = append(out, fmt.Sprintf("line %d:\n  want: %s\n   got: %s", i+1, w, g))
		}
	}
	return out
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return lines
}

// Run answers every query on the shared session, up to parallel at a
// time. parallel <= 0 means no limit.
func (p *Plan) Run(ctx context.Context, parallel int) (*Report, error) {
	lines := make([]string, len(p.Queries))
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, q := range p.Queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lines[i] = q.Name + ": " + q.Run(p.Session)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Scenario.Name, err)
	}
	return &Report{Scenario: p.Scenario.Name, Session: p.Session.ID(), Lines: lines}, nil
}

// Run prepares and runs a scenario.
func Run(ctx context.Context, s *Scenario, parallel int, opts ...solver.Option) (*Report, error) {
	p, err := Prepare(s, opts...)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, parallel)
}
