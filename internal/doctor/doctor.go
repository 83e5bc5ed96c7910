// Package doctor prints diagnostics about a facedeploy installation: the
// container engine, the files under the home directory, and the endpoints.
package doctor

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/majorcontext/facedeploy/internal/ui"
)

// Section represents a diagnostic section that can be printed.
type Section interface {
	// Name returns the section name (e.g., "Container Runtime")
	Name() string

	// Print outputs the section's diagnostic information to the writer.
	// An error marks the section as failed; the report keeps going.
	Print(w io.Writer) error
}

// Registry holds all registered doctor sections.
type Registry struct {
	sections []Section
}

// NewRegistry creates a new doctor section registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a section to the registry.
func (r *Registry) Register(s Section) {
	r.sections = append(r.sections, s)
}

// Sections returns all registered sections.
func (r *Registry) Sections() []Section {
	return r.sections
}

// Report prints every section under its own heading and returns how many failed.
func (r *Registry) Report(w io.Writer) int {
	failed := 0
	for _, s := range r.sections {
		fmt.Fprintln(w, ui.Bold(s.Name()))
		if err := s.Print(w); err != nil {
			fmt.Fprintf(w, "%s Error: %v\n", ui.FailTag(), err)
			failed++
		}
		fmt.Fprintln(w)
	}
	return failed
}

// Check is one labeled result line.
type Check struct {
	Label  string
	OK     bool
	Detail string
}

// PrintChecks renders checks as an aligned table and returns how many failed.
func PrintChecks(w io.Writer, checks []Check) (int, error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	failed := 0
	for _, c := range checks {
		tag := ui.OKTag()
		if !c.OK {
			tag = ui.FailTag()
			failed++
		}
		fmt.Fprintf(tw, "%s:\t%s %s\n", c.Label, tag, c.Detail)
	}
	return failed, tw.Flush()
}
