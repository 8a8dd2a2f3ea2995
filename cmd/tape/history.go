package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/image"
	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/store"
)

// printHistory lists the most recent recorded runs.
func printHistory(w io.Writer, m *manifest.Manifest, limit int) error {
	st, err := store.Open(m.Store.Driver, m.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.RecentRuns(limit)
	if err != nil {
		return err
	}
	return writeRuns(w, runs)
}

// loadRecorded fetches a stored program and how often it has been run.
func loadRecorded(m *manifest.Manifest, hash string) (compiler.Program, int, error) {
	st, err := store.Open(m.Store.Driver, m.StorePath())
	if err != nil {
		return nil, 0, err
	}
	defer st.Close()

	prog, err := st.Program(hash)
	if err != nil {
		return nil, 0, err
	}
	runs, err := st.RunsFor(hash)
	if err != nil {
		return nil, 0, err
	}
	return prog, runs, nil
}

// runReplay runs a program from the history store against stdin and stdout.
func runReplay(m *manifest.Manifest, hash string, opts runOptions) error {
	prog, runs, err := loadRecorded(m, hash)
	if err != nil {
		return err
	}
	log.Noticef("replaying %s (%d recorded runs)", hash, runs)
	return runProgram(m, prog, image.FromProgram(prog), opts)
}

func writeRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tSTEPS\tPROGRAM\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d bytes\n",
			r.ID, r.CreatedAt.Format(time.DateTime), r.Status, r.Steps, programColumn(r.ProgramHash), len(r.Output))
	}
	return tw.Flush()
}

// programColumn shows the full hash so it can be passed to -replay.
func programColumn(h string) string {
	if h == "" {
		return "-"
	}
	return h
}
