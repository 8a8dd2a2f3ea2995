// Tape CLI - runs programs for the eight-command tape language
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/server"
)

var log = commonlog.GetLogger("tape.cli")

func main() {
	verbose := flag.Bool("v", false, "Verbose logging")
	configPath := flag.String("config", "", "Path to tape.toml (default: search upward from the working directory)")
	checkMode := flag.Bool("check", false, "Lex and parse the program, print ok or the error")
	fmtMode := flag.Bool("fmt", false, "Print the program in canonical form")
	dump := flag.Bool("dump", false, "Print the final pointer and non-zero cells to stderr")
	imageOut := flag.String("image", "", "Write a program image with the final machine state to this path")
	imageIn := flag.String("load-image", "", "Run the program stored in an image file")
	record := flag.Bool("record", false, "Record the run in the history store")
	history := flag.Int("history", 0, "List the N most recent recorded runs")
	replay := flag.String("replay", "", "Run a program from the history store by its hash")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	serveMode := flag.Bool("serve", false, "Start the run service (Connect HTTP/JSON)")
	addr := flag.String("addr", "", "Run service address (used with -serve, overrides [server] addr)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tape [options] <path>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a tape program with stdin as input and stdout as output.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tape hello.tp                  # Run a program\n")
		fmt.Fprintf(os.Stderr, "  tape -check hello.tp           # Validate only\n")
		fmt.Fprintf(os.Stderr, "  tape -image out.tpi hello.tp   # Run and save an image\n")
		fmt.Fprintf(os.Stderr, "  tape -load-image out.tpi       # Run a saved image\n")
		fmt.Fprintf(os.Stderr, "  tape -history 10               # Show recent runs\n")
		fmt.Fprintf(os.Stderr, "  tape -replay <hash>            # Run a recorded program again\n")
		fmt.Fprintf(os.Stderr, "  tape -serve -addr :8080        # Serve runs over HTTP\n")
	}
	flag.Parse()

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	configureLogging(m, *verbose)

	switch {
	case *lspMode:
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		return

	case *serveMode:
		if *addr != "" {
			m.Server.Addr = *addr
		}
		if err := serve(m); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return

	case *history > 0:
		if err := printHistory(os.Stdout, m, *history); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := runOptions{
		dump:     *dump,
		imageOut: *imageOut,
		record:   *record,
	}

	if *imageIn != "" {
		if err := runImage(m, *imageIn, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *replay != "" {
		if err := runReplay(m, *replay, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	source, err := readSource(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch {
	case *checkMode:
		fmt.Println(check(source))
	case *fmtMode:
		fmt.Println(formatSource(source))
	default:
		if err := runSource(m, source, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadManifest reads the explicit config file, or searches upward from the
// working directory. Without a tape.toml the defaults apply.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, verbose bool) {
	verbosity := m.Log.Verbosity
	if verbose && verbosity < 1 {
		verbosity = 1
	}
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(verbosity, path)
}
