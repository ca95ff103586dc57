// Alum CLI - compiles and runs Alum programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/wayuto/alum/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("alum.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("alum", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var o options
	flags.BoolVar(&o.printSource, "p", false, "Print the preprocessed source and exit")
	flags.BoolVar(&o.printAST, "a", false, "Print the program tree as JSON and exit")
	flags.BoolVar(&o.disassemble, "d", false, "Print the bytecode listing and exit")
	flags.StringVar(&o.output, "o", "", "Write the compiled artifact to `file` instead of running")
	flags.BoolVar(&o.noOpt, "no-opt", false, "Disable constant folding")
	flags.BoolVar(&o.strict, "strict", false, "Treat labels and goto as compile errors")
	flags.BoolVar(&o.trace, "trace", false, "Log every executed instruction")
	verbose := flags.Bool("v", false, "Verbose output")
	lspMode := flags.Bool("lsp", false, "Start the language server on stdio")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: alum [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs an Alum program. Without a file, the entry of the\n")
		fmt.Fprintf(stderr, "nearest alum.toml is used.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  alum main.alum                # Run a program\n")
		fmt.Fprintf(stderr, "  alum -d main.alum             # Show the bytecode\n")
		fmt.Fprintf(stderr, "  alum -o main.alumc main.alum  # Compile to an artifact\n")
		fmt.Fprintf(stderr, "  alum main.alumc               # Run an artifact\n")
		fmt.Fprintf(stderr, "  alum tree.json                # Compile and run a JSON program tree\n")
		fmt.Fprintf(stderr, "  alum -lsp                     # Start the language server\n")
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	configureLogging(*verbose, o.trace)

	if *lspMode {
		if err := server.NewLSP(server.Options{Strict: o.strict}).Run(); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	if flags.NArg() > 1 {
		flags.Usage()
		return 1
	}
	o.file = flags.Arg(0)

	code, err := execute(o, stdin, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return code
}

// configureLogging shows warnings by default and info with -v. Tracing
// opens up debug output for the machine only.
func configureLogging(verbose, trace bool) {
	verbosity := -1
	if verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
	if trace {
		commonlog.SetMaxLevel(commonlog.Debug, "alum", "vm")
	}
}
