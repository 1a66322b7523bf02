package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx := context.Background()

	app := kingpin.New(filepath.Base(os.Args[0]), "Resolves byte patterns against module images ahead of time.").UsageWriter(os.Stdout)
	app.Version(version.Print("sigc"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	resolveCmd := app.Command("resolve", "Resolve one pattern and print the static signature literal.")
	resolveParams := addResolveParams(resolveCmd)

	generateCmd := app.Command("generate", "Resolve every signature of a manifest and write a Go file.")
	generateParams := addGenerateParams(generateCmd)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case resolveCmd.FullCommand():
		if err := resolve(ctx, os.Stdout, resolveParams); err != nil {
			os.Exit(checkError(err))
		}
	case generateCmd.FullCommand():
		if err := generate(ctx, generateParams); err != nil {
			os.Exit(checkError(err))
		}
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	switch err {
	case nil:
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return 1
}
