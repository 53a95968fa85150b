package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/volume.report/internal/config"
	"github.com/banshee-data/volume.report/internal/db"
	"github.com/banshee-data/volume.report/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("volume: %v", err)
	}
}

// run dispatches on the first argument. Anything that is not a subcommand
// is treated as flags for a one-shot computation.
func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return fmt.Errorf("no inputs given")
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
		dbPath := fs.String("db", "volume.db", "Path to the run history database")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return db.RunMigrateCommand(fs.Args(), *dbPath, out)
	case "runs":
		return runListRuns(args[1:], out)
	case "version":
		fmt.Fprintf(out, "volume %s\n", version.String())
		return nil
	case "help", "-h", "-help", "--help":
		printUsage(out)
		return nil
	default:
		return runCompute(args, out)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `volume - cut and fill volumes between two elevation grids

Usage:
  volume -dem DEM.asc -base BASE.asc -polygon REGION.geojson [options]
  volume serve [-listen :8080] [-data DIR] [-db volume.db] [-config FILE]
  volume migrate [-db volume.db] <up|down|status|force N|help>
  volume runs [-db volume.db] [-limit N] [-json]
  volume version

Compute options:
  -config FILE         Volume configuration (JSON)
  -fill-rule RULE      even-odd or non-zero (overrides the config)
  -label TEXT          Label stored with the run
  -json                Print the result as JSON
  -diff-out FILE       Write the masked difference grid (ESRI ASCII)
  -plot-out FILE       Write the difference heat map (PNG)
  -histogram-out FILE  Write the difference histogram (HTML)
  -db FILE             Record the run in this database

Volumes are reported in cell area × elevation units of the input grids.`)
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.VolumeConfig, error) {
	if path == "" {
		return config.DefaultVolumeConfig(), nil
	}
	return config.LoadVolumeConfig(path)
}
