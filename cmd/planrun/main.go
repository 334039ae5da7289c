// Command planrun validates, inspects, and executes a plan file against
// a db and a file tool server reached over the framed stdio protocol.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/quietloop/planrunner/pkg/config"
	"github.com/quietloop/planrunner/pkg/contracts"
	"github.com/quietloop/planrunner/pkg/dag"
	"github.com/quietloop/planrunner/pkg/plan"
	"github.com/quietloop/planrunner/pkg/schedule"
	"github.com/quietloop/planrunner/pkg/validate"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, kept separate from main so it can be
// exercised by tests without touching process exit codes or os.Args.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "plan":
		return runPlanCmd(args[2:], stdout, stderr)
	case "run":
		return runRunCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "planrun: unknown command %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: planrun <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  validate -plan <file>     validate a plan against the default tool registry")
	fmt.Fprintln(w, "  plan     -plan <file>     print the dependency DAG and execution layers")
	fmt.Fprintln(w, "  run      -plan <file>     execute a plan end to end against db/file tool servers")
}

func loadPlan(path string) (plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("planrun: reading plan %q: %w", path, err)
	}
	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("planrun: parsing plan %q: %w", path, err)
	}
	return p, nil
}

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	planPath := fs.String("plan", "", "path to the plan JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *planPath == "" {
		fmt.Fprintln(stderr, "planrun validate: -plan is required")
		return 2
	}

	p, err := loadPlan(*planPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	registry := contracts.NewDefaultRegistry()
	if err := validate.Validate(p, registry); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "plan %q is valid (%d steps)\n", *planPath, len(p))
	return 0
}

func runPlanCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	planPath := fs.String("plan", "", "path to the plan JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *planPath == "" {
		fmt.Fprintln(stderr, "planrun plan: -plan is required")
		return 2
	}

	p, err := loadPlan(*planPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	registry := contracts.NewDefaultRegistry()
	if err := validate.Validate(p, registry); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	g, err := dag.Build(p, registry)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	layers, err := schedule.BuildLayers(g)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	for li, layer := range layers {
		ids := make([]string, len(layer))
		for i, idx := range layer {
			ids[i] = p[idx].ID
		}
		fmt.Fprintf(stdout, "layer %d: %v\n", li, ids)
	}
	return 0
}

// runRunCmd is the end-to-end path: it spawns db and file tool-server
// subprocesses over the framed stdio transport, wires them into the
// session router per the config's pool_size_per_backend setting, and runs the
// plan to completion. Command names come from -db-server/-file-server
// so the reference demo servers and any compatible replacement can be
// used interchangeably.
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	planPath := fs.String("plan", "", "path to the plan JSON file")
	dbServer := fs.String("db-server", "", "command to launch the db tool server")
	fileServer := fs.String("file-server", "", "command to launch the file tool server")
	configPath := fs.String("config", "", "optional YAML config overlay")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *planPath == "" || *dbServer == "" || *fileServer == "" {
		fmt.Fprintln(stderr, "planrun run: -plan, -db-server, and -file-server are required")
		return 2
	}

	cfg, err := config.LoadWithOverlay(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	result, err := executePlanFile(*planPath, *dbServer, *fileServer, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return boolToCode(enc.Encode(result) == nil)
}

func boolToCode(ok bool) int {
	if ok {
		return 0
	}
	return 1
}
