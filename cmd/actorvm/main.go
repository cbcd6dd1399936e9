// Command actorvm compiles and runs programs written in the entity
// language against the actor-model interpreter (§6 — the thin CLI
// wrapper spec.md places out of scope).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/compiler"
	"github.com/kristofer/actorvm/pkg/parser"
	"github.com/kristofer/actorvm/pkg/resolver"
	"github.com/kristofer/actorvm/pkg/runner"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:      "actorvm",
		Usage:     "compile and run entity-language programs on the actor VM",
		Version:   version,
		UsageText: "actorvm [global options] command [command options] [arguments...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug-level logging"},
		},
		Commands: []*cli.Command{
			compileCommand,
			disassembleCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "actorvm: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *zap.SugaredLogger {
	var cfg zap.Config
	if c.Bool("verbose") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		// A logger that fails to build is a misconfigured environment,
		// not a recoverable runtime condition.
		panic(err)
	}
	return logger.Sugar()
}

var compileCommand = &cli.Command{
	Name:      "compile",
	Usage:     "compile a .smog source file to a .sg container",
	ArgsUsage: "<input.smog> [output.sg]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("compile requires an input file", 1)
		}
		input := c.Args().Get(0)
		output := c.Args().Get(1)
		if output == "" {
			output = withExt(input, ".sg")
		}

		bin, err := compileFile(input)
		if err != nil {
			return cli.Exit(err, 1)
		}
		if err := os.WriteFile(output, bin.Raw, 0o644); err != nil {
			return cli.Exit(fmt.Errorf("writing %s: %w", output, err), 1)
		}
		fmt.Printf("compiled %s -> %s (%d bytes)\n", input, output, len(bin.Raw))
		return nil
	},
}

var disassembleCommand = &cli.Command{
	Name:      "disassemble",
	Aliases:   []string{"disasm"},
	Usage:     "print a human-readable listing of a .sg container",
	ArgsUsage: "<file.sg>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("disassemble requires a file", 1)
		}
		raw, err := os.ReadFile(c.Args().Get(0))
		if err != nil {
			return cli.Exit(err, 1)
		}
		bin, err := bytecode.Load(raw)
		if err != nil {
			return cli.Exit(err, 1)
		}
		out, err := bytecode.Disassemble(bin)
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Print(out)
		return nil
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a compiled or source program, sending a BigBang to its entry function",
	ArgsUsage: "<file.smog|file.sg>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "entity", Value: "0", Usage: "entity id to target (decimal)"},
		&cli.StringFlag{Name: "entry", Value: "0", Usage: "entry function id (decimal) — the container format carries no function names"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics on this address (e.g. :9090) while running"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("run requires a file", 1)
		}
		logger := newLogger(c)
		defer logger.Sync()

		bin, err := loadProgram(c.Args().Get(0))
		if err != nil {
			return cli.Exit(err, 1)
		}

		entityID, err := parseUint32(c.String("entity"))
		if err != nil {
			return cli.Exit(fmt.Errorf("--entity: %w", err), 1)
		}
		entryID, err := parseUint32(c.String("entry"))
		if err != nil {
			return cli.Exit(fmt.Errorf("--entry: %w", err), 1)
		}

		opts := runner.Options{
			Logger:      logger,
			EntityID:    entityID,
			FunctionID:  entryID,
			MetricsAddr: c.String("metrics-addr"),
		}
		result, err := runner.Run(bin, opts)
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Printf("=> %s\n", result)
		return nil
	},
}

func compileFile(path string) (*bytecode.Binary, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	prog, err := parser.New(string(src)).Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := resolver.Resolve(prog); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	return compiler.Compile(prog)
}

func loadProgram(path string) (*bytecode.Binary, error) {
	if filepath.Ext(path) == ".sg" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return bytecode.Load(raw)
	}
	return compileFile(path)
}

func parseUint32(s string) (uint32, error) {
	var n uint32
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func withExt(path, ext string) string {
	orig := filepath.Ext(path)
	if orig == "" {
		return path + ext
	}
	return path[:len(path)-len(orig)] + ext
}
