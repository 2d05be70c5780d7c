package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
	"pssbuild/internal/layout"
	"pssbuild/internal/observ"
	"pssbuild/internal/pss"
)

var (
	buildGraphOut string
	buildTarget   string
)

func init() {
	buildCmd.Flags().StringVar(&buildGraphOut, "graph", "", "write the pointer state subgraph as Graphviz dot to this path (- for stdout)")
	buildCmd.Flags().StringVar(&buildTarget, "target", "", "target triple (currently only x86_64-linux-gnu is implemented; default from pssbuild.toml or that)")
}

var buildCmd = &cobra.Command{
	Use:   "build [module.pssir]",
	Short: "Lower a module and report its pointer state subgraph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	timer := observ.NewTimer()

	cfg, found, err := loadConfig(".")
	if err != nil {
		return err
	}

	path, err := resolveModulePath(args, cfg, found)
	if err != nil {
		return err
	}

	idx := timer.Begin("decode")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	module, err := ir.DecodeModule(data)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", path, err)
	}
	timer.End(idx, fmt.Sprintf("%d functions, %d globals", len(module.Functions), len(module.Globals)))

	target := resolveTarget(cfg, found)
	module.Layout = layout.New(target)

	maxDiags, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return err
	}

	idx = timer.Begin("build")
	result, buildErr := pss.BuildWithCapacity(module, maxDiags)
	timer.End(idx, "")

	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	var bag *diag.Bag
	switch be := buildErr.(type) {
	case nil:
		bag = result.Diags
	case *pss.BuildError:
		bag = be.Bag
	default:
		return buildErr
	}

	if bag != nil {
		bag.Sort()
		useColor, colorErr := resolveColor(cmd)
		if colorErr != nil {
			return colorErr
		}
		if !quiet || bag.HasErrors() {
			diag.Pretty(cmd.ErrOrStderr(), bag, diag.PrettyOpts{Color: useColor})
		}
		if !quiet {
			diag.Summary(cmd.ErrOrStderr(), bag)
		}
	}

	if buildErr != nil {
		return buildErr
	}

	if buildGraphOut != "" {
		if err := writeGraph(cmd, result, buildGraphOut); err != nil {
			return err
		}
	}

	if showTimings {
		fmt.Fprint(cmd.OutOrStdout(), timer.Summary())
	}

	return nil
}

func resolveModulePath(args []string, cfg *config, found bool) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if found && cfg.Data.Build.Entry != "" {
		return joinIfRelative(cfg.Root, cfg.Data.Build.Entry), nil
	}
	return "", fmt.Errorf(noConfigMessage)
}

func joinIfRelative(root, p string) string {
	if p == "" || p[0] == '/' {
		return p
	}
	return root + string(os.PathSeparator) + p
}

func resolveTarget(cfg *config, found bool) layout.Target {
	triple := buildTarget
	if triple == "" && found {
		triple = cfg.Data.Target.Triple
	}
	switch triple {
	case "", "x86_64-linux-gnu":
		return layout.X86_64LinuxGNU()
	default:
		return layout.X86_64LinuxGNU()
	}
}

func resolveColor(cmd *cobra.Command) (bool, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto", "":
		f, ok := cmd.ErrOrStderr().(*os.File)
		if !ok {
			return false, nil
		}
		return term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("unsupported --color value %q (must be auto, on, or off)", mode)
	}
}

func writeGraph(cmd *cobra.Command, result *pss.Result, path string) error {
	var w io.Writer
	if path == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("writing graph to %q: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	result.Print(w)
	return nil
}
