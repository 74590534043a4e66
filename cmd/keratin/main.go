package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/codec"
	"github.com/Grimnirrrr/keratin/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "keratin",
	Short: "keratin - crochet pattern design engine",
	Long: `keratin is a design aid for crocheted amigurumi.

It assembles pieces into validated constructions and derives everything a
maker needs from the same data: yarn requirements, cost and time estimates,
charts, written instructions and 3D preview meshes.

All commands work on files; nothing talks to the network.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := zap.NewProductionConfig()
		if verbose {
			logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = logCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// chartCmd renders a pattern as one of the chart kinds
var chartCmd = &cobra.Command{
	Use:   "chart [pattern tokens]",
	Short: "Render a stitch pattern as a chart",
	Long: `Parses the stitch tokens and renders the requested chart kind as JSON.

Kinds:
  written   - numbered text rows, one per round
  symbol    - standard chart symbols on a circular grid
  graph     - colored grid, one row per round
  diagram   - connected symbol nodes
  layered3d - stacked rings with a skinned mesh

Example:
  keratin chart --kind symbol "MR sc sc inc sc sc inc"
  keratin chart --kind symbol --svg "MR sc sc inc" > chart.svg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChart,
}

// estimateCmd prints yarn, cost and time estimates for a pattern
var estimateCmd = &cobra.Command{
	Use:   "estimate [pattern tokens]",
	Short: "Estimate yarn, cost and working time for a pattern",
	Long: `Sums per-stitch yarn consumption and prints the material requirement,
a priced breakdown and a working-time estimate.

Example:
  keratin estimate --weight 4 --skill intermediate "MR sc sc sc inc inc join"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEstimate,
}

// instructionsCmd generates human-readable assembly instructions
var instructionsCmd = &cobra.Command{
	Use:   "instructions [assembly.json]",
	Short: "Generate step-by-step instructions for an assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstructions,
}

// validateCmd checks an assembly file against the structural invariants
var validateCmd = &cobra.Command{
	Use:   "validate [assembly.json]",
	Short: "Validate an assembly file",
	Long: `Loads an assembly file and runs the structural checks: dangling
connections, occupancy, compatibility, cycles and reachability.
Exits non-zero when blocking errors are found.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

// previewCmd tessellates an assembly into preview meshes
var previewCmd = &cobra.Command{
	Use:   "preview [assembly.json]",
	Short: "Tessellate an assembly into 3D preview meshes",
	Long: `Approximates every piece as a smooth solid sized from its pattern and
writes the triangle meshes as JSON, one mesh per piece. With --fused the
pieces are unioned into a single mesh first.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

// scriptCmd groups the design script subcommands
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Design script commands",
}

var scriptRunCmd = &cobra.Command{
	Use:   "run [design.zy]",
	Short: "Build an assembly from a design script",
	Long: `Evaluates a zygomys design script and writes the resulting assembly
as JSON. The script runs through the same gated operations as interactive
edits, so tier limits and connection checks apply.

Example:
  keratin script run examples/bear.zy --out bear.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

// recoverCmd repairs a damaged assembly file
var recoverCmd = &cobra.Command{
	Use:   "recover [assembly.json]",
	Short: "Recover a damaged assembly file",
	Long: `Runs the recovery chain over the file: parse as-is, rebuild from the
embedded command log, salvage intact pieces, and optionally fall back to a
clean slate. Writes the repaired assembly as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

var (
	// chart flags
	chartKind string
	chartSVG  bool

	// estimate flags
	estWeight int
	estSkill  string
	estPrice  float64
	estWaste  float64

	// instructions flags
	docFormat string

	// preview flags
	previewOut   string
	previewFused bool

	// script flags
	scriptOut  string
	scriptTier string

	// recover flags
	recoverOut        string
	recoverCleanSlate bool
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (YAML, default: built-in)")

	chartCmd.Flags().StringVar(&chartKind, "kind", "written", "Chart kind: written|symbol|graph|diagram|layered3d")
	chartCmd.Flags().BoolVar(&chartSVG, "svg", false, "Emit SVG instead of JSON (symbol kind only)")

	estimateCmd.Flags().IntVar(&estWeight, "weight", 4, "Yarn weight class (0-7)")
	estimateCmd.Flags().StringVar(&estSkill, "skill", "intermediate", "Skill level: beginner|intermediate|advanced|expert")
	estimateCmd.Flags().Float64Var(&estPrice, "price", 4.99, "Price per skein")
	estimateCmd.Flags().Float64Var(&estWaste, "waste", 0, "Waste factor override (0: table default)")

	instructionsCmd.Flags().StringVar(&docFormat, "format", "markdown", "Output format: markdown|html")

	previewCmd.Flags().StringVar(&previewOut, "out", "", "Write meshes to this file (default: stdout)")
	previewCmd.Flags().BoolVar(&previewFused, "fused", false, "Union all pieces into a single mesh")

	scriptRunCmd.Flags().StringVar(&scriptOut, "out", "", "Write the assembly to this file (default: stdout)")
	scriptRunCmd.Flags().StringVar(&scriptTier, "tier", "studio", "Tier the script runs under unless it declares one")
	scriptCmd.AddCommand(scriptRunCmd)

	recoverCmd.Flags().StringVar(&recoverOut, "out", "", "Write the repaired assembly to this file (default: stdout)")
	recoverCmd.Flags().BoolVar(&recoverCleanSlate, "allow-clean-slate", false, "Allow recovery to produce an empty assembly")

	// Add commands to root
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(instructionsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(recoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// joinArgs joins positional args back into one pattern string.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

// fileStem returns the file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadSettings resolves the --config flag.
func loadSettings() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// readAssembly loads and decodes an assembly file.
func readAssembly(path string) (*codec.Envelope, *assembly.Assembly, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	env, err := codec.Unmarshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	a, err := codec.Decode(env)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return env, a, nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
