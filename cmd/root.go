package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vtsingaras/orct/internal/config"
	"github.com/vtsingaras/orct/internal/loader"
	"github.com/vtsingaras/orct/internal/logger"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/schema"
	"github.com/vtsingaras/orct/internal/qcn"
	"github.com/vtsingaras/orct/internal/render"
)

var (
	cfgFile    string
	schemaFile string
	printFile  string
	updateFile string
	compileXML string
	diffA      string
	dumpFile   string
	dumpFormat string
	diffTool   string
	verbose    int

	// exitCode is what main hands to os.Exit; the diff path propagates
	// the external tool's code through it.
	exitCode int
)

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "orct",
	Short: "Read, write, print and diff Qualcomm radio calibration configurations",
	Long: `orct unifies the vendor NV XML dialect, QCN compound-file snapshots
and MBN carrier-configuration images under one model, so any input can be
printed, compiled or diffed against any other.

All operations need the NV definition schema (--schema).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// --debug and --log-format override the configured logging setup.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("debug") && !flags.Changed("log-format") {
			return nil
		}
		lc := logger.LoggerConfig{
			Debug:     config.Instance.Debug,
			LogFormat: config.Instance.LogFormat,
			LogFile:   config.Instance.LogFile,
		}
		if flags.Changed("debug") {
			lc.Debug, _ = flags.GetBool("debug")
		}
		if flags.Changed("log-format") {
			lc.LogFormat, _ = flags.GetString("log-format")
		}
		return logger.InitLogger(lc)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("diff-tool") {
			config.Instance.DiffTool = diffTool
		}
		if schemaFile == "" {
			schemaFile = config.Instance.Schema
		}

		modes := 0
		for _, f := range []string{printFile, updateFile, compileXML, diffA, dumpFile} {
			if f != "" {
				modes++
			}
		}
		if modes == 0 {
			return cmd.Help()
		}
		if modes > 1 {
			return fmt.Errorf("print, update, compile, diff and dump are mutually exclusive")
		}
		if schemaFile == "" {
			return fmt.Errorf("a schema file is required (--schema)")
		}

		cat, err := schema.Load(schemaFile, schemaOptions())
		if err != nil {
			return fmt.Errorf("loading schema %s: %w", schemaFile, err)
		}
		logger.LogDebug("schema loaded", map[string]interface{}{
			"numbered": len(cat.Numbered),
			"efs":      len(cat.Efs),
			"types":    len(cat.Types),
		})

		switch {
		case printFile != "":
			return runPrint(cat)
		case updateFile != "":
			return runUpdate(cat, args)
		case compileXML != "":
			return runCompile(cat, args)
		case diffA != "":
			return runDiff(cat, args)
		case dumpFile != "":
			return runDump(cat)
		}
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("command failed", err, nil)
		fmt.Fprintf(os.Stderr, "orct: %v\n", err)
		return 1
	}
	return exitCode
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&schemaFile, "schema", "s", "", "NV definition schema XML (required)")
	flags.StringVarP(&printFile, "print", "p", "", "print a QCN, XML or MBN file")
	flags.StringVarP(&updateFile, "update", "u", "", "emit an update script for a file (optional output operand)")
	flags.StringVarP(&compileXML, "compile", "c", "", "compile a master XML to QCN (output operand required)")
	flags.StringVarP(&diffA, "diff", "d", "", "diff two inputs after normalisation (second operand required)")
	flags.StringVar(&dumpFile, "dump", "", "export a file as a structured document")
	flags.StringVar(&dumpFormat, "format", "json", "dump format: json, yaml or plist")
	flags.StringVarP(&diffTool, "diff-tool", "t", "diff", "diff executable")
	flags.CountVarP(&verbose, "verbose", "v", "increase verbosity (repeatable)")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (not read: the config file comes from ORCT_CONFIG or the standard locations)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

func schemaOptions() schema.Options {
	opts := schema.DefaultOptions()
	if n := config.Instance.Compat.NumberedSubstPasses; n > 0 {
		opts.NumberedSubstPasses = n
	}
	if n := config.Instance.Compat.EfsSubstPasses; n > 0 {
		opts.EfsSubstPasses = n
	}
	return opts
}

func qcnOptions() qcn.Options {
	opts := qcn.DefaultOptions()
	if f := config.Instance.Compat.ProvisioningKeyFormat; f != "" {
		opts.ProvisioningKeyFormat = f
	}
	return opts
}

func runPrint(cat *model.Catalog) error {
	snap, err := loader.Load(printFile, cat)
	if err != nil {
		return err
	}
	p := &render.Printer{W: os.Stdout, Verbose: verbose}
	p.Print(snap)
	reportErrors(snap)
	return nil
}

func runUpdate(cat *model.Catalog, args []string) error {
	snap, err := loader.Load(updateFile, cat)
	if err != nil {
		return err
	}
	out := os.Stdout
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := render.WriteUpdateScript(out, snap); err != nil {
		return err
	}
	reportErrors(snap)
	return nil
}

func runCompile(cat *model.Catalog, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("compile needs an output file operand")
	}
	snap, err := loader.Compile(compileXML, args[0], cat, qcnOptions())
	if err != nil {
		return err
	}
	logger.LogInfo("compiled", map[string]interface{}{
		"input":  compileXML,
		"output": args[0],
	})
	reportErrors(snap)
	return nil
}

func runDiff(cat *model.Catalog, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("diff needs a second input operand")
	}
	code, err := render.Diff(diffA, args[0], cat, config.Instance.DiffTool, verbose, qcnOptions())
	if err != nil {
		return err
	}
	exitCode = code
	return nil
}

func runDump(cat *model.Catalog) error {
	snap, err := loader.Load(dumpFile, cat)
	if err != nil {
		return err
	}
	if err := render.Export(os.Stdout, snap, dumpFormat); err != nil {
		return err
	}
	reportErrors(snap)
	return nil
}

// reportErrors prints the accumulated diagnostics as one block on
// standard error. They never affect the exit code.
func reportErrors(snap *model.Snapshot) {
	errs := render.CollectErrors(snap)
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "errors:")
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
}
