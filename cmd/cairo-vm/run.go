package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	zerorunner "github.com/cairo-vm/cairo-vm-go/pkg/runners/zero"
)

type runFlags struct {
	layout              string
	layoutFile          string
	entrypoint          string
	proofMode           bool
	secureRun           bool
	traceEnabled        bool
	relocateMem         bool
	disableTracePadding bool
	maxSteps            uint64
	traceFile           string
	memoryFile          string
	airPublicInputFile  string
	verbose             bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [program.json]",
		Short: "Run a compiled Cairo zero program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(flags.verbose)
			return runProgram(args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.layout, "layout", "plain", "builtin layout to run against")
	f.StringVar(&flags.layoutFile, "layout_file", "", "path to a YAML file defining a custom layout (overrides --layout)")
	f.StringVar(&flags.entrypoint, "entrypoint", "main", "function to call (ignored in proof mode)")
	f.BoolVar(&flags.proofMode, "proof_mode", false, "run in proof mode (enter at __start__, pad trace)")
	f.BoolVar(&flags.secureRun, "secure_run", false, "run the post-execution validation/final-stack checks")
	f.BoolVar(&flags.traceEnabled, "trace_enabled", false, "record the execution trace")
	f.BoolVar(&flags.relocateMem, "relocate_mem", false, "relocate memory and write it alongside the trace")
	f.BoolVar(&flags.disableTracePadding, "disable_trace_padding", false, "skip proof-mode power-of-two trace padding")
	f.Uint64Var(&flags.maxSteps, "max_steps", 1_000_000, "maximum deterministic steps before aborting")
	f.StringVar(&flags.traceFile, "trace_file", "", "path to write the encoded trace to")
	f.StringVar(&flags.memoryFile, "memory_file", "", "path to write the encoded relocated memory to")
	f.StringVar(&flags.airPublicInputFile, "air_public_input", "", "path to write the AIR public input JSON document to")
	f.BoolVar(&flags.verbose, "verbose", false, "enable debug logging")

	return cmd
}

func runProgram(path string, flags *runFlags) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading program %s", path)
	}

	program, err := zero.ParseProgram(raw)
	if err != nil {
		return errors.Wrap(err, "parsing program")
	}

	proofMode := flags.proofMode
	traceEnabled := flags.traceEnabled || proofMode

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{
		Layout:     flags.layout,
		LayoutFile: flags.layoutFile,
		ProofMode:  traceEnabled,
		MaxSteps:   flags.maxSteps,
		Entrypoint: flags.entrypoint,
	})
	if err != nil {
		return errors.Wrap(err, "initializing runner")
	}

	logEvent := log.Info().Str("program", path).Bool("proof_mode", proofMode)
	if flags.layoutFile != "" {
		logEvent = logEvent.Str("layout_file", flags.layoutFile)
	} else {
		logEvent = logEvent.Str("layout", flags.layout)
	}
	logEvent.Msg("running program")

	if flags.disableTracePadding {
		if err := runRawSteps(runner, proofMode); err != nil {
			return err
		}
	} else if err := runner.Run(); err != nil {
		return errors.Wrap(err, "running program")
	}

	if flags.secureRun {
		if err := runner.CheckSecureRun(); err != nil {
			return errors.Wrap(err, "secure run check failed")
		}
	}

	wantsOutput := flags.traceFile != "" || flags.memoryFile != "" || flags.relocateMem || flags.airPublicInputFile != ""

	if !traceEnabled && wantsOutput {
		log.Warn().Msg("trace/memory output requested without trace_enabled or proof_mode; nothing written")
		return nil
	}

	if !wantsOutput {
		log.Info().Msg("program run completed")
		return nil
	}

	encodedTrace, encodedMemory, err := runner.BuildProof()
	if err != nil {
		return errors.Wrap(err, "building trace/memory output")
	}

	if flags.traceFile != "" {
		if err := os.WriteFile(flags.traceFile, encodedTrace, 0o644); err != nil {
			return errors.Wrapf(err, "writing trace file %s", flags.traceFile)
		}
	}
	if flags.memoryFile != "" {
		if err := os.WriteFile(flags.memoryFile, encodedMemory, 0o644); err != nil {
			return errors.Wrapf(err, "writing memory file %s", flags.memoryFile)
		}
	}
	if flags.airPublicInputFile != "" {
		publicInput, err := runner.BuildPublicInput()
		if err != nil {
			return errors.Wrap(err, "building air public input")
		}
		encoded, err := zerorunner.EncodePublicInput(publicInput)
		if err != nil {
			return errors.Wrap(err, "encoding air public input")
		}
		if err := os.WriteFile(flags.airPublicInputFile, encoded, 0o644); err != nil {
			return errors.Wrapf(err, "writing air public input file %s", flags.airPublicInputFile)
		}
	}

	log.Info().Msg("program run completed")
	return nil
}

// runRawSteps bypasses ZeroRunner.Run's automatic trace padding, for
// callers that want the exact, unpadded step count a program took.
func runRawSteps(runner *zerorunner.ZeroRunner, proofMode bool) error {
	end, err := runner.InitializeMainEntrypoint()
	if err != nil {
		return errors.Wrap(err, "initializing main entrypoint")
	}
	if err := runner.RunUntilPc(&end); err != nil {
		return errors.Wrap(err, "running program")
	}
	if proofMode {
		// still required for a well-formed proof-mode trace, just without
		// the subsequent power-of-two padding.
		if err := runner.RunFor(runner.Steps() + 1); err != nil {
			return errors.Wrap(err, "running final proof-mode instruction")
		}
	}
	runner.MarkFinished()
	return nil
}
