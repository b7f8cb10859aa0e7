package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lamprey-dbg/lamprey/internal/breakpoint"
	"github.com/lamprey-dbg/lamprey/internal/config"
	"github.com/lamprey-dbg/lamprey/internal/debugger"
	lerrors "github.com/lamprey-dbg/lamprey/internal/errors"
	"github.com/lamprey-dbg/lamprey/internal/eval"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/jvmti/jvmtitest"
	"github.com/lamprey-dbg/lamprey/internal/locals"
	"github.com/lamprey-dbg/lamprey/internal/logging"
	"github.com/lamprey-dbg/lamprey/internal/stats"
)

type selftestOptions struct {
	configPath string
	logLevel   string
	pretty     bool
	logFile    string
}

func bindSelftestFlags(fs *pflag.FlagSet, opts *selftestOptions) {
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to agent config file")
	fs.StringVar(&opts.logLevel, "log-level", "", "override configured log level")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")
	fs.StringVar(&opts.logFile, "log-file", "", "write logs to a file instead of stderr")
}

func newSelftestCmd() *cobra.Command {
	opts := &selftestOptions{}
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Wire up the full debugger against a simulated runtime and replay an event trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(cmd, opts)
		},
	}
	bindSelftestFlags(cmd.Flags(), opts)
	return cmd
}

func runSelftest(cmd *cobra.Command, opts *selftestOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty || opts.pretty}
	if opts.logFile != "" {
		f, err := os.Create(opts.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logCfg.Output = f
		logCfg.Pretty = false
		defer func() {
			lerrors.DeferClose(logging.New(logging.DefaultConfig()), f, "close log file")
		}()
	}
	logger := logging.NewWithComponent(logCfg, "selftest")

	// Simulated runtime: one class with an instance method whose locals
	// are [x slot 1, y slot 2] past a single receiver argument slot.
	fake := jvmtitest.New()
	class := fake.AddClass("Lcom/example/Checkout;", "")
	fake.SetClassFile(class, make([]byte, 512))
	method := fake.AddMethod(class, jvmtitest.MethodInfo{
		Modifiers: jvmti.AccPublic,
		Table: []jvmti.LocalVariableEntry{
			{Name: "x", Signature: "I", Slot: 1},
			{Name: "y", Signature: "J", Slot: 2},
		},
		ArgumentsSize: 1,
	})

	queue := breakpoint.NewFormatQueue(cfg.FormatQueueCapacity)
	registry := stats.NewRegistry()

	d, err := debugger.New(cfg, debugger.Deps{
		Introspector:    fake,
		MethodLocals:    locals.NewCache(fake, nil, logger),
		CallStack:       simCallStack{method: method},
		ObjectEvaluator: simEvaluator{},
		ClassPathLookup: simLookup{method: method},
		LabelsFactory:   func() eval.LabelsProvider { return simLabels{} },
		FormatQueue:     queue,
		Stats:           registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Initialize(); err != nil {
		return err
	}

	// Replay the trace: prepare, arm, hit, hit after unload.
	d.OnClassPrepare(1, class)

	capture := breakpoint.NewDefinition("com/example/Checkout.java", 42)
	logpoint := breakpoint.NewDefinition("com/example/Checkout.java", 42)
	logpoint.Action = breakpoint.ActionLog
	logpoint.LogMessageFormat = "checkout snapshot"
	d.SetActiveBreakpointsList([]*breakpoint.Definition{capture, logpoint})

	d.OnBreakpoint(2, method, 7)
	d.OnCompiledMethodUnload(method)
	d.OnBreakpoint(2, method, 7)

	results := queue.Drain()
	cmd.Printf("captured %d result(s), %d dropped\n", len(results), queue.Dropped())
	for _, result := range results {
		cmd.Printf("breakpoint %s at method %d offset %d\n",
			result.BreakpointID, result.Method, result.Location)
		if result.Instance != nil {
			cmd.Printf("  %s = %s\n", result.Instance.Name, result.Instance.Value)
		}
		for _, v := range result.Variables {
			kind := "local"
			if v.IsArgument {
				kind = "argument"
			}
			cmd.Printf("  %s = %s (%s)\n", v.Name, v.Value, kind)
		}
	}

	for name, agg := range registry.Snapshot() {
		cmd.Printf("%s: count=%d mean=%dus max=%dus\n", name, agg.Count, agg.Mean(), agg.MaxMicros)
	}
	if rss, err := stats.ProcessMemory(); err == nil {
		cmd.Printf("process rss: %d bytes\n", rss)
	}

	if len(results) != 1 {
		return fmt.Errorf("selftest expected exactly 1 captured result, got %d", len(results))
	}
	cmd.Println("selftest passed")
	return nil
}

type simLookup struct {
	method jvmti.MethodID
}

func (s simLookup) ResolveSourceLocation(path string, line int) (jvmti.MethodID, jvmti.Location, error) {
	if path == "com/example/Checkout.java" && line == 42 {
		return s.method, 7, nil
	}
	return 0, 0, fmt.Errorf("no code at %s:%d", path, line)
}

type simCallStack struct {
	method jvmti.MethodID
}

func (s simCallStack) Frames(jvmti.ThreadID) ([]eval.Frame, error) {
	return []eval.Frame{{Method: s.method, Location: 7, Function: "Checkout.process"}}, nil
}

func (simCallStack) OnCompiledMethodUnload(jvmti.MethodID) {}

type simEvaluator struct{}

func (simEvaluator) Initialize() error { return nil }

func (simEvaluator) Evaluate(_ jvmti.ThreadID, v locals.Variable) (string, error) {
	// The simulated heap holds zero values of the declared types.
	switch v.Signature {
	case "I", "J":
		return "0", nil
	default:
		return "<object " + v.Signature + ">", nil
	}
}

type simLabels struct{}

func (simLabels) Labels() map[string]string {
	return map[string]string{"agent": "lamprey", "mode": "selftest"}
}
