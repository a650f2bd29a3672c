package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protomodel/protopool"
	"github.com/jhump/protomodel/protoschema"
	"github.com/jhump/protomodel/protosource"
)

type rootCommand struct {
	gs  *globalState
	cmd *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{gs: gs}
	rootCmd := &cobra.Command{
		Use:               "protomodel",
		Short:             "Inspect protobuf schemas and encode or decode messages without generated code",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	rootCmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	rootCmd.SetArgs(gs.args[1:])
	rootCmd.SetIn(gs.stdin)
	rootCmd.SetOut(gs.stdout)
	rootCmd.SetErr(gs.stderr)

	for _, sc := range []func(*globalState) *cobra.Command{getCmdDescribe, getCmdEncode, getCmdDecode} {
		rootCmd.AddCommand(sc(gs))
	}
	c.cmd = rootCmd
	return c
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&gs.flags.logFormat, "log-format", gs.flags.logFormat, "log output format: text or json")
	flags.StringSliceVarP(&gs.flags.importPaths, "import-path", "I", nil,
		"directory in which to search for .proto files and their imports; may be repeated")
	return flags
}

func (c *rootCommand) persistentPreRunE(_ *cobra.Command, _ []string) error {
	logger := c.gs.logger
	if c.gs.flags.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	switch c.gs.flags.logFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	default:
		return fmt.Errorf("unsupported log format %q", c.gs.flags.logFormat)
	}
	return nil
}

// execute runs the command and returns the process exit code.
func (c *rootCommand) execute() int {
	if err := c.cmd.ExecuteContext(context.Background()); err != nil {
		c.gs.logger.Error(err)
		return 1
	}
	return 0
}

// loadFiles compiles the given source files into a new pool.
func loadFiles(ctx context.Context, gs *globalState, paths []string) (*protopool.Pool, []*protoschema.FileDescriptor, error) {
	pool := protopool.New(protopool.WithLogger(gs.logger))
	loader := &protosource.Loader{
		ImportPaths: gs.flags.importPaths,
		Logger:      gs.logger,
	}
	files, err := loader.Load(ctx, pool, paths...)
	if err != nil {
		return nil, nil, err
	}
	return pool, files, nil
}

func lookupMessage(pool *protopool.Pool, name string) (*protoschema.MessageDescriptor, error) {
	md := pool.LookupMessage(protoreflect.FullName(name))
	if md == nil {
		return nil, fmt.Errorf("message type %q not found", name)
	}
	return md, nil
}
