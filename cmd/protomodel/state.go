package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

// globalState holds everything that commands read from or write to the
// outside world, so tests can run them against buffers.
type globalState struct {
	args   []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *logrus.Logger
	flags  globalFlags
}

type globalFlags struct {
	verbose     bool
	logFormat   string
	importPaths []string
}

func newGlobalState(args []string, stdin io.Reader, stdout, stderr io.Writer) *globalState {
	logger := logrus.New()
	logger.SetOutput(stderr)
	return &globalState{
		args:   args,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: logger,
		flags:  globalFlags{logFormat: "text"},
	}
}
