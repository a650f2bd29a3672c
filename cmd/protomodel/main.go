// Command protomodel loads protobuf schemas from .proto sources and uses
// them to describe, encode and decode messages without generated code.
package main

import (
	"os"
)

func main() {
	gs := newGlobalState(os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(newRootCommand(gs).execute())
}
