package app

import (
	"os"
	"strconv"
)

const testModeEnv = "INVENTRA_TEST_MODE"

// Command is what a binary runs for the current process.
type Command string

const (
	// CommandSkip means test mode is on and nothing should dial out.
	CommandSkip  Command = "skip"
	CommandServe Command = "serve"
	CommandJobs  Command = "jobs"
	// CommandUnknown is returned for an unrecognised subcommand.
	CommandUnknown Command = "unknown"
)

// InTestMode reports whether INVENTRA_TEST_MODE holds a true value.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}

// ResolveCommand maps process arguments (without the program name) to a command and
// the arguments left for it. Test mode wins over anything on the command line.
func ResolveCommand(args []string) (Command, []string) {
	if InTestMode() {
		return CommandSkip, nil
	}
	if len(args) == 0 {
		return CommandServe, nil
	}
	switch Command(args[0]) {
	case CommandServe:
		return CommandServe, args[1:]
	case CommandJobs:
		return CommandJobs, args[1:]
	default:
		return CommandUnknown, args
	}
}
