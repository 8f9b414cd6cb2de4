package main

import (
	"os"

	"github.com/Ramtinhoss/vibekit/cmd"
	"github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// The agent reported its own failure.
		if !errors.IsKind(err, errors.KindAgentExit) {
			logging.UserError("%v", err)
		}
		os.Exit(errors.GetExitCode(err))
	}
}
