// transitctl is the operator command line of TransitLedger.
package main

import (
	"context"
	"os"

	"github.com/turtacn/TransitLedger/internal/bootstrap"
	"github.com/turtacn/TransitLedger/internal/interfaces/cli"
)

// Injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(cli.CommandDependencies{NewScanner: newScanner}); err != nil {
		os.Exit(1)
	}
}

// newScanner opens the infrastructure for a one-shot overdue scan.
func newScanner(ctx context.Context, cctx *cli.CLIContext) (cli.OverdueScanner, func(), error) {
	infra, err := bootstrap.Open(ctx, cctx.Config, cctx.Logger, bootstrap.Options{})
	if err != nil {
		return nil, nil, err
	}
	svc, err := infra.Services()
	if err != nil {
		infra.Close()
		return nil, nil, err
	}
	return svc.Scanner, infra.Close, nil
}
