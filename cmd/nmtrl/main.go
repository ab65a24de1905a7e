package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openeeap/nmtrl/internal/api/cli"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Version is the application version, set at build time
var Version = "dev"

func main() {
	if err := cli.Execute(context.Background(), Version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

//Personal.AI order the ending
