package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/cardsmith/cmd/cardsmith/internal"
	"github.com/tinyland-inc/cardsmith/cmd/cardsmith/internal/gateway"
	"github.com/tinyland-inc/cardsmith/cmd/cardsmith/internal/version"
)

func NewCardsmithCommand() *cobra.Command {
	short := fmt.Sprintf("%s cardsmith - card rendering bot v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "cardsmith",
		Short:   short,
		Example: "cardsmith gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewCardsmithCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
