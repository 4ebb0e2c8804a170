package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/memes/primegen"
	"github.com/spf13/cobra"
)

var errInvalidValue = errors.New("value is not a decimal integer")

// Implements the check sub-command.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check value [value]",
		Short: "Report whether each value is prime",
		Long: `Verifies each decimal value locally. Values that fit in 48 bits are checked exactly with trial division,
larger values with Miller-Rabin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: checkMain,
	}
}

// Check sub-command entrypoint.
func checkMain(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, arg := range args {
		value, ok := new(big.Int).SetString(arg, 10)
		if !ok {
			return fmt.Errorf("%w: %q", errInvalidValue, arg)
		}
		verdict, err := primegen.Verify(value)
		if err != nil {
			return fmt.Errorf("failed to verify %s: %w", value, err)
		}
		logger.V(1).Info("Verified value", "value", value.String(), "prime", verdict.Prime, "method", verdict.Method)
		result := "composite"
		if verdict.Prime {
			result = "prime"
		}
		fmt.Fprintf(out, "%s: %s (%s)\n", value, result, verdict.Method)
	}
	return nil
}
