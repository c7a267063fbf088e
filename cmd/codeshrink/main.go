package main

import (
	"errors"
	"fmt"
	"os"

	cserrors "codeshrink/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printFixes(err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps coded errors to process exit codes. Uncoded errors exit 1.
func exitCode(err error) int {
	switch cserrors.CodeOf(err) {
	case cserrors.ConfigInvalid:
		return 3
	case cserrors.InputTooLarge, cserrors.UnsupportedInput:
		return 4
	case cserrors.Timeout:
		return 5
	case cserrors.JobNotFound:
		return 6
	default:
		return 1
	}
}

func printFixes(err error) {
	var ce *cserrors.CompactionError
	if !errors.As(err, &ce) {
		return
	}
	for _, fix := range ce.SuggestedFixes {
		switch {
		case fix.Command != "":
			fmt.Fprintf(os.Stderr, "  hint: %s: %s\n", fix.Description, fix.Command)
		case fix.Key != "":
			fmt.Fprintf(os.Stderr, "  hint: %s: set %s\n", fix.Description, fix.Key)
		default:
			fmt.Fprintf(os.Stderr, "  hint: %s\n", fix.Description)
		}
	}
}
