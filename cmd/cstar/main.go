package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/c-star-org/cstar"
	"github.com/c-star-org/cstar/internal/cstarutil"
)

// exit codes per SPEC_FULL §6.
const (
	exitSuccess        = 0
	exitRuntimeFailure = 1
	exitValidationFail = 2
	exitConfiguration  = 3
)

func usage() {
	fmt.Fprintf(os.Stderr, "cstar <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\tblueprint check <path>   validate a blueprint, no side effects\n")
	fmt.Fprintf(os.Stderr, "\tblueprint run <path>     run a single-simulation blueprint\n")
	fmt.Fprintf(os.Stderr, "\tworkplan check <path>    validate a workplan, no side effects\n")
	fmt.Fprintf(os.Stderr, "\tworkplan run <path>      run (or resume) a workplan\n")
	fmt.Fprintf(os.Stderr, "\tenv show                 print effective configuration\n")
}

func funcmain() int {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return exitValidationFail
	}
	verb, args := args[0], args[1:]

	verbs := map[string]func(ctx context.Context, args []string) error{
		"blueprint": cmdBlueprint,
		"workplan":  cmdWorkplan,
		"env":       cmdEnv,
	}
	fn, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		usage()
		return exitValidationFail
	}

	ctx, cancel := cstarutil.InterruptibleContext()
	defer cancel()

	err := fn(ctx, args)
	if atErr := cstarutil.RunAtExit(); err == nil {
		err = atErr
	}
	if err == nil {
		return exitSuccess
	}

	log.Printf("cstar %s: %v", verb, err)
	return exitCodeFor(err)
}

// exitCodeFor maps an error's cstar.Kind to one of the four global exit
// codes SPEC_FULL §6 documents; an error with no Kind (a plain Go error
// from a collaborator outside this module's error taxonomy) is treated as
// a runtime failure.
func exitCodeFor(err error) int {
	var cerr *cstar.Error
	if !errors.As(err, &cerr) {
		return exitRuntimeFailure
	}
	switch cerr.Kind {
	case cstar.KindValidation, cstar.KindRunIDConflict:
		return exitValidationFail
	case cstar.KindConfiguration:
		return exitConfiguration
	default:
		return exitRuntimeFailure
	}
}

func main() {
	os.Exit(funcmain())
}
