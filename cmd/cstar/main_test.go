package main

import (
	"errors"
	"testing"

	"github.com/c-star-org/cstar"
)

func TestExitCodeForMapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind cstar.Kind
		want int
	}{
		{cstar.KindValidation, exitValidationFail},
		{cstar.KindRunIDConflict, exitValidationFail},
		{cstar.KindConfiguration, exitConfiguration},
		{cstar.KindNetwork, exitRuntimeFailure},
		{cstar.KindBuild, exitRuntimeFailure},
		{cstar.KindIntegrity, exitRuntimeFailure},
		{cstar.KindScheduler, exitRuntimeFailure},
		{cstar.KindDataset, exitRuntimeFailure},
	}
	for _, c := range cases {
		err := cstar.New(c.kind, "boom")
		if got := exitCodeFor(err); got != c.want {
			t.Errorf("exitCodeFor(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestExitCodeForTreatsPlainErrorAsRuntimeFailure(t *testing.T) {
	if got := exitCodeFor(errors.New("boom")); got != exitRuntimeFailure {
		t.Errorf("exitCodeFor(plain error) = %d, want %d", got, exitRuntimeFailure)
	}
}

func TestExitCodeForWrappedErrorUsesOuterKind(t *testing.T) {
	inner := cstar.New(cstar.KindValidation, "bad blueprint")
	wrapped := cstar.Wrap(cstar.KindIntegrity, inner, "loading")
	// Wrap sets its own Kind rather than inheriting the cause's, so the
	// outer Kind (KindIntegrity) is what governs the exit code here.
	if got := exitCodeFor(wrapped); got != exitRuntimeFailure {
		t.Errorf("exitCodeFor(wrapped) = %d, want %d", got, exitRuntimeFailure)
	}
}
