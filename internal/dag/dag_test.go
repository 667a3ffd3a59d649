package dag

import (
	"reflect"
	"testing"
)

func buildDiamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, s := range []string{"spinup", "branch-a", "branch-b", "merge"} {
		if err := g.AddStep(s); err != nil {
			t.Fatal(err)
		}
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(g.AddDependency("branch-a", "spinup"))
	must(g.AddDependency("branch-b", "spinup"))
	must(g.AddDependency("merge", "branch-a"))
	must(g.AddDependency("merge", "branch-b"))
	return g
}

func TestDuplicateStepNameRejected(t *testing.T) {
	g := New()
	if err := g.AddStep("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddStep("a"); err == nil {
		t.Fatalf("expected ValidationError for duplicate step")
	}
}

func TestDependencyOnUnknownStepRejected(t *testing.T) {
	g := New()
	if err := g.AddStep("a"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddDependency("a", "ghost"); err == nil {
		t.Fatalf("expected ValidationError for unknown dependency")
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New()
	for _, s := range []string{"a", "b"} {
		if err := g.AddStep(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddDependency("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddDependency("b", "a"); err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err == nil {
		t.Fatalf("expected cycle validation error")
	}
}

func TestValidateAcceptsDiamond(t *testing.T) {
	g := buildDiamond(t)
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReadyFrontierInitial(t *testing.T) {
	g := buildDiamond(t)
	ready := g.ReadyFrontier(func(string) bool { return false })
	if !reflect.DeepEqual(ready, []string{"spinup"}) {
		t.Fatalf("ready = %v, want [spinup]", ready)
	}
}

func TestReadyFrontierAfterSpinup(t *testing.T) {
	g := buildDiamond(t)
	done := map[string]bool{"spinup": true}
	ready := g.ReadyFrontier(func(n string) bool { return done[n] })
	if !reflect.DeepEqual(ready, []string{"branch-a", "branch-b"}) {
		t.Fatalf("ready = %v, want [branch-a branch-b]", ready)
	}
}

func TestReadyFrontierRequiresAllDeps(t *testing.T) {
	g := buildDiamond(t)
	done := map[string]bool{"spinup": true, "branch-a": true}
	ready := g.ReadyFrontier(func(n string) bool { return done[n] })
	if !reflect.DeepEqual(ready, []string{"branch-b"}) {
		t.Fatalf("ready = %v, want [branch-b] (merge still waits on branch-b)", ready)
	}
}

func TestPropagateSkipMarksTransitiveDependents(t *testing.T) {
	g := buildDiamond(t)
	skipped := g.PropagateSkip("branch-a", func(string) bool { return false })
	if !reflect.DeepEqual(skipped, []string{"merge"}) {
		t.Fatalf("skipped = %v, want [merge]", skipped)
	}
}

func TestPropagateSkipExcludesAlreadyTerminal(t *testing.T) {
	g := buildDiamond(t)
	terminal := map[string]bool{"merge": true}
	skipped := g.PropagateSkip("branch-a", func(n string) bool { return terminal[n] })
	if len(skipped) != 0 {
		t.Fatalf("skipped = %v, want none (merge already terminal)", skipped)
	}
}

func TestDependenciesAndDependents(t *testing.T) {
	g := buildDiamond(t)
	if deps := g.Dependencies("merge"); !reflect.DeepEqual(deps, []string{"branch-a", "branch-b"}) {
		t.Fatalf("Dependencies(merge) = %v", deps)
	}
	if dependents := g.Dependents("spinup"); !reflect.DeepEqual(dependents, []string{"branch-a", "branch-b"}) {
		t.Fatalf("Dependents(spinup) = %v", dependents)
	}
}

func TestStepsPreservesDeclarationOrder(t *testing.T) {
	g := buildDiamond(t)
	want := []string{"spinup", "branch-a", "branch-b", "merge"}
	if got := g.Steps(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Steps() = %v, want %v", got, want)
	}
}
