package cstar

// Discretization is the rank grid and time step a Simulation's executable is
// compiled for (SPEC_FULL §3). RankCount is the invariant the Simulation
// checks before Run: the compiled executable must target exactly
// NProcsX*NProcsY ranks.
type Discretization struct {
	NProcsX  int
	NProcsY  int
	TimeStep float64 // seconds
}

// RankCount returns the total number of MPI ranks this discretization needs.
func (d Discretization) RankCount() int {
	return d.NProcsX * d.NProcsY
}
