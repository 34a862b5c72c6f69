// Package graph builds and analyses pipeline dependency graphs.
//
// Architecture:
//
// build.go    - Builder: declarative node list → resolved, validated graph
// validate.go - structural checks (self-loops, cycles, duplicate edges)
// analyze.go  - cycle detection, deterministic topological sort, execution levels
// types.go    - graph/node/edge types and the derived dependency index
//
// Building is synchronous and pure: the same configuration plus registry
// state always yields a structurally equal graph, and a rejected
// configuration never produces a partial one.
package graph
