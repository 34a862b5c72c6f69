// Package policy evaluates signal-admission decisions with an embedded OPA
// engine. Pipelines wire it in through the gate plugin; a decision of block
// fails the gating node, flag passes with review metadata attached.
//
// Architecture:
//
// policy.go - Decision model (Action, Decision, Input, Filter, Chain)
// engine.go - OPA engine (Rego compilation, prepared queries, decision cache)
package policy
