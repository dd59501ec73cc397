// Package bddmp replicates transient combat events between multiplayer
// peers. Damage, bullet impact, explosion and tracer events are broadcast as
// they happen locally and applied on every other peer once that peer's
// simulation clock reaches the event timestamp.
//
// A host constructs one Synchronizer with New, wires it to a message
// transport and a hit source with Attach, and calls Tick once per simulation
// frame.
package bddmp
