// Package domain defines the cooperative session aggregates: rooms,
// participants, quest sessions, commit-reveal rounds and battle state.
//
// Domain types are pure data plus invariant-preserving mutations. They never
// touch storage or transport; orchestration lives in the service package,
// which is also responsible for serializing writes per room.
package domain
