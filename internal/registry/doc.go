// Package registry implements the Handler Registry.
//
// The registry maps a scope key ("Service" or "Service#Object") to an ordered list of
// subscribers. Insertion order defines dispatch order. A subscriber that panics is
// recovered and logged; the remaining subscribers of the same pass still run.
package registry
