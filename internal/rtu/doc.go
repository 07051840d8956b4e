// Package rtu composes one Real-Time Update client: a Connection Manager, its
// Handler Registry, the Dispatcher and the Request Façade.
//
// Instances are independent. Each owns its own connection and registry, so a
// process may run several side by side.
package rtu
