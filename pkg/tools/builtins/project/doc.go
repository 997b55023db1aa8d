// Package project is the reference tool catalog for cadence: an in-memory
// music project (tempo, tracks, MIDI notes, transport) plus a sample
// library, exposed to the model as function tools.
//
// The catalog is a registry.Functions provider built with registry.Define,
// so every tool's parameter schema is reflected from its input struct.
package project
