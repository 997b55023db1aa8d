// Package storage defines the namespaced key/value settings store the
// engine persists its connection settings through, plus helpers shared by
// the adapters (memory, file, postgres).
//
// Keys are addressed by a namespace and a key, for example namespace
// "agent" with keys "apikey" and "model". Values are plain strings.
package storage
