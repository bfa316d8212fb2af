// Package ports defines the capability contracts between the knowledge
// service core and every external system it touches: relational store,
// graph store, task broker, language model, antivirus, file analysis and
// HTTP callbacks.
//
// Each port is a small set of operations named by intent. The core never
// depends on a concrete implementation; adapters live in internal/postgres,
// internal/neo4j, internal/memstore, internal/dispatch, internal/llm,
// internal/filemanager, internal/antivirus, internal/chunker and
// internal/webhook. Test doubles are adapters with in-memory state.
package ports
