// Package ingest defines the core types and capabilities shared by the
// source adapters, the location normalizer, the fact builder, storage, and
// the weekly orchestrator.
package ingest
