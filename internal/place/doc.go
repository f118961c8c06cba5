// Package place defines the core entities of the PLACE procurement pipeline:
// listings discovered on the public marketplace, the document archives attached
// to them, the text documents extracted from those archives, and the entity
// labels produced for each document by an external recognition run.
//
// All durable state for these entities lives in the store; the other pipeline
// packages only hold transient in-memory views while a single operation runs.
package place
