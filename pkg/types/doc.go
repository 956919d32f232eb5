/*
Package types provides the identifiers and value types shared by every layer of
the plasma store.

# Architecture Overview

The store is built bottom-up from four engine components, with a façade on top:

	┌─────────────────────────────────────────────┐
	│          HTTP API / cmd/plasma-store        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             Lifecycle Manager               │
	│           (internal/lifecycle)              │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               Object Store                  │
	│             (internal/store)                │
	└─────────────────────────────────────────────┘
	          │              │             │
	┌─────────┴───┐ ┌────────┴───┐ ┌───────┴─────┐
	│  Allocator  │ │ LRU Cache  │ │    Stats    │
	└─────────────┘ └────────────┘ └─────────────┘

# Identifiers

ObjectID is a 28 byte opaque key. It is comparable, so it is used directly as
a map key:

	id := types.NewObjectID()
	parsed, err := types.ObjectIDFromHex(id.Hex())

# Provenance

ObjectSource records how an object arrived. It is fixed at creation and drives
the per-source statistics:

	CreatedByWorker, RestoredFromStorage, ReceivedFromRemoteNode,
	ErrorStored, CreatedByFallbackAllocation

# Records

ObjectInfo is what a producer supplies at creation. ObjectRef is what a
consumer receives when it acquires a reference. ObjectView is a detached copy
of the full record used by reporting surfaces.
*/
package types
