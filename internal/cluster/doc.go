// Package cluster defines the wire protocol spoken between the lloyd
// coordinator, its nodes and clients, together with the HTTP/JSON helpers
// every component uses to talk to the others.
//
// # Overview
//
// A lloyd cluster is a hub-and-spoke topology. The coordinator is rank 0 of
// every distributed clustering job; registered nodes become ranks 1..W-1:
//
//	              ┌──────────────────┐
//	              │   Coordinator    │
//	              │     (rank 0)     │
//	              │ - Registry       │
//	              │ - Health monitor │
//	              │ - Job runner     │
//	              └────────┬─────────┘
//	                       │
//	      ┌────────────────┼────────────────┐
//	      │                │                │
//	┌─────▼─────┐    ┌─────▼─────┐    ┌─────▼─────┐
//	│  Node 1   │    │  Node 2   │    │  Node 3   │
//	│ (rank 1)  │    │ (rank 2)  │    │ (rank 3)  │
//	└───────────┘    └───────────┘    └───────────┘
//
// # Messages
//
// RegisterRequest (POST /register): a node announces its ID and public
// address to the coordinator.
//
// JobRequest (POST /jobs on the coordinator): a client submits points and
// clustering parameters. The coordinator answers with a JobResponse once
// the job has finished.
//
// JobSpec (POST /jobs on a node): the coordinator tells a node which rank
// it runs and where every peer lives. AbortRequest (POST /jobs/abort)
// tears a running job down.
//
// Envelope (POST /collective on any participant): one point-to-point
// message of a scatter, broadcast, reduce or gather. Rank 0 only ever talks
// to ranks 1..W-1 and they only ever answer rank 0, so collectives are
// rooted stars rather than trees.
//
// # Encoding
//
// All bodies are JSON. Go's encoding/json writes float64 values in their
// shortest round-trip form, so coordinates and partial sums cross the wire
// bit-exactly. Bodies larger than CompressThreshold are zstd-compressed and
// tagged with Content-Encoding: zstd; DecodeJSON and the client helpers
// undo this transparently.
//
// # Failure Handling
//
// PostJSON and GetJSON never retry. Non-2xx responses become *StatusError.
// Inside a job any transport error is fatal for the whole job.
package cluster
