// Package coordinator implements the control plane of a lloyd cluster:
// node membership, health monitoring and the execution of rank 0 of every
// distributed clustering job.
//
// # Overview
//
// Clients submit a cluster.JobRequest to POST /jobs. Serial and shared
// jobs run on the coordinator alone. Distributed and hybrid jobs are laid
// out over the coordinator and every eligible node:
//
//	┌─────────────────────────────────────┐
//	│            COORDINATOR              │
//	├─────────────────────────────────────┤
//	│  Registry       node ID → address   │
//	│                 rank plan per job   │
//	│  HealthMonitor  periodic /health    │
//	│                 unhealthy → cancel  │
//	│  Jobs           running + history   │
//	│  Router         /collective inbox   │
//	└─────────────────────────────────────┘
//
// # Job Lifecycle
//
//  1. Validate the request (kmeans.CheckArgs); nothing is sent to a node
//     for a request that cannot succeed.
//  2. Plan: rank 0 is the coordinator, ranks 1..W-1 are the registered
//     nodes not marked unhealthy, in registration order.
//  3. Start: POST cluster.JobSpec to every node's /jobs, concurrently.
//  4. Run: kmeans.Cluster on rank 0 over a collective.Comm whose transport
//     posts envelopes to the peers' /collective endpoints.
//  5. Reply with the centroids and labels, or with 502 after sending
//     POST /jobs/abort to every node.
//
// A job fails as a whole. The job context is cancelled when a node is
// marked unhealthy, when a node reports its own failure through
// POST /jobs/abort, when the client goes away, or when JobTimeout elapses.
// There is no retry.
//
// # Thread Safety
//
// Registry, HealthMonitor, Jobs and Server are safe for concurrent use.
// Many jobs may run at once; each has its own mailbox and sequence space.
package coordinator
