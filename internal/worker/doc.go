// Package worker implements a lloyd node: a process that registers with
// the coordinator and runs non-root ranks of distributed k-means jobs.
//
// The coordinator starts a rank with POST /jobs carrying a
// cluster.JobSpec. The node opens a mailbox for the job, answers 202 and
// runs kmeans.Follow in the background; from then on the rank exchanges
// envelopes with the coordinator through POST /collective. POST
// /jobs/abort cancels a running rank. When a rank fails on its own the
// node reports the failure to the coordinator's /jobs/abort so that the
// whole job stops.
//
// GET /info lists the node's jobs and their progress.
package worker
