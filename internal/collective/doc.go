// Package collective implements the rooted collectives k-means needs
// (scatter, broadcast, reduce, gather) on top of point-to-point messages.
//
// Every message is a cluster.Envelope tagged with its job, a per-rank
// sequence number and the sending rank. Because every rank executes the
// same collectives in the same order, the n-th collective carries
// sequence number n on all ranks and a receiver can wait for exactly the
// (seq, from) pair it expects. Messages that arrive early wait in the
// receiver's Mailbox.
//
// Two transports are provided. LocalTransport connects goroutines of one
// process and backs NewLocalGroup. HTTPTransport posts envelopes to the
// /collective endpoint of a peer, where a Router hands them to the
// mailbox of the right job.
package collective
