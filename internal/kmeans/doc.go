// Package kmeans implements Lloyd's algorithm over 2-D points with four
// interchangeable execution strategies.
//
// # Algorithm
//
// Every strategy runs the same lifecycle:
//
//  1. Init: k centroids are drawn uniformly at random from the points with
//     an explicit *rand.Rand (or supplied directly with
//     WithInitialCentroids).
//  2. Iterate a fixed number of times: assign each point to its nearest
//     centroid (first minimum wins), accumulate per-cluster (sum_x, sum_y,
//     count) triples, combine them, and replace the centroid set.
//  3. Finalize: collect every label in input order and return the last
//     centroid set.
//
// There is no convergence check. A cluster that receives no points keeps
// its previous centroid until it captures points again.
//
// # Strategies
//
//	Serial       one goroutine over [0, N)
//	Shared       a team.Team of T goroutines, two parallel regions per iteration
//	Distributed  W ranks connected by a Comm, serial work inside each rank
//	Hybrid       W ranks connected by a Comm, a team inside each rank
//
// Strategies differ only in where assignment and aggregation run. Given the
// same initial centroids they produce the same labels, and on data whose
// partial sums are exactly representable they produce bit-identical
// centroids.
//
// # Distributed execution
//
// Distributed and Hybrid runs are SPMD: rank 0 calls Cluster with the full
// dataset and every other rank calls Follow with the same k and iteration
// count. Rank 0 partitions and scatters the points, then each iteration is
// broadcast, local work, reduce. See Comm for the collective contract.
//
// The package does not log and does not time itself.
package kmeans
