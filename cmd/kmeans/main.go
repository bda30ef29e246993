// Command kmeans clusters 2-D points read from a file with one of the
// serial, shared-memory, distributed or hybrid strategies, and generates
// random input files.
//
// Example usage:
//
//	kmeans generate -n 100000 -m 5000 -f inputs/data.txt
//	kmeans run -c 8 -f data.txt omp
//	kmeans run -c 8 -f data.txt --ranks 4 mpi
//	kmeans run -c 8 -f data.txt --coordinator http://localhost:8080 hybrid
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
