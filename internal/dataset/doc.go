// Package dataset reads and writes the whitespace-separated point files
// that `kmeans run` consumes and produces, locally or in an S3-compatible
// bucket, and generates random inputs.
//
// Input files hold one "x y" pair per line, although any whitespace is
// accepted between numbers. Output files hold "x y label" lines in the
// order the points were read:
//
//	           0           1   0
//	          10         0.5   1
package dataset
