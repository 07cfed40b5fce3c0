// Package testutil provides testing utilities for pallet.
//
// This package is intended for use in tests and benchmarks only.
// It provides a record fixture, helpers for generating random text and
// brute-force ground truth to verify search results.
//
// # Random Text Generation
//
//	rng := testutil.NewRNG(seed)
//	books := rng.Books(100)  // titles drawn from a Zipfian vocabulary
//
// # Ground Truth
//
//	want := testutil.Matching(books, "sea")
//	recall := testutil.ComputeRecall(want, got)
package testutil
