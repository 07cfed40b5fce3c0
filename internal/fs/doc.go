// Package fs abstracts the file system operations the local blob store needs,
// so tests can inject I/O failures with [FaultyFS].
//
// Production code uses fs.Default (which is [LocalFS]).
package fs
