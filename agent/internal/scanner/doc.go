// Package scanner walks a directory tree and selects the files a run should
// collect: regular files whose lowercase extension is in the allowed set and
// whose size is strictly below the configured threshold.
//
// Scanner.Scan performs exactly one attempt. Any traversal error aborts the
// attempt and its partial result is discarded; the pipeline retries by
// calling Scan again through the retry executor.
package scanner
