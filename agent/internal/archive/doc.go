// Package archive packages a scan result into a single zip artifact.
//
// Directory structure is flattened: every file is stored under its basename.
// When two scanned files share a basename the later one in scan order wins;
// the loser is reported in Artifact.Replaced and logged, never renamed.
//
// Archive failures are not retried. The pipeline treats them as fatal for the
// delivery stage and leaves the partial output to the cleanup stage.
package archive
