// Package delivery implements the channels that move a run's payload to its
// remote destination.
//
// Channel is the capability every variant provides: Prepare resolves the
// destination, Plan splits a Payload into delivery units, Send delivers one
// unit. The pipeline wraps every Send (and Prepare) in the retry executor;
// a unit whose retries run out is skipped and the run continues.
//
// Variants:
//   - ObjectStore (minio-go): create-or-find the bucket, then one upload per
//     unit: the archive or each raw file, plus the run log. A missing bucket
//     with creation disabled is a permanent destination fault.
//   - Mail (go-mail): one message from sender to receiver with the archive
//     and log attached, SMTP PLAIN auth over mandatory TLS. The whole message
//     is one unit.
//
// New(cfg, creds) returns the variant selected by delivery.channel.
package delivery
