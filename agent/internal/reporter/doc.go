// Package reporter ships the final RunReport of each run to docship-server.
//
// The report is POSTed as gzip-compressed JSON to report.endpoint
// (POST /api/v1/reports). Authentication follows report.auth: an API key in
// a configurable header, a bearer token, or none. Uploads run under the
// report retry policy; 4xx responses other than 408 and 429 are permanent
// and not retried. A failed upload is logged by the pipeline and never
// changes the run's disposition.
package reporter
