/*
Package log provides structured logging for the pipeline using zerolog.

Call Init once at process start with the desired level and output format,
then derive component loggers with WithComponent ("poller", "worker",
"scheduler", ...) and, where useful, WithJobID/WithTaskID/WithReportID for
per-entity context. The package-level Logger is safe for concurrent use.
*/
package log
