// Package reports offers constructors for every report kind the pipeline
// emits (start, finish, patch, attrs, verification, verification finish,
// safe, unsafe, unknown, data) plus a thin Sink that enqueues them onto the
// report-files queue for the uploader.
package reports
