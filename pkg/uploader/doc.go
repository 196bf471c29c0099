// Package uploader drains the report-files queue and forwards each report,
// with any referenced files zipped into a sibling archive, to the Bridge.
// A transport failure ends the drain loop; the supervisor observes the
// non-zero exit and cancels the job.
package uploader
