// Package poller implements the Task Poller: it drains generated task
// descriptors, polls the Bridge for their remote status, and multiplexes
// finished/errored tasks onto the processing queue the worker pool reads.
package poller
