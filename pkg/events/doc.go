/*
Package events implements the synchronous before/after callback bus that
the component supervisor dispatches at well-known points in the
orchestration (launching components, deciding a verification task,
finishing task generation, ...). Components register handlers at init
time; there is no reflection-based discovery.
*/
package events
