/*
Package storage provides BoltDB-backed persistence for the pipeline's two
durable pieces of state: solution triples and admission reservations.
Everything else the pipeline touches (jobs, tasks, reports) is transient
and lives with the Bridge, not here.
*/
package storage
