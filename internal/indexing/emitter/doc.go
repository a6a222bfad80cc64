// Package emitter is the event surface of the indexing engine: ready,
// indexed, state-update, pause and error notifications delivered to
// subscribed observers.
package emitter
