// Package audit records append-only audit events with a risk score.
//
// A Recorder scores each submission from its category sensitivity,
// operation, outcome, the actor's recent activity and the time of day, then
// persists it through a store.EventStore. Recording never fails the
// caller's operation: when the insert fails the event is written to a local
// fallback log in RFC5424 syslog format, kept in an ordered retry buffer,
// and reported on the operational logger.
//
// # Usage
//
//	rec := audit.NewRecorder(events, cat, audit.Options{Logger: logger})
//	event := rec.Record(ctx, audit.Submission{
//	    ActorID:   "u1",
//	    ActorRole: "dentist",
//	    Category:  "patients",
//	    Operation: model.OpRead,
//	    Outcome:   model.Success(),
//	})
//
// Off-hours and burst weights, and the base weights themselves, are
// configurable through Weights.
package audit
