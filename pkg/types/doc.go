/*
Package types defines the data shapes flowing through the objectwatch
pipeline.

# Overview

Events move through four shapes, each produced once, transformed once, and
released:

	┌──────────────────┐   ┌─────────────────┐   ┌──────────────────┐
	│ RawNotification  │ → │ NormalizedEvent │ → │ OutboundMessage  │
	│ (backend wire)   │   │ (location+meta) │   │ (sink envelope)  │
	└──────────────────┘   └─────────────────┘   └──────────────────┘

RawNotification is the provider-specific batch a backend delivers: one or
more RecordEntry items naming a bucket and an object key, plus auxiliary
fields the pipeline never interprets. A RawNotification may instead carry a
transient transport error in Err, which signals the consumer without
terminating the stream.

NormalizedEvent pairs an ObjectLocation (a fully qualified, immutable
reference to the discovered object) with the Metadata extracted from its
key. OutboundMessage is the envelope handed to the publishing sink: subject,
type tag, and the merged data mapping.

No shape in this package holds cross-event state; the pipeline is a
one-directional stream.
*/
package types
