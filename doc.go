// Package probeflow collects timestamped events in probes, keeps shared
// variables in namespaces and lets monitors query both remotely over a
// message broker. Requests travel as JSON envelopes to a per-component topic
// on the RPC exchange and replies come back on a private reply topic matched
// by correlation id.
//
// The broker is picked from Config (RabbitMQ, NATS, Kafka, AWS SNS/SQS or Go
// channels) and wrapped by Watermill. A Service connects lazily to the probes,
// RPC and namespace exchanges and hosts the components of one process; see
// NewService, Service.ServeProbe and Service.ServeNamespace. Monitors reach
// them with Service.ProbeProxy and Service.NamespaceProxy.
//
// # Probes
//
// A Probe keeps one ordered EventSet per event type. Locally it answers
// windowed reads; remotely it answers the PROBE_* operations, each covering
// the events from a given timestamp up to now. Probe proxies fail soft: on a
// transport error or timeout they log, return a neutral value and the error.
//
// # Namespaces
//
// A Namespace stores JSON variables in memory, SQLite, PostgreSQL or Redis.
// Every successful write posts a ChangeEvent to the namespace runtime bus,
// which a Service forwards to the namespace exchange.
//
// # Triggers
//
// A PeriodicTrigger emits interval events on a cron schedule and can be
// paused and resumed. While paused nothing is scheduled.
//
// # Observability
//
// Every component logs through ServiceLogger. When metrics are enabled the
// Service serves Prometheus metrics and a JSON status document, and RPC
// servers record OpenTelemetry spans.
package probeflow
