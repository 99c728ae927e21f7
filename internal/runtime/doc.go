/*
Package runtime hosts probeflow components on a message broker.

# Architecture Overview

A Service owns one broker.Endpoint per exchange named in the configuration
and wires the components built by the sub-packages onto them:

  - probes answer PROBE_* requests on the RPC exchange and ingest events
    from the local probe runtime bus or, for external probes, from their
    routing key on the probes exchange
  - namespaces answer NAMESPACE_* requests on the RPC exchange and publish
    change events to the namespace exchange
  - proxies send requests to remote probes and namespaces through private
    reply topics
  - triggers post interval events to the monitor runtime bus

# Package Structure

  - broker: endpoints, producers and consumers over Watermill
  - rpc: request/response envelope, dispatcher, server and client
  - event: events and the ordered event set
  - probe, namespace, trigger: the components themselves
  - registry: per-role runtime buses and environment
  - config, errors, ids, jsoncodec, logging, metadata, observability:
    shared infrastructure

# Lifecycle

Create components and register them with ServeProbe or ServeNamespace, then
call Start. Start runs every RPC server, including ones registered later,
and blocks until its context is cancelled. When metrics are enabled the
metrics port also serves /metrics and /api/status.
*/
package runtime
