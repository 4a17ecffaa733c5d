// Package engine defines the core types and interfaces of the madcore controller.
//
// # Overview
//
// The controller provisions cloud stacks and then drives a build-automation
// server to run plugin jobs. A full provisioning run goes through four phases:
//
//  1. Stacks - create the infrastructure stacks and stream their events
//  2. Liveness - wait until the automation server answers
//  3. Registration - run the domain registration job once
//  4. Self-test - run the self-test suite
//
// # Core Domain Types
//
//   - JobParameter: one typed job input, merged from several layers
//   - PluginManifest / JobDefinition: the static plugin index
//   - Stack / StackEvent: the cloud orchestration view of a stack
//   - JobInfo / BuildState: the automation server view of a job
//   - RunRecord: persisted history of controller runs
//
// # Remote Services
//
// StackAPI, StackProvisioner, InstanceAPI and AutomationServer abstract the
// remote services. Every call may fail transiently; callers classify failures
// with the error helpers:
//
//	if IsRetryable(err) {
//	    // retry the whole cycle
//	}
//
// # Error Classification
//
//   - Transient: network errors, 5xx responses, server restarts
//   - Throttled: rate limiting by the cloud API
//   - Permanent: lookup faults, validation failures, denied requests
//
// Lookup faults additionally wrap one of the sentinel errors (ErrOutputNotFound,
// ErrStackNotFound, ErrKeyNotFound, ...) so callers can fall back to empty values.
//
// # Time
//
// Polling loops never call time.Sleep directly. They receive a Sleeper so tests
// can run them without waiting.
package engine
