// Package jenkins drives deployment jobs on a Jenkins server.
//
// Client speaks the Jenkins JSON API: job info, build submission with the
// CSRF crumb, and console text. Runner builds on it to run one job to
// completion: it attaches to a build that is already running or queues a
// new one, waits for the build to leave the queue, streams console lines
// that were not printed before, and reports the result of the last build.
// Client faults restart the cycle on a fresh client up to a retry limit; a
// build that finishes without SUCCESS is reported as a failure and is not
// retried.
package jenkins
