// Package orchestrator sequences a madcore deployment and runs plugin jobs.
//
// A deployment runs four phases, each framed by a banner:
//
//  1. create stacks
//  2. wait until jenkins is up
//  3. domain registration, skipped once it has succeeded
//  4. run selftests
//
// Stack creation and the Jenkins wait stop the sequence when they fail. A
// failed registration is persisted and the sequence continues, so the exit
// code follows the self tests.
//
// JobService runs a single plugin job: it resolves the parameters, checks
// the admission policies, submits the build through the Jenkins runner and
// stores the parameters of a successful run for the next one.
package orchestrator
