// Package stacks follows and creates cloud orchestration stacks.
//
// Tracker streams a stack's events until the stack reaches a terminal status
// for an operation. Provisioner creates the deployment stacks from local
// templates. CoreParams exposes the outputs of the core, network and s3
// stacks as MADCORE_* values for parameter templates.
package stacks
