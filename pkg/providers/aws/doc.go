// Package aws implements the stack and instance APIs on CloudFormation and EC2
// using the AWS SDK for Go v2. SDK errors are mapped to engine controller
// errors: throttling is throttled, server faults and transport failures are
// transient, and a missing stack wraps engine.ErrStackNotFound.
package aws
