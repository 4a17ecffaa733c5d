// Package policy decides whether a plugin job may run.
//
// Policies are Rego modules evaluated with the Open Policy Agent. Each
// module defines a "deny" set; every entry is a violation, given either as
// a message string or as an object with "message" and "severity" fields.
// Violations with severity "error" block the run, anything else is
// reported as a warning.
//
// # Input
//
// The input document is a JobInput:
//
//	{
//	    "plugin": "spark",
//	    "job": "delete",
//	    "job_type": "jobs",
//	    "job_name": "madcore.plugin.spark.delete",
//	    "private": false,
//	    "parameters": {"REGION": "us-east-1"},
//	    "config": {"denied_jobs": ["madcore.plugin.*.delete"], "allow_private": false}
//	}
//
// # Built-in Policies
//
//   - private-jobs: blocks jobs the plugin marks private unless
//     config.allow_private is set
//   - denied-jobs: blocks jobs whose server name matches a glob in
//     config.denied_jobs
//   - empty-parameters: warns about parameters sent without a value
//
// Operator policies are loaded from files or directories with
// Engine.LoadPolicies. A .rego file is named after the file; a .json file
// holds a serialized Policy.
//
// # Example
//
//	package madcore.operator
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.job == "delete"
//	    input.plugin == "registry"
//	    msg := "the registry plugin cannot be deleted"
//	}
package policy
