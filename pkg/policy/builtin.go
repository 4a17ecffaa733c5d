package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		privateJobsPolicy(),
		deniedJobsPolicy(),
		emptyParametersPolicy(),
	}
}

// privateJobsPolicy blocks jobs a plugin keeps for internal use.
func privateJobsPolicy() Policy {
	return Policy{
		Name:        "private-jobs",
		Description: "Blocks jobs marked private unless config.allow_private is set",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package madcore.policies.private

import rego.v1

deny contains violation if {
	input.private
	not input.config.allow_private
	violation := {
		"message": sprintf("job %s of plugin %s is private", [input.job, input.plugin]),
		"severity": "error",
	}
}
`,
	}
}

// deniedJobsPolicy blocks jobs matching an operator deny pattern.
func deniedJobsPolicy() Policy {
	return Policy{
		Name:        "denied-jobs",
		Description: "Blocks jobs whose server name matches a config.denied_jobs pattern",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package madcore.policies.denied

import rego.v1

deny contains violation if {
	some pattern in input.config.denied_jobs
	glob.match(pattern, ["."], input.job_name)
	violation := {
		"message": sprintf("job %s matches denied pattern %q", [input.job_name, pattern]),
		"severity": "error",
	}
}
`,
	}
}

// emptyParametersPolicy reports parameters that are sent without a value.
func emptyParametersPolicy() Policy {
	return Policy{
		Name:        "empty-parameters",
		Description: "Warns about parameters sent to the automation server without a value",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package madcore.policies.parameters

import rego.v1

deny contains violation if {
	some name, value in input.parameters
	value == ""
	violation := {
		"message": sprintf("parameter %s has no value", [name]),
		"severity": "warning",
	}
}
`,
	}
}
