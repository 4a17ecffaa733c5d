// Package config loads operator settings and builds the per-command Context.
//
// # Settings
//
// Settings are read from ~/.madcore/madcore.yaml (or --config) over built-in
// defaults, then overridden by MADCORE_AWS_REGION, MADCORE_JENKINS_URL,
// MADCORE_DB_PATH and MADCORE_LOG_LEVEL, and validated with struct tags:
//
//	aws:
//	  region: us-east-1
//	  key_name: madcore
//	user:
//	  domain: example.com
//	  sub_domain: demo
//	  email: ops@example.com
//	plugins:
//	  index_url: https://raw.example.com/madcore-plugins/plugins-index.json
//	jenkins:
//	  insecure_skip_verify: true
//	poll:
//	  stack_interval: 3s
//	  jenkins_timeout: 1h
//	policy:
//	  denied_jobs: ["madcore.plugin.*.delete"]
//
// # Context
//
// Context carries the settings, the SQLite parameter store and telemetry.
// It is created once in the root command and passed explicitly; there is no
// package-level configuration state.
//
// # Schemas
//
// SchemaRegistry validates documents the controller does not own against
// CUE definitions. The plugin index is checked against #Index before it is
// decoded.
package config
