// Package config loads reqflow configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML/JSON/TOML file, and REQFLOW_* environment variables
// (REQFLOW_ORIGIN, REQFLOW_TIMEOUT, REQFLOW_RETRY_MAX_ATTEMPTS, ...). String
// values then go through strict ${VAR} expansion, and credential fields may
// hold secret references of the form secretref:<provider>:<ref>.
package config
