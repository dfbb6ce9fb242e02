// Package config loads and validates AutoGLM Core configuration.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// AUTOGLM_* environment variable overrides. Validate() runs last and
// rejects configurations that would start an insecure or unusable
// service (missing JWT secret, missing password hash, bad port).
//
// Secrets (engine API key, JWT secret, password hash) should be supplied
// via environment variables rather than committed to the YAML file.
package config
