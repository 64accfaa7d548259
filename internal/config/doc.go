// Package config defines the settings shared by uwb-ingest and uwb-ctl and
// provides helpers to load, validate and save them as YAML or TOML.
//
// Validate fills every omitted value with its default, so a file holding only
// server_addr is a complete configuration.
package config
