// Package config provides the configuration of a crawl run: defaults,
// validation, and loading of the YAML configuration file with environment
// variable overrides.
package config
