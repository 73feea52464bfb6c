// Package config loads, normalizes, and validates nfewatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NFEWATCH_STORE_URL and NFEWATCH_STORE_API_KEY. The Config type centralizes
// every knob the daemon and CLI need so the artifact directories, record store
// endpoint and scheduler timings are discovered in one pass.
package config
