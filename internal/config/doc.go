// Package config loads, normalizes, and validates Marquee configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for provider
// credentials such as TMDB_API_KEY. An optional dotenv file can hold the same
// secrets without exporting them in the shell.
//
// Provider keys are deliberately not required at load time: read-only commands
// (runs, modes, check) work without them, and the stage that needs a key fails
// with a configuration error naming the variable to set.
package config
