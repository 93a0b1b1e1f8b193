// Package config loads runtime configuration for the notesync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string     base URL of the sync server
//	-d string     data directory
//	-i int        online status check interval (seconds)
//	-debounce     sync debounce delay (duration, e.g. 2s)
//	-retries int  HTTP attempts per request
//	-log-file     rotating log file path
//	-log-level    debug, info, warn or error
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds. Missing keys keep their earlier value:
//
//	{
//	  "server_url": "https://notes.example.com",
//	  "data_dir": "/var/lib/notesync",
//	  "online_check_interval": "3s",
//	  "debounce_delay": "2s",
//	  "retry_attempts": 3,
//	  "retry_base_delay": "1s",
//	  "retry_max_delay": "30s",
//	  "log_file": "notesync.log",
//	  "log_level": "debug"
//	}
package config
