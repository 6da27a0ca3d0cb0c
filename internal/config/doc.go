// Package config loads dbgcore settings.
//
// Settings come in three layers, later layers overriding earlier ones:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← DBGCORE_SESSION_MAX_IN_FLIGHT=8
//	├─────────────────────────────┤
//	│  2. Config File             │  ← dbgcore.toml or dbgcore.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// Files are TOML or YAML, chosen by extension. Environment variables are
// named DBGCORE_<SECTION>_<KEY> with the key in upper snake case.
//
// A TOML file looks like:
//
//	[log]
//	level = "debug"
//	format = "console"
//
//	[session]
//	max_in_flight = 3
//	dialect = "auto"
//	shutdown_timeout = "5s"
//
//	[[session.init]]
//	command = "-gdb-set pagination off"
//	rollback = "-gdb-set pagination on"
//
//	[gdb]
//	path = "gdb"
//	args = ["-q", "-nx"]
package config
