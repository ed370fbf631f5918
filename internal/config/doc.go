// Package config loads and saves the filecloud-server configuration file.
//
// The file is YAML by default; a path ending in .toml is read and written
// as TOML. Values missing from the file keep their defaults, and command
// line flags override whatever the file sets.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/filecloud/config.yaml or $HOME/.config/filecloud/config.yaml
//   - macOS: $HOME/.config/filecloud/config.yaml
//   - Windows: %LOCALAPPDATA%\filecloud\config.yaml
//
// # Example
//
//	version: 1
//	server:
//	  host: ""
//	  port: 8000
//	  buffer_size: 1024
//	  idle_timeout: 10m
//	store:
//	  driver: sqlite
//	  path: /var/lib/filecloud/filecloud.db
//	  users_table: users
//	  files_table: files
//	metrics:
//	  addr: 127.0.0.1:9100
//	discovery:
//	  advertise: true
//
// Writes go through a temporary file and a rename so a crash never leaves
// a truncated config behind.
package config
