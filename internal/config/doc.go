/*
Package config provides configuration management for the plasma store.

Sources are applied in increasing order of precedence:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│            (PLASMA_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Example

	global:
	  log_level: INFO
	  log_format: json
	store:
	  primary_directory: /dev/shm
	  fallback_directory: /tmp/plasma
	  footprint_limit: 4GB
	  capacity: 4GB
	  eviction_capacity: 4GB
	  fallback_enabled: true
	monitoring:
	  metrics:
	    enabled: true
	    namespace: plasma
	    path: /metrics
	api:
	  enabled: true
	  address: 127.0.0.1:8090

Sizes are parsed with utils.ParseBytes and resolved by StoreParams. Validate
must be called after every source has been applied.
*/
package config
