// Package config provides configuration management for the varflow service.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have defaults suitable for development: every
// backend runs in memory and no Redis is needed.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
