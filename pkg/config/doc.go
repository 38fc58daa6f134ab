// Package config loads the server configuration.
//
// Defaults are overlaid by an optional YAML file named in VISION_CONFIG_FILE,
// then by VISION_* environment variables:
//
//	VISION_PORT=8080
//	VISION_STORE=postgres
//	VISION_POSTGRES_URL=postgres://vision@localhost/vision?sslmode=disable
//	VISION_REDIS_URL=redis://localhost:6379/0
//	VISION_JWT_SECRET=...
//	VISION_AUDIT_SINKS=database,file
//	VISION_AUDIT_DIR=/var/log/vision/audit
//
// LoadConfig validates the result; an invalid configuration is an error.
package config
