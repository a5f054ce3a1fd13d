// Package config loads courier's YAML configuration.
//
// A config file looks like:
//
//	base_url: https://api.example.com/v1
//	cdn_url: https://cdn.example.com
//	app_version: 2.3.0
//	headers:
//	  Accept-Language: en
//	transport:
//	  timeout: 30s
//	cache:
//	  backend: sqlite
//	  path: ~/.cache/courier/responses.db
//	log:
//	  level: info
//	  writer: [console, file]
//	  file: courier.log
//
// Environment variables override the file: COURIER_BASE_URL,
// COURIER_CDN_URL, COURIER_CACHE_DIR, COURIER_APP_VERSION and
// COURIER_LOG_LEVEL.
package config
