// Package config defines the switchboard configuration and loads it from a
// YAML file with SWITCHBOARD_* environment overrides.
//
//	server:
//	  listen: ":8080"
//	  maxConnectionTime: 10m
//	protocols:
//	  order: [mqtt, mux, h2c, http, text]
//	middleware:
//	  auth:
//	    type: jwt_auth
//	    secret: change-me
//	routes:
//	  http:
//	    middleware: [recover, logging]
//	    routes:
//	      - path: /api
//	        middleware: [auth]
//	      - path: /api/health
//	        override: [metrics, "..."]
//	        response: {status: 200, body: ok}
//
// Environment variables override scalar settings, for example
// SWITCHBOARD_SERVER_LISTEN or SWITCHBOARD_POOL_MAX_IDLE_PER_HOST.
// The "..." entry of an override list splices in the inherited chain.
package config
