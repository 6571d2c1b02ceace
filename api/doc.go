// Copyright (c) FlowEngine Authors.
// Licensed under the MIT License.

// Package api holds the request and response types of the FlowEngine HTTP API
// and its Swagger annotations.
//
// # API Overview
//
// FlowEngine exposes a RESTful API for:
//   - Registering workflow definitions as JSON or YAML DSL documents
//   - Executing workflows synchronously or asynchronously
//   - Inspecting and cancelling executions
//   - Execution metrics, health and dead letters
//   - A websocket stream of engine events (/api/v1/events)
//
// # Authentication
//
// API endpoints accept either an API key or a bearer JWT:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <token>
//
// The JWT subject (or the configured actor claim) is the actor the engine
// authorizes executions against.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Prometheus metrics are served separately on :9091/metrics.
//
// # Generating Documentation
//
//	swag init -g cmd/flowengine/main.go -o api --parseDependency --parseInternal
package api
