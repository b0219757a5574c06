// Package server hosts the Fiber HTTP service and its request middleware chain.
// It bootstraps Fiber, attaches recover and request-ID middlewares, renders
// unmatched routes as structured JSON errors, and mounts the resolve handler on
// GET /. Diagnostics routes live in the routes subpackage and are registered by
// the caller, so keep exports narrow and accept explicit dependencies.
package server
