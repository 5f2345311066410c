// Package server hosts the Fiber HTTP gateway in front of the cache engine.
// NewApp installs panic recovery, a request-id middleware and the Host lookup
// against the registry; requests for unregistered hosts get 404 host_unmapped
// and any method other than GET/HEAD gets 405. Paths under "/-/" are reserved
// for diagnostics routes registered by the routes package.
package server
