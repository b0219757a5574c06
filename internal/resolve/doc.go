// Package resolve hosts the resolution engine that turns a negotiated request
// into a cached, converted, or freshly fetched document.
//
// The engine tries, in order: an exact cache hit; when the server prefers
// conversion, converting an already cached machine-readable format; and
// finally a single origin fetch, converting the fetched bytes when the origin
// answered in a different format. Everything that is fetched or converted is
// persisted through cache.Store, which is the only writer of the cache tree.
//
// Concurrent requests for the same (uri, target, upstream accept) key share one
// in-flight resolution. The shared work runs detached from the caller's
// context: a caller that goes away stops waiting, but a fetch or write that has
// already started still completes and populates the cache. The HTTP layer
// passes Fiber's request context, which is not cancelled when the client
// disconnects, so in the server a started resolution is always waited for; the
// early return only applies to callers that bring their own deadline.
//
// A panic inside the shared work is recovered and reported to every waiter as
// an internal error instead of crashing the process.
package resolve
