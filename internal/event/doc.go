// Package event fans membership changes out to subscribers. Delivery is
// asynchronous and ordered per subscriber: the protocol driver never
// waits on a consumer, and a slow consumer delays only its own channel.
// Changes carry copies of the member record, never live references.
package event
