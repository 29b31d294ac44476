// Package fetch is the outbound HTTP client used once the device is online.
//
// A Client talks to one endpoint at a time. Requests go through resty and a
// gobreaker circuit breaker: three consecutive transport errors or 5xx
// responses open the circuit for 30 seconds, during which Open refuses to
// re-establish the client.
package fetch
