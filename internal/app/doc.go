// Package app provides the broadcast hub: the single goroutine that owns the
// poll engine and the participant roster.
//
// Every inbound action, connection event, and HTTP request is a command on one
// channel, handled to completion before the next. Handlers mutate state and fan
// out the resulting events, so all connections observe the same event order.
package app
