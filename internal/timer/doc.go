// Package timer runs independent countdown timers.
//
// Every timer owns one goroutine that decrements its remaining time once per
// tick. Listeners are told when a timer is created, when exactly one minute
// remains, and when it completes or is cancelled. Terminated timers are kept
// for a retention window so they can still be listed, then removed by the
// sweep loop started with Manager.Run.
package timer
