// Package dtmf implements the dial-pad state machine.
//
// A command table declares named states. Each state holds an ordered list of
// handlers whose patterns are matched against the digits buffered since the
// state was entered:
//
//	states:
//	  initial:
//	    timeout: 10000
//	    handlers:
//	      - pattern: "[1-9]"
//	        action: {handler: quick_timer, transform: minutes_from_digits}
//	        next_state: initial
//
// Patterns may only use the symbols 0-9, * and #, and are anchored at both
// ends. The first matching handler wins. A matched handler resets the
// state's dwell timeout; an expired timeout moves to on_timeout when one is
// declared.
//
// Handlers and transforms are bound by name through a Capabilities table
// supplied to NewEngine. Failures inside handlers are logged and reported to
// the Observer, never returned to the event source.
package dtmf
