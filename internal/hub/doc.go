// Package hub is the Home Assistant client used by dial-pad commands to
// switch lights and set the thermostat.
package hub
