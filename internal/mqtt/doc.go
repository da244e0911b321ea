// Package mqtt publishes a retained summary of each user's planner to
// an MQTT broker after every document save, so dashboards and home
// automation can show what is due next.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a birth message ("online") to the
// availability topic; a will message moves that topic to "offline" on
// unexpected disconnects.
package mqtt
