// Package internal groups helpers private to otpgate.
//
//   - rate: fixed-window Redis counters for login and refresh throttling
//   - stores: Lua-scripted challenge state in Redis
package internal
