// Package rate provides Redis-backed fixed-window counters for login and refresh
// throttling.
//
// # Window semantics
//
// INCR and a first-hit PEXPIRE run in one script. Key layout under the configured
// prefix:
//   - <prefix>:login:id:<identifier>
//   - <prefix>:login:ip:<ip>
//   - <prefix>:refresh:<userID>
//
// # What this package must NOT do
//
//   - Decide which failures count. Callers increment only on credential failures.
//   - Be imported outside this module.
package rate
