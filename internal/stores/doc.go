// Package stores holds the Redis scripts behind the emailed-code challenge.
//
// A user's challenge lives in three keys sharing one hash tag: the code, the remaining
// attempts and the lockout marker. Issue and Verify each run as one Lua script so the
// lockout check, the comparison and the attempt decrement cannot interleave with a
// concurrent caller.
//
// This package does not generate codes or decide what an outcome means for the caller.
package stores
