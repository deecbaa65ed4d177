// Package quota meters API usage in fixed calendar windows. Counters
// are bucketed by period key, so a new hour, day, or month starts at
// zero implicitly and nothing ever resets old buckets; they just age
// out of their TTL.
package quota
