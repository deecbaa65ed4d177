// Package binlookup proxies card BIN range lookups to an upstream
// provider, caching responses and throttling anonymous callers. The
// throttle is advisory: exceeding it flips a captcha requirement
// instead of rejecting, so a busy NAT does not lock out a whole office.
package binlookup
