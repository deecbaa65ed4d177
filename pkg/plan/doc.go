// Package plan defines the sellable plan catalog: pricing, duration,
// request quotas, activation ceilings, and key requirements per plan.
//
// Plans are loaded once at startup from a Source (static map or YAML
// file) and validated into an immutable Catalog that the lifecycle
// engine, quota counters, and activation tracker all read from.
package plan
