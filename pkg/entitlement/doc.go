// Package entitlement is the heart of Orunk: one record per purchase or
// subscription, driven through a closed lifecycle by the Service.
//
// Statuses and their legal edges:
//
//	pending_payment -> active | failed | cancelled
//	active          -> expired | cancelled | failed
//	expired, cancelled, failed -> (terminal)
//
// Payment webhooks, admin approvals, and owner dashboard actions all
// funnel through Service; illegal edges are rejected with
// InvalidTransitionError rather than scattered conditionals. Plan
// switches are modeled as a pending sub-entitlement referencing its
// parent, so the switch payment has its own purchase record.
package entitlement
