// Package billing is the HTTP surface of the billing core: checkout,
// provider webhooks, the buyer's purchase dashboard, admin approvals,
// remote license calls, and the BIN lookup proxy.
//
// Authentication is the host's job. The host's middleware resolves its
// session or token into an Actor and puts it on the request context;
// routes that need one reject requests without it. Webhooks and the
// license endpoints authenticate by signature or key possession
// instead.
package billing
