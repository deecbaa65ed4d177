package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orunkhq/orunk/pkg/binlookup"
	"github.com/orunkhq/orunk/pkg/download"
	"github.com/orunkhq/orunk/pkg/email"
	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/license"
	"github.com/orunkhq/orunk/pkg/payment"
	"github.com/orunkhq/orunk/pkg/plan"
	"github.com/orunkhq/orunk/pkg/quota"
	"github.com/orunkhq/orunk/pkg/requestid"
)

// Deps are the services the module exposes over HTTP. Entitlements,
// Catalog, Gateways, and Issuer are required; the rest mount their
// routes only when provided.
type Deps struct {
	Entitlements entitlement.Service
	Catalog      *plan.Catalog
	Gateways     *payment.Registry
	Issuer       *license.Issuer

	Tracker     *license.Tracker
	Counter     *quota.Counter
	BinClient   *binlookup.Client
	BinThrottle *binlookup.Throttle
	Downloads   *download.Service
	Notifier    *email.BillingNotifier

	// CaptchaVerify checks the proof a throttled caller attached; nil
	// means throttled callers are always asked for a captcha.
	CaptchaVerify func(r *http.Request) bool

	Logger *slog.Logger
}

// Module is the mountable billing HTTP surface.
type Module struct {
	deps Deps
	log  *slog.Logger
}

// New wires the module. Missing required deps panic at startup.
func New(deps Deps) *Module {
	if deps.Entitlements == nil {
		panic("billing: entitlement service is required")
	}
	if deps.Catalog == nil {
		panic("billing: plan catalog is required")
	}
	if deps.Gateways == nil {
		panic("billing: gateway registry is required")
	}
	if deps.Issuer == nil {
		panic("billing: key issuer is required")
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Module{deps: deps, log: log}
}

// Handle returns the module's router, ready to mount:
//
//	r.Mount("/billing", billing.New(deps).Handle())
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	r.Get("/plans", m.listPlans)
	r.Post("/checkout", m.checkout)
	r.Post("/webhooks/{gateway}", m.webhook)

	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", m.listPurchases)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", m.getPurchase)
			r.Post("/cancel", m.cancelPurchase)
			r.Post("/auto-renew", m.toggleAutoRenew)
			r.Post("/switch", m.requestSwitch)
			r.Post("/switch/approve", m.approveSwitch)
			r.Post("/activate", m.adminActivate)
			r.Post("/status", m.forceStatus)
			r.Post("/regenerate-key", m.regenerateKey)
			if m.deps.Counter != nil {
				r.Get("/usage", m.usage)
			}
			if m.deps.Downloads != nil {
				r.Get("/download", m.downloadLink)
			}
		})
	})

	if m.deps.Tracker != nil {
		r.Route("/license", func(r chi.Router) {
			r.Post("/activate", m.licenseActivate)
			r.Post("/deactivate", m.licenseDeactivate)
			r.Post("/validate", m.licenseValidate)
		})
	}

	if m.deps.BinClient != nil {
		r.Get("/bin/{bin}", m.binLookup)
	}

	return r
}
