package logger

import "log/slog"

// Attribute helpers keep log field names consistent across packages.

// Error records a single error under the key "error". Nil errors produce
// an empty attribute, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// EntitlementID records the entitlement identifier being operated on.
func EntitlementID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("entitlement_id", id)
}

// Gateway records the payment gateway handling an operation.
func Gateway(id string) slog.Attr {
	return slog.String("gateway", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}
