package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps "METHOD path-template" routes to their required security level.
// Role checks happen in the services against the user directory.
var EndpointSecurityConfig = map[string]SecurityLevel{
	"GET /healthz": SecurityPublic,
	"GET /metrics": SecurityPublic,

	"POST /api/v1/loans":                         SecurityAccess,
	"GET /api/v1/loans":                          SecurityAccess,
	"GET /api/v1/loans/{id}":                     SecurityAccess,
	"POST /api/v1/loans/{id}/cancel":             SecurityAccess,
	"POST /api/v1/loans/{id}/return":             SecurityAccess,
	"POST /api/v1/librarian/loans/{id}/approve":  SecurityAccess,
	"POST /api/v1/librarian/loans/{id}/cancel":   SecurityAccess,
	"POST /api/v1/librarian/loans/{id}/return":   SecurityAccess,
	"POST /api/v1/librarian/loans/sweep-overdue": SecurityAccess,
	"GET /api/v1/notifications":                  SecurityAccess,
	"PUT /api/v1/notifications/{id}/read":        SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
