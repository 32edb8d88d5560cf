package analysis

import "github.com/JonMunkholm/loglens/internal/core"

// FallbackRoute receives labels without a dedicated route, including unknown.
const FallbackRoute = "/predict"

// Routes maps schema labels to submission paths.
type Routes map[core.SchemaLabel]string

// DefaultRoutes is the route table of the analysis service.
func DefaultRoutes() Routes {
	return Routes{
		core.LabelFirewall: "/predict/firewall",
		core.LabelSystem:   "/predict/system",
		core.LabelCloud:    "/predict/cloud",
		core.LabelUnknown:  FallbackRoute,
	}
}

// Route returns the path for label. Every label resolves to some path.
func (r Routes) Route(label core.SchemaLabel) string {
	if p, ok := r[label]; ok && p != "" {
		return p
	}
	if p, ok := r[core.LabelUnknown]; ok && p != "" {
		return p
	}
	return FallbackRoute
}
