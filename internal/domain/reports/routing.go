package reports

import (
	"context"
	"strings"
)

// DefaultRoutes is the category to department table shipped with the service.
func DefaultRoutes() map[string]Route {
	return map[string]Route{
		"Pothole":          {Department: "Public Works", Priority: PriorityMedium},
		"Streetlight Out":  {Department: "Utilities", Priority: PriorityHigh},
		"Trash Overflow":   {Department: "Sanitation", Priority: PriorityMedium},
		"Graffiti":         {Department: "Public Works", Priority: PriorityLow},
		"Water Leak":       {Department: "Utilities", Priority: PriorityHigh},
		"Traffic Signal":   {Department: "Transportation", Priority: PriorityHigh},
		"Park Maintenance": {Department: "Parks & Recreation", Priority: PriorityLow},
		"Other":            {Department: Unassigned, Priority: PriorityLow},
	}
}

// StaticRouter serves a fixed table. Lookups ignore case.
type StaticRouter struct {
	routes map[string]Route
}

func NewStaticRouter(routes map[string]Route) *StaticRouter {
	m := make(map[string]Route, len(routes))
	for k, v := range routes {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &StaticRouter{routes: m}
}

func (s *StaticRouter) Route(_ context.Context, category string) (Route, bool, error) {
	r, ok := s.routes[strings.ToLower(strings.TrimSpace(category))]
	if !ok || r.Department == "" {
		return Route{}, false, nil
	}
	return r, true, nil
}
