package e2etesting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

type RouteInfo struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	HitCount int    `json:"hit_count,omitempty"`
}

type CoverageStats struct {
	TotalRoutes   int
	CoveredRoutes int
	MissingRoutes []RouteInfo
	Coverage      float64
}

type CoverageTracker struct {
	mu               sync.RWMutex
	registeredRoutes map[string]RouteInfo
	hitRoutes        map[string]int
	excludePatterns  []string
}

func NewCoverageTracker() *CoverageTracker {
	return &CoverageTracker{
		registeredRoutes: make(map[string]RouteInfo),
		hitRoutes:        make(map[string]int),
		// echo registers its own not-found handlers for groups with middleware
		excludePatterns: []string{"github.com/labstack/echo/v4"},
	}
}

func routeKey(method, path string) string {
	return method + ":" + path
}

func (ct *CoverageTracker) RegisterRoutes(e *echo.Echo) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	routes := e.Routes()
	for _, route := range routes {

		skip := false
		for _, pattern := range ct.excludePatterns {
			if strings.Contains(route.Name, pattern) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		key := routeKey(route.Method, route.Path)
		ct.registeredRoutes[key] = RouteInfo{
			Method: route.Method,
			Path:   route.Path,
			Name:   route.Name,
		}
	}
}

func (ct *CoverageTracker) AddExcludePattern(pattern string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.excludePatterns = append(ct.excludePatterns, pattern)
}

func (ct *CoverageTracker) TrackingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {

			method := c.Request().Method
			path := c.Path()

			ct.mu.Lock()
			key := routeKey(method, path)
			ct.hitRoutes[key]++
			ct.mu.Unlock()

			return next(c)
		}
	}
}

func (ct *CoverageTracker) GetStats() CoverageStats {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var missing []RouteInfo
	covered := 0

	for key, route := range ct.registeredRoutes {
		if ct.hitRoutes[key] > 0 {
			covered++
		} else {
			missing = append(missing, route)
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Path == missing[j].Path {
			return missing[i].Method < missing[j].Method
		}
		return missing[i].Path < missing[j].Path
	})

	total := len(ct.registeredRoutes)
	var coverage float64
	if total > 0 {
		coverage = float64(covered) / float64(total) * 100
	}

	return CoverageStats{
		TotalRoutes:   total,
		CoveredRoutes: covered,
		MissingRoutes: missing,
		Coverage:      coverage,
	}
}

func (ct *CoverageTracker) GetMissingRoutes() []RouteInfo {
	return ct.GetStats().MissingRoutes
}

func (ct *CoverageTracker) GetCoveredRoutes() []RouteInfo {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var covered []RouteInfo
	for key, route := range ct.registeredRoutes {
		if hitCount := ct.hitRoutes[key]; hitCount > 0 {
			routeWithCount := RouteInfo{
				Method:   route.Method,
				Path:     route.Path,
				Name:     route.Name,
				HitCount: hitCount,
			}
			covered = append(covered, routeWithCount)
		}
	}

	sort.Slice(covered, func(i, j int) bool {
		if covered[i].Path == covered[j].Path {
			return covered[i].Method < covered[j].Method
		}
		return covered[i].Path < covered[j].Path
	})

	return covered
}

func (ct *CoverageTracker) PrintReport() {
	ct.PrintReportTo(os.Stderr)
}

func (ct *CoverageTracker) PrintReportTo(w io.Writer) {
	stats := ct.GetStats()

	fmt.Fprintf(w, "\nroute coverage: %d/%d (%.1f%%)\n", stats.CoveredRoutes, stats.TotalRoutes, stats.Coverage)
	for _, route := range ct.GetCoveredRoutes() {
		fmt.Fprintf(w, "  hit     %-7s %-40s %d\n", route.Method, route.Path, route.HitCount)
	}
	for _, route := range stats.MissingRoutes {
		fmt.Fprintf(w, "  missing %-7s %s\n", route.Method, route.Path)
	}
}

func (ct *CoverageTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.hitRoutes = make(map[string]int)
}

func (ct *CoverageTracker) HasRoute(method, path string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	_, exists := ct.registeredRoutes[routeKey(method, path)]
	return exists
}

func (ct *CoverageTracker) IsCovered(method, path string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.hitRoutes[routeKey(method, path)] > 0
}
