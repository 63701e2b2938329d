package api

// Cache-Control header values.
const (
	CacheOneHour = "public, max-age=3600"
	CacheNoStore = "no-store"
)

// MaintenanceTokenHeader carries the token guarding maintenance endpoints.
const MaintenanceTokenHeader = "X-Maintenance-Token"
