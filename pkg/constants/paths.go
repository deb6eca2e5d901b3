package constants

// Пути health, ready, media (остальные API — через router/handler).
const (
	PathHealth = "/health"
	PathReady  = "/ready"
	PathMedia  = "/media"
)
