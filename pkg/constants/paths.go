package constants

// Пути health, ready и API вечеринок.
const (
	PathHealth    = "/health"
	PathReady     = "/ready"
	PathParties   = "/parties"
	PathWSParties = "/ws/parties"
)
