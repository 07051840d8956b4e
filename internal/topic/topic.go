package topic

import (
	"strings"

	"github.com/rickgao/rtu-client/internal/model"
)

// Built-in services handled by the dispatcher before any subscriber sees them.
const (
	Pong         = "Pong"
	Knock        = "Knock"
	OnlineStatus = "OnlineStatus"
	Error        = "Error"
)

// Distinguished scopes raised by the dispatcher itself.
const (
	SchedulerScope     = "Scheduler"
	SecurityErrorScope = "SecurityError"
)

const separator = "#"

// Parse splits a topic into service, object and event. It never fails.
func Parse(topic string) model.TopicKey {
	service, rest, found := strings.Cut(topic, separator)
	if !found {
		return model.TopicKey{Service: service}
	}
	object, event, _ := strings.Cut(rest, separator)
	return model.TopicKey{Service: service, Object: object, Event: event}
}

// ObjectScope builds a "Service#Object" scope key.
func ObjectScope(service, object string) string {
	return service + separator + object
}

// IsHeartbeat reports whether service is a liveness heartbeat.
func IsHeartbeat(service string) bool {
	return service == Pong || service == Knock
}

// IsSchedulerTick reports whether service is the scheduler tick.
func IsSchedulerTick(service string) bool {
	return service == OnlineStatus
}

// securityKinds are server error types that invalidate the session.
var securityKinds = map[string]struct{}{
	"UnauthorizedException":               {},
	"AccessDeniedException":               {},
	"SessionNotFoundException":            {},
	"SessionExpiredException":             {},
	"SessionInvalidException":             {},
	"SessionInformationRequiredException": {},
	"TokenNotFoundException":              {},
	"TokenExpiredException":               {},
	"TokenRevokedException":               {},
	"TokenInvalidException":               {},
	"TokenInvalidSignatureException":      {},
	"InvalidTokenSignatureException":      {},
}

// IsSecurityException reports whether kind is a session/token error.
// Namespaced kinds such as "Acme.Security.TokenExpiredException" match on their last segment.
func IsSecurityException(kind string) bool {
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	_, ok := securityKinds[kind]
	return ok
}
