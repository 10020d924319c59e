// Package taxonomy is the static classification table for intervention
// records: two domains, a fixed context set per domain, and the "other"
// wildcard context that is valid under any domain.
package taxonomy

type Domain string
type Context string

const (
	DomainInstitutional  Domain = "institutional"
	DomainSocioCommunity Domain = "socio-community"
)

const (
	ContextTutoring       Context = "tutoring"
	ContextEvaluation     Context = "evaluation"
	ContextClassroom      Context = "classroom"
	ContextGuidance       Context = "guidance"
	ContextCoexistence    Context = "coexistence"
	ContextFamily         Context = "family"
	ContextHealth         Context = "health"
	ContextSocialServices Context = "social-services"
	ContextLeisure        Context = "leisure"
	ContextPeerGroup      Context = "peer-group"
	ContextOther          Context = "other"
)

var Domains = []Domain{DomainInstitutional, DomainSocioCommunity}

// domainByContext pins every concrete context to its single owning domain.
// ContextOther is deliberately absent.
var domainByContext = map[Context]Domain{
	ContextTutoring:       DomainInstitutional,
	ContextEvaluation:     DomainInstitutional,
	ContextClassroom:      DomainInstitutional,
	ContextGuidance:       DomainInstitutional,
	ContextCoexistence:    DomainInstitutional,
	ContextFamily:         DomainSocioCommunity,
	ContextHealth:         DomainSocioCommunity,
	ContextSocialServices: DomainSocioCommunity,
	ContextLeisure:        DomainSocioCommunity,
	ContextPeerGroup:      DomainSocioCommunity,
}

var contextsByDomain = map[Domain][]Context{
	DomainInstitutional: {
		ContextTutoring,
		ContextEvaluation,
		ContextClassroom,
		ContextGuidance,
		ContextCoexistence,
		ContextOther,
	},
	DomainSocioCommunity: {
		ContextFamily,
		ContextHealth,
		ContextSocialServices,
		ContextLeisure,
		ContextPeerGroup,
		ContextOther,
	},
}

func ValidDomain(domain Domain) bool {
	_, ok := contextsByDomain[domain]
	return ok
}

// DomainOf returns the owning domain of a concrete context. The second
// return is false for ContextOther and for unknown contexts.
func DomainOf(context Context) (Domain, bool) {
	domain, ok := domainByContext[context]
	return domain, ok
}

// AllowedContexts returns the contexts permitted under a domain, wildcard
// included. The returned slice is a copy.
func AllowedContexts(domain Domain) []Context {
	contexts := contextsByDomain[domain]
	out := make([]Context, len(contexts))
	copy(out, contexts)
	return out
}

func IsCompatible(domain Domain, context Context) bool {
	if !ValidDomain(domain) {
		return false
	}
	if context == ContextOther {
		return true
	}
	owner, ok := domainByContext[context]
	return ok && owner == domain
}
