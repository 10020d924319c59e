package taxonomy

import "testing"

func TestIsCompatible(t *testing.T) {
	cases := []struct {
		name    string
		domain  Domain
		context Context
		ok      bool
	}{
		{name: "tutoring institutional", domain: DomainInstitutional, context: ContextTutoring, ok: true},
		{name: "evaluation institutional", domain: DomainInstitutional, context: ContextEvaluation, ok: true},
		{name: "family socio-community", domain: DomainSocioCommunity, context: ContextFamily, ok: true},
		{name: "family under institutional", domain: DomainInstitutional, context: ContextFamily, ok: false},
		{name: "tutoring under socio-community", domain: DomainSocioCommunity, context: ContextTutoring, ok: false},
		{name: "other institutional", domain: DomainInstitutional, context: ContextOther, ok: true},
		{name: "other socio-community", domain: DomainSocioCommunity, context: ContextOther, ok: true},
		{name: "unknown context", domain: DomainInstitutional, context: Context("sports"), ok: false},
		{name: "unknown domain", domain: Domain("clinical"), context: ContextOther, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCompatible(tc.domain, tc.context); got != tc.ok {
				t.Fatalf("IsCompatible(%q, %q) = %v, want %v", tc.domain, tc.context, got, tc.ok)
			}
		})
	}
}

func TestEveryConcreteContextMatchesItsOwner(t *testing.T) {
	for _, domain := range Domains {
		for _, context := range AllowedContexts(domain) {
			if context == ContextOther {
				continue
			}
			owner, ok := DomainOf(context)
			if !ok {
				t.Fatalf("DomainOf(%q) has no owner", context)
			}
			if owner != domain {
				t.Fatalf("context %q listed under %q but owned by %q", context, domain, owner)
			}
			if !IsCompatible(owner, context) {
				t.Fatalf("IsCompatible(DomainOf(%q), %q) = false", context, context)
			}
		}
	}
}

func TestDomainOfOther(t *testing.T) {
	if _, ok := DomainOf(ContextOther); ok {
		t.Fatal("ContextOther must not have an owning domain")
	}
}

func TestAllowedContextsReturnsCopy(t *testing.T) {
	first := AllowedContexts(DomainInstitutional)
	first[0] = Context("mutated")
	second := AllowedContexts(DomainInstitutional)
	if second[0] == Context("mutated") {
		t.Fatal("AllowedContexts must not expose internal state")
	}
}
