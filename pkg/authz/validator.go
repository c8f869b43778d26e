package authz

// Evaluate decides whether a principal satisfies the minimum role at the
// target organization using only the principal's decoded claims. It is pure
// and side-effect free: no storage access, O(number of claims).
//
// Anonymous principals are always denied here. A route that wants to admit
// anonymous access must opt in through the guard's explicit anonymous-bypass
// entry point; treating "no principal" as an implicit default-allow inside
// the evaluator is exactly the class of bug this function refuses to have.
func Evaluate(principal Principal, organizationID string, minimumRole Role) AccessDecision {
	if principal.Anonymous {
		return denied(ReasonAnonymousDenied, SourceAnonymous)
	}

	// Exact full-string match on the organization id. Among duplicate claims
	// for the same organization the highest role wins: within one token a
	// principal's role can only go up by holding more memberships.
	var matched Role
	found := false
	for _, claim := range principal.Claims {
		if claim.OrganizationID != organizationID {
			continue
		}
		if !found || claim.Role.Rank() > matched.Rank() {
			matched = claim.Role
			found = true
		}
	}

	if !found {
		return denied(ReasonNotAMember, SourceClaim)
	}
	if !matched.Satisfies(minimumRole) {
		return denied(ReasonInsufficientRole, SourceClaim)
	}
	return allowed(matched, SourceClaim)
}
