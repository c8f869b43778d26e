package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/assembly-hq/assembly/pkg/authz"
	"github.com/assembly-hq/assembly/pkg/members"
	"github.com/assembly-hq/assembly/pkg/middleware"
)

// MemberHandlers handles organization membership HTTP requests
type MemberHandlers struct {
	store members.Store
}

// NewMemberHandlers creates a new MemberHandlers
func NewMemberHandlers(store members.Store) *MemberHandlers {
	return &MemberHandlers{store: store}
}

// Operation keys referenced by the policy file. Each protected route is
// guarded by exactly one of these.
const (
	OpListMembers  = "org.members.list"
	OpAddMember    = "org.members.add"
	OpUpdateMember = "org.members.update"
	OpRemoveMember = "org.members.remove"
	OpTransferOrg  = "org.transfer"
	OpOrgSummary   = "org.summary"
)

// RegisterRoutes registers membership routes, each behind its operation's
// guard policy.
func (h *MemberHandlers) RegisterRoutes(router *mux.Router, guard *middleware.GuardMiddleware) {
	router.Handle("/orgs/{org_id}/members",
		guard.RequireOperation(OpListMembers)(http.HandlerFunc(h.ListMembers))).Methods("GET")
	router.Handle("/orgs/{org_id}/members",
		guard.RequireOperation(OpAddMember)(http.HandlerFunc(h.AddMember))).Methods("POST")
	router.Handle("/orgs/{org_id}/members/{subject_id}",
		guard.RequireOperation(OpUpdateMember)(http.HandlerFunc(h.UpdateMember))).Methods("PUT")
	router.Handle("/orgs/{org_id}/members/{subject_id}",
		guard.RequireOperation(OpRemoveMember)(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")

	// Ownership transfer is the president-only, rate-limited operation.
	router.Handle("/orgs/{org_id}/transfer",
		guard.RequireOperation(OpTransferOrg)(http.HandlerFunc(h.TransferOrganization))).Methods("POST")

	// Legacy public summary, served through the anonymous bypass.
	router.Handle("/orgs/{org_id}/summary",
		guard.RequireOperation(OpOrgSummary)(http.HandlerFunc(h.OrgSummary))).Methods("GET")
}

// ListMembers lists the members of an organization
func (h *MemberHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	memberships, err := h.store.ListMembers(r.Context(), orgID)
	if err != nil {
		http.Error(w, "failed to list members", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(memberships)
}

type addMemberRequest struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
}

// AddMember adds a member to an organization
func (h *MemberHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" {
		http.Error(w, "subject_id is required", http.StatusBadRequest)
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor := middleware.PrincipalFromContext(r.Context())
	if err := h.store.AddMember(r.Context(), members.Membership{
		SubjectID:      req.SubjectID,
		OrganizationID: orgID,
		Role:           role,
		AddedBy:        actor.SubjectID,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type updateMemberRequest struct {
	Role string `json:"role"`
}

// UpdateMember changes a member's role
func (h *MemberHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID := vars["org_id"]
	subjectID := vars["subject_id"]

	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateMemberRole(r.Context(), subjectID, orgID, role); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember removes a member from an organization
func (h *MemberHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.store.RemoveMember(r.Context(), vars["subject_id"], vars["org_id"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	NewPresident string `json:"new_president"`
}

// TransferOrganization hands the presidency to another member. The guard
// has already enforced the president role and the rate limit by the time
// this runs.
func (h *MemberHandlers) TransferOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.NewPresident == "" {
		http.Error(w, "new_president is required", http.StatusBadRequest)
		return
	}

	actor := middleware.PrincipalFromContext(r.Context())
	if err := h.store.UpdateMemberRole(r.Context(), req.NewPresident, orgID, authz.RolePresident); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := h.store.UpdateMemberRole(r.Context(), actor.SubjectID, orgID, authz.RoleAdmin); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type orgSummary struct {
	OrganizationID string `json:"organization_id"`
	MemberCount    int    `json:"member_count"`
}

// OrgSummary returns a public membership count for an organization
func (h *MemberHandlers) OrgSummary(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	memberships, err := h.store.ListMembers(r.Context(), orgID)
	if err != nil {
		http.Error(w, "failed to load organization", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orgSummary{
		OrganizationID: orgID,
		MemberCount:    len(memberships),
	})
}
