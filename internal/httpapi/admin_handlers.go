package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"learnhub.dev/internal/security"
	"learnhub.dev/internal/session"
)

type createIdentityRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Language string `json:"language"`
}

type identityStatusRequest struct {
	Status security.IdentityStatus `json:"status"`
}

type policyRequest struct {
	Group      string               `json:"group"`
	Permission string               `json:"permission"`
	Resource   security.ResourceRef `json:"resource"`
	ValidFrom  *time.Time           `json:"valid_from,omitempty"`
	ValidTo    *time.Time           `json:"valid_to,omitempty"`
}

type createInvitationRequest struct {
	Email string `json:"email"`
}

func (a *API) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, userManager); !ok {
		return
	}
	var req createIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, err := a.deps.Identities.Create(r.Context(), security.NewIdentity{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Language: req.Language,
	})
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "identity.created", map[string]any{
		"target_identity": identity.ID,
		"name":             identity.Name,
	})
	writeJSON(w, http.StatusCreated, identity)
}

func (a *API) handleSetIdentityStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, userManager); !ok {
		return
	}
	var req identityStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if err := a.deps.Identities.SetStatus(r.Context(), id, req.Status); err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "identity.status_changed", map[string]any{
		"target_identity": id,
		"status":          int(req.Status),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleIdentityGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, userManager); !ok {
		return
	}
	memberships, err := a.deps.Groups.GroupsOf(r.Context(), r.PathValue("id"))
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	if memberships == nil {
		memberships = []security.Membership{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memberships": memberships})
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, groupManager); !ok {
		return
	}
	g, err := a.deps.Groups.CreateGroup(r.Context())
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "group.created", map[string]any{"group_id": g.ID})
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, groupManager); !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.deps.Groups.DeleteGroup(r.Context(), id); err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "group.deleted", map[string]any{"group_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, groupManager); !ok {
		return
	}
	groupID, identityID := r.PathValue("id"), r.PathValue("identity")
	created, err := a.deps.Groups.AddMember(r.Context(), identityID, groupID)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		a.auditAdmin(r.Context(), "group.member_added", map[string]any{
			"group_id": groupID,
			"member":   identityID,
		})
	}
	writeJSON(w, status, map[string]any{"group_id": groupID, "identity_id": identityID, "created": created})
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, groupManager); !ok {
		return
	}
	groupID, identityID := r.PathValue("id"), r.PathValue("identity")
	if err := a.deps.Groups.RemoveMember(r.Context(), identityID, groupID); err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "group.member_removed", map[string]any{
		"group_id": groupID,
		"member":   identityID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupPolicies(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	policies, err := a.deps.Policies.PoliciesOfGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	if policies == nil {
		policies = []security.Policy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (a *API) handleGrant(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := security.ParsePermission(req.Permission)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	p, err := a.deps.Policies.Grant(r.Context(), req.Group, perm, req.Resource, req.ValidFrom, req.ValidTo)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "policy.granted", map[string]any{
		"policy_id":  p.ID,
		"group_id":   p.GroupID,
		"permission": string(p.Permission),
		"resource":   p.Resource.String(),
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := security.ParsePermission(req.Permission)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	if err := a.deps.Policies.Revoke(r.Context(), req.Group, perm, req.Resource); err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "policy.revoked", map[string]any{
		"group_id":   req.Group,
		"permission": string(perm),
		"resource":   req.Resource.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermitted(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	q := r.URL.Query()
	perm, err := security.ParsePermission(q.Get("permission"))
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	ref := security.ResourceRef{TypeName: q.Get("type")}
	if raw := q.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid resource id")
			return
		}
		ref.ID = id
	}
	typeRight := true
	if raw := q.Get("type_right"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid type_right")
			return
		}
		typeRight = v
	}
	identityID := strings.TrimSpace(q.Get("identity"))
	ok, err := a.deps.Policies.IsPermitted(r.Context(), identityID, perm, ref, typeRight, a.now())
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":   identityID,
		"permission": string(perm),
		"resource":   ref,
		"permitted":  ok,
	})
}

func (a *API) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	var req createInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := a.deps.Invitations.Create(r.Context(), req.Email)
	if err != nil {
		handleSecurityError(w, r, err)
		return
	}
	a.auditAdmin(r.Context(), "invitation.created", map[string]any{
		"invitation_id": inv.ID,
		"group_id":      inv.GroupID,
	})
	writeJSON(w, http.StatusCreated, inv)
}

func (a *API) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	reg := a.deps.Auth.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":        reg.Settings(),
		"active_sessions": reg.Active(),
	})
}

func (a *API) handlePutRegistry(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	var req session.Settings
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxSessions < 0 {
		writeError(w, r, http.StatusBadRequest, "max_sessions must not be negative")
		return
	}
	reg := a.deps.Auth.Registry()
	reg.Apply(req)
	a.auditAdmin(r.Context(), "registry.updated", map[string]any{
		"login_blocked":         req.LoginBlocked,
		"max_sessions":          req.MaxSessions,
		"reject_external_entry": req.RejectExternalEntry,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":        reg.Settings(),
		"active_sessions": reg.Active(),
	})
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, adminOnly); !ok {
		return
	}
	report, err := a.deps.Invitations.SweepExpired(r.Context(), a.now(), a.deps.InvitationMaxAge)
	resp := map[string]any{
		"invitations": report.Invitations,
		"identities":  report.Identities,
		"skipped":     report.Skipped,
	}
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	a.auditAdmin(r.Context(), "invitation.sweep", resp)
	writeJSON(w, http.StatusOK, resp)
}
