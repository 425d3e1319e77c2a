// Package memory is an in-process security.Store used by tests and by the
// API server when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/security"
)

type membershipKey struct {
	identityID string
	groupID    string
}

type policyKey struct {
	groupID  string
	perm     security.Permission
	resource security.ResourceRef
}

type state struct {
	identities  map[string]security.Identity
	groups      map[string]security.Group
	names       map[string]string // name -> group id
	memberships map[membershipKey]security.Membership
	policies    map[policyKey]security.Policy
	invitations map[string]security.Invitation
}

func newState() state {
	return state{
		identities:  make(map[string]security.Identity),
		groups:      make(map[string]security.Group),
		names:       make(map[string]string),
		memberships: make(map[membershipKey]security.Membership),
		policies:    make(map[policyKey]security.Policy),
		invitations: make(map[string]security.Invitation),
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.identities {
		out.identities[k] = v
	}
	for k, v := range s.groups {
		out.groups[k] = v
	}
	for k, v := range s.names {
		out.names[k] = v
	}
	for k, v := range s.memberships {
		out.memberships[k] = v
	}
	for k, v := range s.policies {
		out.policies[k] = v
	}
	for k, v := range s.invitations {
		out.invitations[k] = v
	}
	return out
}

// locker is the part of sync.RWMutex the sub-stores use.
type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// held stands in for the mutex inside a transaction, whose write lock is
// already taken for the whole of fn.
type held struct{}

func (held) Lock()    {}
func (held) Unlock()  {}
func (held) RLock()   {}
func (held) RUnlock() {}

// Store implements security.Store with in-process concurrency safety.
// A transaction holds the write lock from start to finish, so other callers
// never see its intermediate state and cannot write underneath it; rollback
// restores the snapshot taken when it began.
type Store struct {
	rw   sync.RWMutex
	mu   locker
	st   *state
	inTx bool
}

// New creates an empty store.
func New() *Store {
	st := newState()
	s := &Store{st: &st}
	s.mu = &s.rw
	return s
}

func (s *Store) Identities(context.Context) security.IdentityStore   { return identityStore{s} }
func (s *Store) Groups(context.Context) security.GroupStore           { return groupStore{s} }
func (s *Store) Memberships(context.Context) security.MembershipStore { return membershipStore{s} }
func (s *Store) Policies(context.Context) security.PolicyStore        { return policyStore{s} }
func (s *Store) Invitations(context.Context) security.InvitationStore { return invitationStore{s} }

// WithTx runs fn under the store's write lock. fn must only use the Store it
// is handed; nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx security.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rw.Lock()
	defer s.rw.Unlock()

	snapshot := s.st.clone()
	tx := &Store{mu: held{}, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

type identityStore struct{ s *Store }

func (r identityStore) Create(_ context.Context, identity *security.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.liveByName(identity.Name); ok {
		return security.ErrConflict
	}
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	r.s.st.identities[identity.ID] = *identity
	return nil
}

func (r identityStore) Find(_ context.Context, id string) (*security.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	identity, ok := r.s.st.identities[id]
	if !ok {
		return nil, security.ErrNotFound
	}
	return &identity, nil
}

func (r identityStore) FindByName(_ context.Context, name string) (*security.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	identity, ok := r.s.liveByName(name)
	if !ok {
		return nil, security.ErrNotFound
	}
	return &identity, nil
}

func (r identityStore) FindByEmail(_ context.Context, email string) (*security.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *security.Identity
	for _, identity := range r.s.st.identities {
		if identity.Status.Deleted() || !strings.EqualFold(identity.Email, email) {
			continue
		}
		if found == nil || identity.CreatedAt.Before(found.CreatedAt) {
			v := identity
			found = &v
		}
	}
	if found == nil {
		return nil, security.ErrNotFound
	}
	return found, nil
}

func (r identityStore) UpdateStatus(_ context.Context, id string, status security.IdentityStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.st.identities[id]
	if !ok {
		return security.ErrNotFound
	}
	if identity.Status.Deleted() && !status.Deleted() {
		if _, taken := r.s.liveByName(identity.Name); taken {
			return security.ErrConflict
		}
	}
	identity.Status = status
	r.s.st.identities[id] = identity
	return nil
}

func (r identityStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.st.identities[id]
	if !ok {
		return security.ErrNotFound
	}
	at = at.UTC()
	identity.LastLogin = &at
	r.s.st.identities[id] = identity
	return nil
}

// liveByName must be called with mu held.
func (s *Store) liveByName(name string) (security.Identity, bool) {
	for _, identity := range s.st.identities {
		if !identity.Status.Deleted() && strings.EqualFold(identity.Name, name) {
			return identity, true
		}
	}
	return security.Identity{}, false
}

type groupStore struct{ s *Store }

func (r groupStore) Create(_ context.Context, group *security.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if group.ID == "" {
		group.ID = ids.New()
	}
	if _, ok := r.s.st.groups[group.ID]; ok {
		return security.ErrConflict
	}
	r.s.st.groups[group.ID] = *group
	return nil
}

func (r groupStore) Find(_ context.Context, id string) (*security.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	group, ok := r.s.st.groups[id]
	if !ok {
		return nil, security.ErrNotFound
	}
	return &group, nil
}

func (r groupStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.groups[id]; !ok {
		return security.ErrNotFound
	}
	for k := range r.s.st.memberships {
		if k.groupID == id {
			return security.ErrConflict
		}
	}
	for k := range r.s.st.policies {
		if k.groupID == id {
			return security.ErrConflict
		}
	}
	delete(r.s.st.groups, id)
	return nil
}

func (r groupStore) Bind(_ context.Context, name, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.groups[groupID]; !ok {
		return security.ErrNotFound
	}
	if _, ok := r.s.st.names[name]; ok {
		return security.ErrConflict
	}
	r.s.st.names[name] = groupID
	return nil
}

func (r groupStore) Unbind(_ context.Context, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for name, id := range r.s.st.names {
		if id == groupID {
			delete(r.s.st.names, name)
		}
	}
	return nil
}

func (r groupStore) FindByName(_ context.Context, name string) (*security.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.st.names[name]
	if !ok {
		return nil, security.ErrNotFound
	}
	group, ok := r.s.st.groups[id]
	if !ok {
		return nil, security.ErrNotFound
	}
	return &group, nil
}

type membershipStore struct{ s *Store }

func (r membershipStore) Add(_ context.Context, m security.Membership) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.identities[m.IdentityID]; !ok {
		return false, security.ErrNotFound
	}
	if _, ok := r.s.st.groups[m.GroupID]; !ok {
		return false, security.ErrNotFound
	}
	key := membershipKey{m.IdentityID, m.GroupID}
	if _, ok := r.s.st.memberships[key]; ok {
		return false, nil
	}
	r.s.st.memberships[key] = m
	return true, nil
}

func (r membershipStore) Remove(_ context.Context, identityID, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := membershipKey{identityID, groupID}
	if _, ok := r.s.st.memberships[key]; !ok {
		return security.ErrNotFound
	}
	delete(r.s.st.memberships, key)
	return nil
}

func (r membershipStore) Exists(_ context.Context, identityID, groupID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.st.memberships[membershipKey{identityID, groupID}]
	return ok, nil
}

func (r membershipStore) Count(ctx context.Context, identityID, groupID string) (int, error) {
	ok, err := r.Exists(ctx, identityID, groupID)
	if err != nil || !ok {
		return 0, err
	}
	return 1, nil
}

func (r membershipStore) ListByGroup(_ context.Context, groupID string) ([]security.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []security.Membership
	for k, m := range r.s.st.memberships {
		if k.groupID == groupID {
			out = append(out, m)
		}
	}
	sortMemberships(out)
	return out, nil
}

func (r membershipStore) ListByIdentity(_ context.Context, identityID string) ([]security.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []security.Membership
	for k, m := range r.s.st.memberships {
		if k.identityID == identityID {
			out = append(out, m)
		}
	}
	sortMemberships(out)
	return out, nil
}

func (r membershipStore) DeleteByGroup(_ context.Context, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.st.memberships {
		if k.groupID == groupID {
			delete(r.s.st.memberships, k)
		}
	}
	return nil
}

func sortMemberships(ms []security.Membership) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].JoinedAt.Before(ms[j].JoinedAt)
		}
		return ms[i].IdentityID+ms[i].GroupID < ms[j].IdentityID+ms[j].GroupID
	})
}

type policyStore struct{ s *Store }

func (r policyStore) Create(_ context.Context, p *security.Policy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.groups[p.GroupID]; !ok {
		return security.ErrNotFound
	}
	key := policyKey{p.GroupID, p.Permission, p.Resource}
	if _, ok := r.s.st.policies[key]; ok {
		return security.ErrConflict
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	r.s.st.policies[key] = *p
	return nil
}

func (r policyStore) Delete(_ context.Context, groupID string, perm security.Permission, resource security.ResourceRef) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := policyKey{groupID, perm, resource}
	if _, ok := r.s.st.policies[key]; !ok {
		return security.ErrNotFound
	}
	delete(r.s.st.policies, key)
	return nil
}

func (r policyStore) DeleteByGroup(_ context.Context, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.st.policies {
		if k.groupID == groupID {
			delete(r.s.st.policies, k)
		}
	}
	return nil
}

func (r policyStore) Find(_ context.Context, c security.PolicyCriteria) ([]security.Policy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []security.Policy
	for _, p := range r.s.st.policies {
		if c.GroupID != "" && p.GroupID != c.GroupID {
			continue
		}
		if c.Permission != "" && p.Permission != c.Permission {
			continue
		}
		if c.ResourceType != "" && p.Resource.TypeName != c.ResourceType {
			continue
		}
		if len(c.ResourceIDs) > 0 && !containsID(c.ResourceIDs, p.Resource.ID) {
			continue
		}
		if c.IdentityID != "" {
			if _, ok := r.s.st.memberships[membershipKey{c.IdentityID, p.GroupID}]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsID(set []int64, id int64) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

type invitationStore struct{ s *Store }

func (r invitationStore) Create(_ context.Context, inv *security.Invitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.groups[inv.GroupID]; !ok {
		return security.ErrNotFound
	}
	for _, existing := range r.s.st.invitations {
		if existing.Token == inv.Token {
			return security.ErrConflict
		}
	}
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	r.s.st.invitations[inv.ID] = *inv
	return nil
}

func (r invitationStore) FindByToken(_ context.Context, token string) (*security.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.st.invitations {
		if inv.Token == token {
			v := inv
			return &v, nil
		}
	}
	return nil, security.ErrNotFound
}

func (r invitationStore) ListCreatedBefore(_ context.Context, before time.Time) ([]security.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []security.Invitation
	for _, inv := range r.s.st.invitations {
		if inv.CreatedAt.Before(before) {
			out = append(out, inv)
		}
	}
	sortInvitations(out)
	return out, nil
}

func (r invitationStore) ListByMember(_ context.Context, identityID string) ([]security.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []security.Invitation
	for _, inv := range r.s.st.invitations {
		if _, ok := r.s.st.memberships[membershipKey{identityID, inv.GroupID}]; ok {
			out = append(out, inv)
		}
	}
	sortInvitations(out)
	return out, nil
}

func (r invitationStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.invitations[id]; !ok {
		return security.ErrNotFound
	}
	delete(r.s.st.invitations, id)
	return nil
}

func (r invitationStore) DeleteByGroup(_ context.Context, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, inv := range r.s.st.invitations {
		if inv.GroupID == groupID {
			delete(r.s.st.invitations, id)
		}
	}
	return nil
}

func sortInvitations(invs []security.Invitation) {
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })
}

var _ security.Store = (*Store)(nil)
