package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/majewsky-labs/lloadd/internal/models"
	"github.com/majewsky-labs/lloadd/internal/schema"
	"github.com/majewsky-labs/lloadd/pkg/config"
	"github.com/majewsky-labs/lloadd/pkg/crypto"
)

// MemoryStore implements the Store interface over a map keyed by DN,
// replacing the teacher's SQLiteStore for entry data per the
// persistence non-goal covering entries (the directory server's live
// working set is in-memory; only the audit trail in internal/auditlog
// is backed by SQLite). It keeps the teacher's userPassword handling:
// the hash is held on the entry but never surfaced back out of
// GetEntry/SearchEntries, the same exclusion SQLiteStore's separate
// users table gave it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.Entry
	cfg     *config.Config
	hasher  *crypto.PasswordHasher
	nextID  int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(cfg *config.Config) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.Entry),
		cfg:     cfg,
		hasher:  crypto.NewPasswordHasher(cfg.Security.Argon2Config),
	}
}

// Initialize seeds the base DN, default OUs and an admin user on first
// use, mirroring SQLiteStore.Initialize's first-run bootstrap without
// any on-disk migration step.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	isNew := len(s.entries) == 0
	s.mu.Unlock()

	if !isNew {
		return nil
	}

	adminPassword := os.Getenv("LDAP_ADMIN_PASSWORD")
	if adminPassword == "" {
		return fmt.Errorf("LDAP_ADMIN_PASSWORD environment variable is required for first run")
	}

	baseDN := s.cfg.LDAP.BaseDN
	components := config.ParseBaseDNComponents(baseDN)

	baseEntry := models.NewEntry(baseDN, string(models.ObjectClassTop))
	for _, component := range components {
		if strings.HasPrefix(component, "dc=") {
			baseEntry.SetAttribute("dc", strings.TrimPrefix(component, "dc="))
		}
	}
	if err := s.CreateEntry(ctx, baseEntry); err != nil {
		return fmt.Errorf("failed to create base DN: %w", err)
	}

	for _, ou := range []struct{ name, desc string }{
		{"users", "Users organizational unit"},
		{"groups", "Groups organizational unit"},
	} {
		ouEntry := models.NewOrganizationalUnit(baseDN, ou.name, ou.desc)
		if err := s.CreateEntry(ctx, ouEntry.Entry); err != nil {
			return fmt.Errorf("failed to create OU %s: %w", ou.name, err)
		}
	}

	adminUser := models.NewUser(baseDN, "admin", "Administrator", "Administrator", "Admin", "admin@example.com")
	hashedPassword, err := s.hasher.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	adminUser.SetPassword(hashedPassword)
	if err := s.CreateEntry(ctx, adminUser.Entry); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	adminGroup := models.NewGroup(baseDN, "lloadd.admin", "lloadd admin console operators")
	adminGroup.AddMember(adminUser.DN)
	if err := s.CreateEntry(ctx, adminGroup.Entry); err != nil {
		return fmt.Errorf("failed to create admin group: %w", err)
	}

	return nil
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// sanitize returns a copy of entry with userPassword stripped from
// Attributes and operational attributes attached, the same shape
// GetEntry/SearchEntries returned under the teacher's SQL schema.
func sanitize(entry *models.Entry) *models.Entry {
	out := *entry
	out.Attributes = make(map[string][]string, len(entry.Attributes))
	for name, values := range entry.Attributes {
		if name == "userpassword" {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		out.Attributes[name] = copied
	}
	out.AddOperationalAttributes()
	return &out
}

func (s *MemoryStore) GetEntry(ctx context.Context, dn string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[dn]
	if !ok {
		return nil, nil
	}
	return sanitize(entry), nil
}

func (s *MemoryStore) CreateEntry(ctx context.Context, entry *models.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if entry.IsUser() {
		user := &models.User{Entry: entry, UID: entry.GetAttribute("uid")}
		if err := user.ValidateUser(); err != nil {
			return err
		}
	} else if entry.IsGroup() {
		group := &models.Group{Entry: entry, CN: entry.GetAttribute("cn")}
		if err := group.ValidateGroup(); err != nil {
			return err
		}
	} else if entry.IsOrganizationalUnit() {
		ouModel := &models.OrganizationalUnit{Entry: entry, OU: entry.GetAttribute("ou")}
		if err := ouModel.ValidateOU(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.DN]; exists {
		return fmt.Errorf("entry already exists: %s", entry.DN)
	}

	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = entry.CreatedAt

	stored := *entry
	stored.Attributes = cloneAttributes(entry.Attributes)
	s.entries[entry.DN] = &stored
	return nil
}

// UpdateEntry replaces entry's attributes wholesale, except userPassword:
// GetEntry never returns that attribute, so a caller that read an entry,
// edited unrelated fields and wrote it back would otherwise silently
// wipe the stored hash. If the incoming entry doesn't carry a
// userPassword value, the existing hash is carried forward.
func (s *MemoryStore) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[entry.DN]
	if !ok {
		return fmt.Errorf("entry not found: %s", entry.DN)
	}

	newAttrs := cloneAttributes(entry.Attributes)
	if _, provided := newAttrs["userpassword"]; !provided {
		if hash, hadHash := existing.Attributes["userpassword"]; hadHash {
			newAttrs["userpassword"] = append([]string(nil), hash...)
		}
	}

	existing.Attributes = newAttrs
	existing.ObjectClass = entry.ObjectClass
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, dn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[dn]; !ok {
		return fmt.Errorf("entry not found: %s", dn)
	}
	delete(s.entries, dn)
	return nil
}

func (s *MemoryStore) EntryExists(ctx context.Context, dn string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[dn]
	return ok, nil
}

// SearchEntries walks the subtree rooted at baseDN (inclusive) and
// applies filterStr's parsed filter in memory, the fallback path
// SQLiteStore itself took whenever its filter compiler couldn't
// translate a filter to SQL.
func (s *MemoryStore) SearchEntries(ctx context.Context, baseDN string, filterStr string) ([]*models.Entry, error) {
	parsedFilter, err := schema.ParseFilter(filterStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filter: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.Entry
	for dn, entry := range s.entries {
		if dn != baseDN && !isDescendantDN(dn, baseDN) {
			continue
		}
		sanitized := sanitize(entry)
		if parsedFilter.Matches(sanitized) {
			matches = append(matches, sanitized)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].DN < matches[j].DN })
	return matches, nil
}

func (s *MemoryStore) GetAllEntries(ctx context.Context) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, sanitize(entry))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })
	return entries, nil
}

func (s *MemoryStore) GetChildren(ctx context.Context, dn string) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*models.Entry
	for _, entry := range s.entries {
		if entry.ParentDN == dn {
			children = append(children, sanitize(entry))
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].DN < children[j].DN })
	return children, nil
}

// GetUserPasswordHash scans for an entry whose uid attribute matches
// and returns its unsanitized userPassword hash and DN. Unlike the
// read paths above it deliberately looks at the raw stored entry, not
// sanitize's copy, since this is the one caller allowed to see the hash.
func (s *MemoryStore) GetUserPasswordHash(ctx context.Context, uid string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.GetAttribute("uid") == uid {
			return entry.GetAttribute("userpassword"), entry.DN, nil
		}
	}
	return "", "", nil
}

// IsUserInGroup reports whether userDN appears in groupDN's member
// attribute.
func (s *MemoryStore) IsUserInGroup(ctx context.Context, userDN, groupDN string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.entries[groupDN]
	if !ok {
		return false, nil
	}
	for _, member := range group.GetAttributes("member") {
		if member == userDN {
			return true, nil
		}
	}
	return false, nil
}

func cloneAttributes(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for name, values := range attrs {
		copied := make([]string, len(values))
		copy(copied, values)
		out[name] = copied
	}
	return out
}

// isDescendantDN reports whether dn lies somewhere under baseDN in
// the DN tree, i.e. dn's RDN sequence ends with baseDN's.
func isDescendantDN(dn, baseDN string) bool {
	return strings.HasSuffix(dn, ","+baseDN)
}
