package lending

import (
	"fmt"
	"strings"
	"time"
)

func (t *tx) inList(list map[aclKey]*ACLEntry, account, feature string) bool {
	key := aclKey{feature: feature, account: account}
	entry, ok := list[key]
	if !ok {
		return false
	}
	if entry.expired(t.now) {
		delete(list, key)
		return false
	}
	return true
}

// isBlocked resolves allow entries before block entries, widest scope first.
// Contracts without an allow entry are blocked.
func (t *tx) isBlocked(account, feature string) bool {
	scoped := feature != All
	if t.inList(t.store.allows, All, All) {
		return false
	}
	if scoped && t.inList(t.store.allows, All, feature) {
		return false
	}
	if t.inList(t.store.allows, account, All) {
		return false
	}
	if scoped && t.inList(t.store.allows, account, feature) {
		return false
	}

	if t.inList(t.store.blocks, All, All) {
		return true
	}
	if scoped && t.inList(t.store.blocks, All, feature) {
		return true
	}
	if t.inList(t.store.blocks, account, All) {
		return true
	}
	if scoped && t.inList(t.store.blocks, account, feature) {
		return true
	}
	return t.accounts != nil && t.accounts.IsContract(account)
}

func (t *tx) addEntry(list map[aclKey]*ACLEntry, account, feature string, typ uint8, duration time.Duration) error {
	account = strings.TrimSpace(account)
	feature = strings.TrimSpace(feature)
	if account == "" || feature == "" {
		return fmt.Errorf("%w: account and feature required", ErrInvalidParams)
	}
	entry := &ACLEntry{Feature: feature, Account: account, Type: typ}
	if duration > 0 {
		entry.ExpiresAt = t.now.Add(duration)
	}
	list[aclKey{feature: feature, account: account}] = entry
	return nil
}

func (t *tx) removeEntry(list map[aclKey]*ACLEntry, account, feature string) error {
	key := aclKey{feature: strings.TrimSpace(feature), account: strings.TrimSpace(account)}
	if _, ok := list[key]; !ok {
		return ErrACLNotFound
	}
	delete(list, key)
	return nil
}

func (t *tx) setFeatures(pool string, perms []FeaturePerm) error {
	if _, err := t.poolByName(pool); err != nil {
		return err
	}
	for _, perm := range perms {
		name := strings.TrimSpace(perm.Feature)
		if name == "" {
			return fmt.Errorf("%w: feature name required", ErrInvalidParams)
		}
		t.store.features[featureKey{feature: name, pool: pool}] = perm.Open
	}
	return nil
}

// checkFeature gates a user flow on the ACL, a published price and the
// pool's feature switch, in that order.
func (t *tx) checkFeature(p *Pool, account, feature string) error {
	if t.isBlocked(account, feature) {
		return fmt.Errorf("%w: %s for %s", ErrAccountBlocked, account, feature)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrPriceNotSet, p.Name)
	}
	if !t.store.features[featureKey{feature: feature, pool: p.Name}] {
		return fmt.Errorf("%w: %s's %s", ErrFeatureClosed, p.Name, feature)
	}
	return nil
}
