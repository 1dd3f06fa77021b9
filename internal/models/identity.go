package models

import (
	"sort"
	"strings"
	"time"
)

// IdentityKind tells which signal produced an identity key
type IdentityKind string

const (
	IdentityRegistered IdentityKind = "registered" // authenticated session user id
	IdentityDevice     IdentityKind = "device"     // explicit device fingerprint header
	IdentityGuest      IdentityKind = "guest"      // synthesized from IP + user-agent + accept-language
)

// Key prefixes keep the three identity namespaces disjoint
const (
	RegisteredKeyPrefix = "user:"
	DeviceKeyPrefix     = "device:"
	GuestKeyPrefix      = "guest:"
)

// KindForKey recovers the identity kind from a key prefix. Unprefixed keys are treated as guests.
func KindForKey(key string) IdentityKind {
	switch {
	case strings.HasPrefix(key, RegisteredKeyPrefix):
		return IdentityRegistered
	case strings.HasPrefix(key, DeviceKeyPrefix):
		return IdentityDevice
	default:
		return IdentityGuest
	}
}

// Platform is the client platform reported in the X-Platform header
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformUnknown Platform = ""
)

// ParsePlatform normalizes a platform header value. Unknown values map to PlatformUnknown.
func ParsePlatform(raw string) Platform {
	switch Platform(raw) {
	case PlatformWeb, PlatformAndroid, PlatformIOS:
		return Platform(raw)
	}
	return PlatformUnknown
}

// IdentityRequest carries the request metadata the resolver inspects.
// The body never participates in identity resolution.
type IdentityRequest struct {
	UserID            string // from an authenticated session, empty for anonymous callers
	DeviceFingerprint string // X-Device-Fingerprint header
	Platform          Platform
	IP                string
	UserAgent         string
	AcceptLanguage    string
}

// Identity is the outcome of resolving a request to exactly one ledger key
type Identity struct {
	Key            string       `json:"key"`
	Kind           IdentityKind `json:"kind"`
	IsNewlyCreated bool         `json:"is_new"`
}

// IsRegistered reports whether the identity came from an authenticated session
func (i Identity) IsRegistered() bool {
	return i.Kind == IdentityRegistered
}

// Gender is the persona-gender preference filter
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderBoth   Gender = "both"
)

// ParseGender validates a gender preference value
func ParseGender(raw string) (Gender, bool) {
	switch Gender(raw) {
	case GenderMale, GenderFemale, GenderBoth:
		return Gender(raw), true
	}
	return "", false
}

// LedgerEntry is the quota record held for one identity key.
// Balance is never negative; WelcomeGranted is decided once, at creation.
type LedgerEntry struct {
	Key                    string       `bson:"_id" json:"key"`
	Kind                   IdentityKind `bson:"kind" json:"kind"`
	Platform               Platform     `bson:"platform,omitempty" json:"platform,omitempty"`
	Balance                int          `bson:"balance" json:"balance"`
	WelcomeGranted         bool         `bson:"welcomeGranted" json:"welcome_granted"`
	PreferredPersonaGender Gender       `bson:"preferredPersonaGender" json:"preferred_persona_gender"`
	AccessiblePersonaIDs   []int        `bson:"accessiblePersonaIds" json:"accessible_persona_ids"`
	CreatedAt              time.Time    `bson:"createdAt" json:"created_at"`
	LastActivityAt         time.Time    `bson:"lastActivityAt" json:"last_activity_at"`
}

// Clone returns a deep copy so callers never share the persona id slice
func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.AccessiblePersonaIDs != nil {
		out.AccessiblePersonaIDs = append([]int(nil), e.AccessiblePersonaIDs...)
	}
	return &out
}

// PersonaPool is the global persona id pool partitioned by gender
type PersonaPool struct {
	Male   []int `yaml:"male" json:"male"`
	Female []int `yaml:"female" json:"female"`
}

// AccessibleIDs computes the accessible persona ids for a gender preference by taking
// the first perGender ids of each selected partition. The result is sorted and deduplicated.
func (p PersonaPool) AccessibleIDs(gender Gender, perGender int) []int {
	take := func(ids []int) []int {
		if perGender >= 0 && len(ids) > perGender {
			return ids[:perGender]
		}
		return ids
	}

	var picked []int
	switch gender {
	case GenderMale:
		picked = append(picked, take(p.Male)...)
	case GenderFemale:
		picked = append(picked, take(p.Female)...)
	default:
		picked = append(picked, take(p.Male)...)
		picked = append(picked, take(p.Female)...)
	}

	seen := make(map[int]bool, len(picked))
	out := make([]int, 0, len(picked))
	for _, id := range picked {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// SessionResponse is returned by the get-or-create session endpoint
type SessionResponse struct {
	Key                    string       `json:"key"`
	Kind                   IdentityKind `json:"kind"`
	IsNew                  bool         `json:"is_new"`
	Balance                int          `json:"balance"`
	WelcomeGranted         bool         `json:"welcome_granted"`
	PreferredPersonaGender Gender       `json:"preferred_persona_gender"`
	AccessiblePersonaIDs   []int        `json:"accessible_persona_ids"`
}

// UpdatePreferenceRequest is the body of PUT /api/session/preferences
type UpdatePreferenceRequest struct {
	Gender string `json:"gender"`
}

// QuotaAmountRequest is the body of the explicit debit / credit endpoints
type QuotaAmountRequest struct {
	Key    string `json:"key,omitempty"` // credit only: target key for purchase fulfillment
	Amount int    `json:"amount"`
}
