package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"heartline/internal/models"
	"heartline/internal/store"
)

// Signal claim namespaces
const (
	signalFingerprint = "fp:"
	signalComposite   = "composite:"
)

var fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// IdentityResolver maps request metadata to exactly one ledger key and creates the
// ledger entry on first sight. Priority: authenticated user id, then device fingerprint,
// then a hash of IP, user agent and accept-language.
type IdentityResolver struct {
	store         store.LedgerStore
	ledger        *QuotaLedger
	welcomeCredit int
	metrics       *Metrics
}

// NewIdentityResolver creates a resolver granting welcomeCredit to genuinely new keys
func NewIdentityResolver(s store.LedgerStore, ledger *QuotaLedger, welcomeCredit int, metrics *Metrics) *IdentityResolver {
	return &IdentityResolver{store: s, ledger: ledger, welcomeCredit: welcomeCredit, metrics: metrics}
}

// KeyFor derives the identity key without touching the store
func (r *IdentityResolver) KeyFor(req models.IdentityRequest) (string, models.IdentityKind, error) {
	if id := strings.TrimSpace(req.UserID); id != "" {
		return models.RegisteredKeyPrefix + id, models.IdentityRegistered, nil
	}
	if fp := fingerprintID(req.DeviceFingerprint); fp != "" {
		return models.DeviceKeyPrefix + fp, models.IdentityDevice, nil
	}
	if c := compositeHash(req); c != "" {
		return models.GuestKeyPrefix + c, models.IdentityGuest, nil
	}
	return "", "", ErrIdentityUnresolvable
}

// Resolve returns the caller's identity and ledger entry, creating the entry if needed.
// Concurrent first contacts for one key create it once; only that creation can carry the welcome credit.
func (r *IdentityResolver) Resolve(ctx context.Context, req models.IdentityRequest) (models.Identity, *models.LedgerEntry, error) {
	key, kind, err := r.KeyFor(req)
	if err != nil {
		return models.Identity{}, nil, err
	}

	existing, err := r.store.Get(ctx, key)
	if err != nil {
		return models.Identity{}, nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	if existing != nil {
		r.metrics.RecordIdentityResolution(string(kind), false)
		return models.Identity{Key: key, Kind: kind}, existing, nil
	}

	eligible, err := r.claimSignals(ctx, key, kind, req)
	if err != nil {
		return models.Identity{}, nil, err
	}

	seed := &models.LedgerEntry{
		Key:                    key,
		Kind:                   kind,
		Platform:               req.Platform,
		WelcomeGranted:         eligible,
		PreferredPersonaGender: models.GenderBoth,
		AccessiblePersonaIDs:   r.ledger.AccessibleIDs(models.GenderBoth),
	}
	if eligible {
		seed.Balance = r.welcomeCredit
	}

	entry, created, err := r.store.GetOrCreate(ctx, seed)
	if err != nil {
		return models.Identity{}, nil, fmt.Errorf("create %s: %w", key, err)
	}

	if created {
		if entry.WelcomeGranted {
			r.metrics.RecordWelcomeGrant()
			log.Printf("🎁 [IDENTITY] New %s identity %s granted %d diamonds", kind, key, entry.Balance)
		} else {
			log.Printf("⚠️  [IDENTITY] New %s identity %s shares a device signal with another key, welcome withheld", kind, key)
		}
	}
	r.metrics.RecordIdentityResolution(string(kind), created)

	return models.Identity{Key: key, Kind: kind, IsNewlyCreated: created}, entry, nil
}

// claimSignals claims every device signal present on the request for key and reports
// whether key may receive the welcome credit. Anonymous keys are ineligible when any
// signal already belongs to another key. Registered keys always qualify once per account
// but still claim, so a later anonymous key on the same device gets nothing.
func (r *IdentityResolver) claimSignals(ctx context.Context, key string, kind models.IdentityKind, req models.IdentityRequest) (bool, error) {
	eligible := true
	for _, signal := range deviceSignals(req) {
		owner, err := r.store.ClaimSignal(ctx, signal, key)
		if err != nil {
			return false, fmt.Errorf("claim signal: %w", err)
		}
		if owner != key && kind != models.IdentityRegistered {
			eligible = false
		}
	}
	return eligible, nil
}

// deviceSignals lists the claimable signals of a request, strongest first
func deviceSignals(req models.IdentityRequest) []string {
	var signals []string
	if fp := fingerprintID(req.DeviceFingerprint); fp != "" {
		signals = append(signals, signalFingerprint+fp)
	}
	if c := compositeHash(req); c != "" {
		signals = append(signals, signalComposite+c)
	}
	return signals
}

// fingerprintID uses simple fingerprints verbatim and hashes anything else
func fingerprintID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if fingerprintPattern.MatchString(raw) {
		return raw
	}
	return shortHash(raw)
}

// compositeHash is empty when the request carries none of the three network signals
func compositeHash(req models.IdentityRequest) string {
	ip := strings.TrimSpace(req.IP)
	ua := strings.TrimSpace(req.UserAgent)
	lang := strings.TrimSpace(req.AcceptLanguage)
	if ip == "" && ua == "" && lang == "" {
		return ""
	}
	return shortHash(ip + "\x00" + ua + "\x00" + lang)
}

func shortHash(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
