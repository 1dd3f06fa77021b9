package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	cache "github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"heartline/internal/models"
	"heartline/internal/store"
)

// PersonaService serves the read-only persona catalogue and the per-identity persona
// settings. Settings reads are cached; writes go through to the repository and evict.
type PersonaService struct {
	mu       sync.RWMutex
	personas map[int]models.Persona
	pool     models.PersonaPool

	settings      store.SettingsRepository
	settingsCache *cache.Cache
}

// NewPersonaService creates a service with an empty catalogue
func NewPersonaService(settings store.SettingsRepository) *PersonaService {
	return &PersonaService{
		personas:      make(map[int]models.Persona),
		settings:      settings,
		settingsCache: cache.New(10*time.Minute, 5*time.Minute),
	}
}

// LoadCatalogueFile replaces the catalogue with the contents of a YAML file
func (s *PersonaService) LoadCatalogueFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read persona catalogue: %w", err)
	}
	return s.LoadCatalogue(data)
}

// LoadCatalogue parses YAML and swaps the catalogue in one step. Invalid input leaves
// the current catalogue untouched.
func (s *PersonaService) LoadCatalogue(data []byte) error {
	var catalogue models.PersonaCatalogue
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return fmt.Errorf("failed to parse persona catalogue: %w", err)
	}

	personas := make(map[int]models.Persona, len(catalogue.Personas))
	for _, p := range catalogue.Personas {
		if p.ID <= 0 {
			return fmt.Errorf("persona %q has invalid id %d", p.Name, p.ID)
		}
		if _, dup := personas[p.ID]; dup {
			return fmt.Errorf("duplicate persona id %d", p.ID)
		}
		if _, ok := models.ParseGender(string(p.Gender)); !ok || p.Gender == models.GenderBoth {
			return fmt.Errorf("persona %d has invalid gender %q", p.ID, p.Gender)
		}
		if p.Tier == "" {
			p.Tier = models.PersonaTierFree
		}
		personas[p.ID] = p
	}

	s.mu.Lock()
	s.personas = personas
	s.pool = catalogue.Pool()
	s.mu.Unlock()

	log.Printf("✅ [PERSONA] Catalogue loaded: %d personas (%d male, %d female)",
		len(personas), len(catalogue.Pool().Male), len(catalogue.Pool().Female))
	return nil
}

// Get returns a persona by id
func (s *PersonaService) Get(id int) (models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.personas[id]
	if !ok {
		return models.Persona{}, ErrPersonaNotFound
	}
	return p, nil
}

// List returns every persona ordered by id
func (s *PersonaService) List() []models.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Persona, 0, len(s.personas))
	for _, p := range s.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pool returns the gender-partitioned id pool in catalogue order
func (s *PersonaService) Pool() models.PersonaPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

func settingsCacheKey(identityKey string, personaID int) string {
	return fmt.Sprintf("%s|%d", identityKey, personaID)
}

// Settings returns the identity's settings for a persona, or the defaults when none exist
func (s *PersonaService) Settings(ctx context.Context, identityKey string, personaID int) (*models.PersonaSettings, error) {
	if _, err := s.Get(personaID); err != nil {
		return nil, err
	}

	cacheKey := settingsCacheKey(identityKey, personaID)
	if cached, found := s.settingsCache.Get(cacheKey); found {
		return copySettings(cached.(*models.PersonaSettings)), nil
	}

	settings, err := s.settings.Get(ctx, identityKey, personaID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = models.DefaultPersonaSettings(identityKey, personaID)
	}

	s.settingsCache.Set(cacheKey, copySettings(settings), cache.DefaultExpiration)
	return settings, nil
}

// UpdateSettings applies a partial update on top of the current settings
func (s *PersonaService) UpdateSettings(ctx context.Context, identityKey string, personaID int, req models.UpdatePersonaSettingsRequest) (*models.PersonaSettings, error) {
	current, err := s.Settings(ctx, identityKey, personaID)
	if err != nil {
		return nil, err
	}

	if req.ActiveTraits != nil {
		traits := make(map[string]int, len(req.ActiveTraits))
		for name, value := range req.ActiveTraits {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			traits[name] = clamp(value, 0, 100)
		}
		current.ActiveTraits = traits
	}
	if req.RelationshipLabel != nil {
		current.RelationshipLabel = strings.TrimSpace(*req.RelationshipLabel)
	}
	if req.ConversationStyle != nil {
		current.ConversationStyle = strings.TrimSpace(*req.ConversationStyle)
	}
	if req.EmotionalExpressiveness != nil {
		current.EmotionalExpressiveness = clamp(*req.EmotionalExpressiveness, 0, 100)
	}
	if req.InterestTopics != nil {
		topics := make([]string, 0, len(req.InterestTopics))
		for _, t := range req.InterestTopics {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		current.InterestTopics = topics
	}
	current.IdentityKey = identityKey
	current.PersonaID = personaID
	current.UpdatedAt = time.Now().UTC()

	if err := s.settings.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save persona settings: %w", err)
	}
	s.settingsCache.Delete(settingsCacheKey(identityKey, personaID))

	return current, nil
}

// WatchCatalogue reloads the catalogue file whenever it changes until ctx is done
func (s *PersonaService) WatchCatalogue(ctx context.Context, filePath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				if err := s.LoadCatalogueFile(absPath); err != nil {
					log.Printf("❌ [PERSONA] Reload of %s failed, keeping previous catalogue: %v", filePath, err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}

func copySettings(s *models.PersonaSettings) *models.PersonaSettings {
	out := *s
	out.ActiveTraits = make(map[string]int, len(s.ActiveTraits))
	for k, v := range s.ActiveTraits {
		out.ActiveTraits[k] = v
	}
	out.InterestTopics = append([]string{}, s.InterestTopics...)
	return &out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
