// Package terminology resolves named code sets for membership matching.
package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

// Resolver answers membership questions against named sets.
type Resolver interface {
	Contains(ctx context.Context, set string, code clinical.Code) (bool, error)
}

// ValueSet is the part of a FHIR ValueSet the registry reads.
type ValueSet struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	URL          string `json:"url,omitempty"`
	Name         string `json:"name,omitempty"`
	Compose      *struct {
		Include []struct {
			System  string `json:"system"`
			Concept []struct {
				Code string `json:"code"`
			} `json:"concept,omitempty"`
		} `json:"include,omitempty"`
	} `json:"compose,omitempty"`
	Expansion *struct {
		Contains []struct {
			System string `json:"system"`
			Code   string `json:"code"`
		} `json:"contains,omitempty"`
	} `json:"expansion,omitempty"`
}

type codeSet map[clinical.Code]struct{}

// Registry is an in-memory Resolver. Sets are addressable by id, canonical url and name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]codeSet
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]codeSet)}
}

// Add indexes the enumerated codes of vs. Intensional includes (filters) are not evaluated.
func (r *Registry) Add(vs ValueSet) error {
	if vs.ResourceType != "" && vs.ResourceType != "ValueSet" {
		return fmt.Errorf("[Registry Add] expected ValueSet, got %q", vs.ResourceType)
	}
	set := make(codeSet)
	if vs.Compose != nil {
		for _, inc := range vs.Compose.Include {
			for _, c := range inc.Concept {
				set[clinical.Code{System: inc.System, Code: c.Code}] = struct{}{}
			}
		}
	}
	if vs.Expansion != nil {
		for _, c := range vs.Expansion.Contains {
			set[clinical.Code{System: c.System, Code: c.Code}] = struct{}{}
		}
	}
	if len(set) == 0 {
		log.Warn().Str("valueSet", vs.ID).Msg("value set has no enumerated codes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range []string{vs.ID, vs.URL, vs.Name} {
		if key != "" {
			r.sets[key] = set
		}
	}
	return nil
}

// Contains matches on system and code. A code without a system matches the code in any system.
func (r *Registry) Contains(_ context.Context, name string, code clinical.Code) (bool, error) {
	r.mu.RLock()
	set, ok := r.sets[name]
	r.mu.RUnlock()
	if !ok {
		return false, apperrors.Wrapf(apperrors.ErrTerminologySetUnresolvable, "%q", name)
	}
	if _, ok := set[code]; ok {
		return true, nil
	}
	if code.System == "" {
		for member := range set {
			if member.Code == code.Code {
				return true, nil
			}
		}
	}
	return false, nil
}

// LoadDir adds every *.json ValueSet in dir. An empty dir yields an empty registry.
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	if dir == "" {
		return reg, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("[LoadDir] %w", err)
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[LoadDir] %w", err)
		}
		var vs ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return nil, fmt.Errorf("[LoadDir] %s: %w", filepath.Base(path), err)
		}
		if vs.ID == "" {
			vs.ID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		if err := reg.Add(vs); err != nil {
			return nil, fmt.Errorf("[LoadDir] %s: %w", filepath.Base(path), err)
		}
	}
	log.Info().Int("files", len(paths)).Str("dir", dir).Msg("terminology sets loaded")
	return reg, nil
}
