package memory

import (
	"fmt"
	"strings"

	"github.com/Vasu1712/scenyx-connect/internal/models"
)

// ParseSeed reads universes from "id:owner[:inactive],..." so a local
// memory-backed server has personas to converse with.
func ParseSeed(raw string) ([]models.Universe, error) {
	var universes []models.Universe
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("memory: bad seed entry %q, want id:owner[:inactive]", entry)
		}
		u := models.Universe{ID: parts[0], OwnerID: parts[1], Active: true}
		if len(parts) == 3 {
			if parts[2] != "inactive" {
				return nil, fmt.Errorf("memory: bad seed flag %q in %q", parts[2], entry)
			}
			u.Active = false
		}
		universes = append(universes, u)
	}
	return universes, nil
}
