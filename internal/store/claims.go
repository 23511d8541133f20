package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dotcommander/hivehook/internal/models"
)

// ClaimsDoc is the on-disk shape of claims/claims.json. The orchestrator
// reads the same document, so the three top-level maps must always be
// present, even when empty.
type ClaimsDoc struct {
	Claims    map[string]models.Claim `json:"claims"`
	Stealable map[string]models.Claim `json:"stealable"`
	Contests  map[string]any          `json:"contests"`
}

func (d *ClaimsDoc) init() {
	if d.Claims == nil {
		d.Claims = map[string]models.Claim{}
	}
	if d.Stealable == nil {
		d.Stealable = map[string]models.Claim{}
	}
	if d.Contests == nil {
		d.Contests = map[string]any{}
	}
}

// ClaimResult reports the outcome of a Claim attempt. Conflicts are results,
// not errors: callers translate Holder into a block decision or a log line.
type ClaimResult struct {
	Granted    bool
	Reacquired bool
	Stolen     bool
	// Holder is the existing claim on conflict, or the stolen claim's prior
	// state when Stolen is true.
	Holder *models.Claim
}

// Claim attempts to take an exclusive claim on issue id for claimant.
// Semantics:
//   - free id: granted, status active.
//   - held by the same claimant: idempotent success; claimedAt is NOT
//     refreshed.
//   - held by another claimant: not granted, Holder carries the owner.
//   - stealable id: stolen by the new claimant regardless of who marked it.
func (s *FileStore) Claim(id, claimant, context string) (ClaimResult, error) {
	var res ClaimResult
	err := updateFile(s.claimsPath(), func(doc *ClaimsDoc) (bool, error) {
		doc.init()

		if existing, ok := doc.Claims[id]; ok {
			if existing.Claimant == claimant {
				res = ClaimResult{Granted: true, Reacquired: true}
				return false, nil
			}
			holder := existing
			res = ClaimResult{Granted: false, Holder: &holder}
			return false, nil
		}

		if prior, ok := doc.Stealable[id]; ok {
			delete(doc.Stealable, id)
			doc.Claims[id] = models.Claim{
				Claimant:     claimant,
				Status:       models.ClaimStatusActive,
				ClaimedAt:    models.Timestamp(s.now()),
				Context:      context,
				StealContext: prior.StealContext,
			}
			stolen := prior
			res = ClaimResult{Granted: true, Stolen: true, Holder: &stolen}
			return true, nil
		}

		doc.Claims[id] = models.Claim{
			Claimant:  claimant,
			Status:    models.ClaimStatusActive,
			ClaimedAt: models.Timestamp(s.now()),
			Context:   context,
		}
		res = ClaimResult{Granted: true}
		return true, nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return res, nil
}

// Release removes the claim on id held by claimant.
// Returns models.ErrNotFound when no claim exists, models.ErrNotAuthorized
// when claimant does not hold it. The released claim is returned on success.
func (s *FileStore) Release(id, claimant string) (models.Claim, error) {
	var released models.Claim
	err := updateFile(s.claimsPath(), func(doc *ClaimsDoc) (bool, error) {
		doc.init()
		existing, ok := doc.Claims[id]
		if !ok {
			if st, ok := doc.Stealable[id]; ok && st.Claimant == claimant {
				// Owner cleaning up after a stuck-detector pass.
				delete(doc.Stealable, id)
				released = st
				return true, nil
			}
			return false, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
		}
		if existing.Claimant != claimant {
			return false, fmt.Errorf("claim %s held by %s: %w", id, existing.Claimant, models.ErrNotAuthorized)
		}
		delete(doc.Claims, id)
		released = existing
		return true, nil
	})
	if err != nil {
		return models.Claim{}, err
	}
	return released, nil
}

// MarkStealable moves the claim on id into the stealable set with the given
// reason. availableFor scopes who may steal ("" = anyone). The original
// claimant is preserved so dashboards can attribute the abandonment.
func (s *FileStore) MarkStealable(id, reason, stealContext, availableFor string) error {
	return updateFile(s.claimsPath(), func(doc *ClaimsDoc) (bool, error) {
		doc.init()
		existing, ok := doc.Claims[id]
		if !ok {
			return false, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
		}
		delete(doc.Claims, id)
		existing.Status = models.ClaimStatusStealable
		existing.StealReason = reason
		existing.StealContext = stealContext
		existing.MarkedStealableAt = models.Timestamp(s.now())
		existing.AvailableFor = availableFor
		doc.Stealable[id] = existing
		return true, nil
	})
}

// UpdateProgress sets the progress percentage on an active claim.
func (s *FileStore) UpdateProgress(id, claimant string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return updateFile(s.claimsPath(), func(doc *ClaimsDoc) (bool, error) {
		doc.init()
		existing, ok := doc.Claims[id]
		if !ok {
			return false, fmt.Errorf("claim %s: %w", id, models.ErrNotFound)
		}
		if existing.Claimant != claimant {
			return false, fmt.Errorf("claim %s held by %s: %w", id, existing.Claimant, models.ErrNotAuthorized)
		}
		existing.Progress = progress
		doc.Claims[id] = existing
		return true, nil
	})
}

// MarkSessionStealable moves every active claim whose claimant matches
// agent:{sessionID}:* into the stealable set. Returns the moved issue ids.
func (s *FileStore) MarkSessionStealable(sessionID, reason string) ([]string, error) {
	prefix := "agent:" + sessionID + ":"
	var moved []string
	err := updateFile(s.claimsPath(), func(doc *ClaimsDoc) (bool, error) {
		doc.init()
		for id, c := range doc.Claims {
			if !strings.HasPrefix(c.Claimant, prefix) {
				continue
			}
			delete(doc.Claims, id)
			c.Status = models.ClaimStatusStealable
			c.StealReason = reason
			c.MarkedStealableAt = models.Timestamp(s.now())
			doc.Stealable[id] = c
			moved = append(moved, id)
		}
		return len(moved) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Snapshot returns the current claim store without taking the lock.
// Missing or corrupt files read as empty.
func (s *FileStore) Snapshot() ClaimsDoc {
	var doc ClaimsDoc
	readJSON(s.claimsPath(), &doc)
	doc.init()
	return doc
}

// ClaimFilter selects claims for ListClaims. Zero value matches everything
// active.
type ClaimFilter struct {
	Status   models.ClaimStatus
	Claimant string
	Prefix   string
}

// ClaimInfo pairs an issue id with its claim for listing.
type ClaimInfo struct {
	ID    string       `json:"id"`
	Claim models.Claim `json:"claim"`
}

// ListClaims returns claims matching the filter, sorted by issue id.
func (s *FileStore) ListClaims(f ClaimFilter) []ClaimInfo {
	doc := s.Snapshot()
	src := doc.Claims
	if f.Status == models.ClaimStatusStealable {
		src = doc.Stealable
	}
	out := make([]ClaimInfo, 0, len(src))
	for id, c := range src {
		if f.Claimant != "" && c.Claimant != f.Claimant {
			continue
		}
		if f.Prefix != "" && !strings.HasPrefix(id, f.Prefix) {
			continue
		}
		out = append(out, ClaimInfo{ID: id, Claim: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
