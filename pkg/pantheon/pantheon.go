// Package pantheon manages the community artwork registry and the rating
// rotation fed by the random_art command.
package pantheon

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// Artwork is one pantheon entry.
type Artwork struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AuthorName  string `json:"author_name"`
	ImageURL    string `json:"image_url"`
	Location    string `json:"location"`
	CreatedBy   string `json:"created_by"`
}

// Rating is the notation-side record for one artwork: votes and rotation
// bookkeeping.
type Rating struct {
	ArtworkID     string    `json:"artwork_id"`
	Votes         []int     `json:"votes"`
	AverageRating float64   `json:"average_rating"`
	LastShown     time.Time `json:"last_shown"`
	TimesShown    int       `json:"times_shown"`
}

// Service wraps the pantheon and notation state files.
type Service struct {
	pantheon *config.Store
	notation *config.Store
	randInt  func(n int) int
}

func NewService(pantheonStore, notationStore *config.Store) *Service {
	return &Service{pantheon: pantheonStore, notation: notationStore, randInt: rand.Intn}
}

// Artworks lists every registered artwork.
func (s *Service) Artworks() []Artwork {
	var out []Artwork
	raw := s.pantheon.Get("artworks").Raw
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.WarnCF("pantheon", "artwork list unreadable", map[string]any{"error": err.Error()})
		return nil
	}
	return out
}

// Add registers a new artwork. The id is derived from the current count
// and the clock so deletions never recycle ids.
func (s *Service) Add(art Artwork) (Artwork, error) {
	if art.Title == "" {
		return Artwork{}, faults.Newf(faults.InvalidInput, "artwork title required")
	}
	if art.AuthorName == "" {
		art.AuthorName = "Anonymous"
	}
	art.ID = fmt.Sprintf("art-%d", time.Now().UnixNano())

	list := append(s.Artworks(), art)
	if err := s.saveArtworks(list); err != nil {
		return Artwork{}, err
	}
	logger.InfoCF("pantheon", "artwork added", map[string]any{"id": art.ID, "title": art.Title})
	return art, nil
}

// Update replaces the artwork with the same id.
func (s *Service) Update(art Artwork) error {
	list := s.Artworks()
	for i := range list {
		if list[i].ID == art.ID {
			list[i] = art
			return s.saveArtworks(list)
		}
	}
	return faults.Newf(faults.InvalidInput, "artwork %s not found", art.ID)
}

// Delete removes an artwork and its rating record.
func (s *Service) Delete(id string) error {
	list := s.Artworks()
	kept := list[:0]
	for _, a := range list {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(list) {
		return faults.Newf(faults.InvalidInput, "artwork %s not found", id)
	}
	if err := s.saveArtworks(kept); err != nil {
		return err
	}

	ratings := s.ratings()
	for i, r := range ratings {
		if r.ArtworkID == id {
			return s.saveRatings(append(ratings[:i], ratings[i+1:]...))
		}
	}
	return nil
}

// Next picks the artwork to show for rating: never-shown artworks first
// (random among them), otherwise the one shown longest ago. Bookkeeping is
// updated before returning.
func (s *Service) Next() (Artwork, Rating, error) {
	arts := s.Artworks()
	if len(arts) == 0 {
		return Artwork{}, Rating{}, faults.Newf(faults.InvalidInput, "pantheon is empty")
	}

	ratings := s.ratings()
	byID := make(map[string]*Rating, len(ratings))
	for i := range ratings {
		byID[ratings[i].ArtworkID] = &ratings[i]
	}

	var neverShown []Artwork
	for _, a := range arts {
		if _, ok := byID[a.ID]; !ok {
			neverShown = append(neverShown, a)
		}
	}

	var chosen Artwork
	if len(neverShown) > 0 {
		chosen = neverShown[s.randInt(len(neverShown))]
		ratings = append(ratings, Rating{ArtworkID: chosen.ID, LastShown: time.Now(), TimesShown: 1})
	} else {
		sort.Slice(ratings, func(i, j int) bool { return ratings[i].LastShown.Before(ratings[j].LastShown) })
		oldest := &ratings[0]
		oldest.LastShown = time.Now()
		oldest.TimesShown++
		for _, a := range arts {
			if a.ID == oldest.ArtworkID {
				chosen = a
				break
			}
		}
		if chosen.ID == "" {
			return Artwork{}, Rating{}, faults.Newf(faults.StoreError, "rating %s has no artwork", oldest.ArtworkID)
		}
	}

	if err := s.saveRatings(ratings); err != nil {
		return Artwork{}, Rating{}, err
	}
	for _, r := range ratings {
		if r.ArtworkID == chosen.ID {
			return chosen, r, nil
		}
	}
	return chosen, Rating{}, nil
}

// Vote records a 1-5 rating for an artwork and refreshes its average.
func (s *Service) Vote(artworkID string, stars int) (float64, error) {
	if stars < 1 || stars > 5 {
		return 0, faults.Newf(faults.InvalidInput, "rating %d out of range 1-5", stars)
	}
	ratings := s.ratings()
	for i := range ratings {
		if ratings[i].ArtworkID != artworkID {
			continue
		}
		r := &ratings[i]
		r.Votes = append(r.Votes, stars)
		sum := 0
		for _, v := range r.Votes {
			sum += v
		}
		r.AverageRating = float64(sum) / float64(len(r.Votes))
		if err := s.saveRatings(ratings); err != nil {
			return 0, err
		}
		return r.AverageRating, nil
	}
	return 0, faults.Newf(faults.InvalidInput, "artwork %s has not been shown yet", artworkID)
}

func (s *Service) ratings() []Rating {
	var out []Rating
	raw := s.notation.Get("artworks").Raw
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.WarnCF("pantheon", "notation list unreadable", map[string]any{"error": err.Error()})
		return nil
	}
	return out
}

func (s *Service) saveArtworks(list []Artwork) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.pantheon.SetRaw("artworks", raw)
}

func (s *Service) saveRatings(list []Rating) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.notation.SetRaw("artworks", raw)
}
