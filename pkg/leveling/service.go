package leveling

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MessageXP configures per-message accrual.
type MessageXP struct {
	Enabled      bool  `json:"enabled"`
	PerMessage   int   `json:"xp_per_message"`
	CooldownSecs int64 `json:"cooldown"`
}

// CharacterXP configures per-character accrual with a windowed budget.
type CharacterXP struct {
	Enabled      bool  `json:"enabled"`
	PerCharacter int   `json:"xp_per_character"`
	Limit        int   `json:"character_limit"`
	CooldownSecs int64 `json:"cooldown"`
}

// RoleReward grants a role when a user reaches Level.
type RoleReward struct {
	Level  int    `json:"level"`
	RoleID string `json:"role_id"`
}

// Settings is the leveling policy block of leveling_data.json.
type Settings struct {
	Enabled    bool        `json:"enabled"`
	Messages   MessageXP   `json:"messages"`
	Characters CharacterXP `json:"characters"`
	Roles      []RoleReward `json:"roles"`
}

// DefaultSettings mirrors the seeded leveling configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:    true,
		Messages:   MessageXP{Enabled: true, PerMessage: 20, CooldownSecs: 10},
		Characters: CharacterXP{PerCharacter: 1, Limit: 20, CooldownSecs: 10},
	}
}

// Record is one user's XP state. Level caches LevelForXP(XP) and is
// recomputed on every mutation.
type Record struct {
	XP              int   `json:"xp"`
	Level           int   `json:"level"`
	LastMessageUnix int64 `json:"last_message"`
	CharCount       int   `json:"char_count"`
	CharWindowUnix  int64 `json:"char_window"`
}

// Gain is the outcome of one message worth of accrual.
type Gain struct {
	XP       int
	OldLevel int
	NewLevel int
}

// LeveledUp reports whether the gain crossed at least one level boundary.
func (g Gain) LeveledUp() bool { return g.NewLevel > g.OldLevel }

// Service owns the in-process XP record map. All mutation goes through
// HandleMessage; renders read through Snapshot and Rank.
type Service struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

func NewService() *Service {
	return &Service{records: make(map[string]*Record), now: time.Now}
}

// Load replaces the record map, recomputing each cached level.
func (s *Service) Load(records map[string]*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record, len(records))
	for id, r := range records {
		cp := *r
		cp.Level = LevelForXP(cp.XP)
		s.records[id] = &cp
	}
}

// Export copies the record map for persistence.
func (s *Service) Export() map[string]*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Record, len(s.records))
	for id, r := range s.records {
		cp := *r
		out[id] = &cp
	}
	return out
}

// HandleMessage applies message and character accrual for one inbound
// message under the given policy.
func (s *Service) HandleMessage(userID, content string, cfg Settings) Gain {
	if !cfg.Enabled {
		return Gain{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[userID]
	if rec == nil {
		rec = &Record{Level: 1}
		s.records[userID] = rec
	}
	now := s.now().Unix()

	gained := 0
	if cfg.Messages.Enabled && now-rec.LastMessageUnix >= cfg.Messages.CooldownSecs {
		gained += cfg.Messages.PerMessage
		rec.LastMessageUnix = now
	}

	if cfg.Characters.Enabled {
		chars := utf8.RuneCountInString(strings.ReplaceAll(content, " ", ""))
		if now-rec.CharWindowUnix >= cfg.Characters.CooldownSecs {
			rec.CharCount = 0
			rec.CharWindowUnix = now
		}
		if rec.CharCount+chars <= cfg.Characters.Limit {
			gained += chars * cfg.Characters.PerCharacter
			rec.CharCount += chars
		}
	}

	old := LevelForXP(rec.XP)
	rec.XP += gained
	rec.Level = LevelForXP(rec.XP)
	return Gain{XP: gained, OldLevel: old, NewLevel: rec.Level}
}

// Snapshot returns a copy of the user's record, a fresh level-1 record for
// unknown users.
func (s *Service) Snapshot(userID string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		return *rec
	}
	return Record{Level: 1}
}

// Rank is 1 plus the number of users with strictly greater XP, so tied
// users share a rank and the next rank skips by the tie count.
func (s *Service) Rank(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	self := 0
	if rec, ok := s.records[userID]; ok {
		self = rec.XP
	}
	rank := 1
	for _, r := range s.records {
		if r.XP > self {
			rank++
		}
	}
	return rank
}

// RolesForLevel lists reward role IDs granted exactly at level. Granting
// itself is the channel adapter's job.
func RolesForLevel(cfg Settings, level int) []string {
	var out []string
	for _, r := range cfg.Roles {
		if r.Level == level {
			out = append(out, r.RoleID)
		}
	}
	return out
}
