// Package stockage implements the shared item inventory behind the
// add_stock command: free-form item requests are parsed against the
// rules in item_request.json, matched against the mirrored value
// catalog, and accumulated into stockage_data.json.
package stockage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

const matchThreshold = 0.3

// Status of a stocked item. Clean is the default; Dupe items are
// tracked separately under a suffixed stock key.
const (
	StatusClean = "Clean"
	StatusDupe  = "Dupe"
)

// Entry is one line of the stock ledger. Catalog fields are carried
// verbatim so value updates can refresh them without touching quantity.
type Entry struct {
	Quantity int               `json:"quantity"`
	Status   string            `json:"status"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Item is one parsed request before catalog matching.
type Item struct {
	Text     string
	Quantity int
	Type     string
	Year     string
	Status   string
}

// Result pairs a parsed item with its catalog match, if any.
type Result struct {
	Item        Item
	Found       bool
	Name        string
	Fields      map[string]string
	Ambiguous   []string
	CatalogMiss bool
}

// Service wraps the three stockage state files.
type Service struct {
	rules   *config.Store
	catalog *config.Store
	stock   *config.Store
}

func NewService(rulesStore, catalogStore, stockStore *config.Store) *Service {
	return &Service{rules: rulesStore, catalog: catalogStore, stock: stockStore}
}

var (
	separatorRe = regexp.MustCompile(`(?i)\s*\+\s*|\s*,\s*|\s+and\s+`)
	parenRe     = regexp.MustCompile(`\s*\([^)]*\)`)
	hyperRe     = regexp.MustCompile(`(?i)\bhyper\b`)

	quantityRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)x(\d+)`),
		regexp.MustCompile(`(?i)(\d+)x`),
		regexp.MustCompile(`(?i)quantity\s*(\d+)`),
		regexp.MustCompile(`(?i)qty\s*(\d+)`),
		regexp.MustCompile(`(?i)q\s*(\d+)`),
	}

	dupeWords  = map[string]bool{"d": true, "dupe": true, "duped": true, "duplicator": true, "duplicated": true}
	cleanWords = map[string]bool{"c": true, "clean": true}
)

// SplitItems breaks a request into individual item texts on the
// +, comma and "and" separators.
func SplitItems(text string) []string {
	var out []string
	for _, part := range separatorRe.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Parse extracts quantity, type, year and status from one item text.
func (s *Service) Parse(text string) Item {
	it := Item{Quantity: 1, Status: StatusClean}

	for _, re := range quantityRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				it.Quantity = n
			}
			text = strings.TrimSpace(re.ReplaceAllString(text, ""))
			break
		}
	}

	it.Type, text = s.extractType(text)
	if it.Type == "Hyperchrome" {
		it.Year, text = s.extractYear(text)
	}

	status, rest := extractStatus(text)
	text = rest
	if it.Type == "Hyperchrome" && status == StatusClean {
		status = s.hyperDefaultStatus(it.Year)
	}
	it.Status = status

	it.Text = strings.TrimSpace(text)
	return it
}

func (s *Service) extractType(text string) (string, string) {
	if hyperRe.MatchString(text) {
		return "Hyperchrome", strings.TrimSpace(hyperRe.ReplaceAllString(text, ""))
	}

	lower := strings.ToLower(text)
	bestType, bestAlias := "None", ""
	types := s.rules.Get("type").Map()
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, alias := range types[name].Array() {
			a := strings.ToLower(alias.String())
			if a == "" || !containsWord(lower, a) {
				continue
			}
			if len(a) > len(bestAlias) {
				bestType, bestAlias = name, a
			}
		}
	}
	if bestAlias == "" {
		return "None", text
	}
	re := regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(bestAlias), `\ `, `\s+`) + `\b`)
	return bestType, strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func (s *Service) extractYear(text string) (string, string) {
	for alias, year := range s.rules.Get("years_list.aliases").Map() {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
		if re.MatchString(text) {
			return year.String(), strings.TrimSpace(re.ReplaceAllString(text, ""))
		}
	}
	for year := range s.rules.Get("years_list.years").Map() {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(year) + `\b`)
		if re.MatchString(text) {
			return year, strings.TrimSpace(re.ReplaceAllString(text, ""))
		}
	}
	return "", text
}

func extractStatus(text string) (string, string) {
	fields := strings.Fields(text)
	for i, f := range fields {
		if dupeWords[strings.ToLower(f)] {
			return StatusDupe, strings.Join(append(fields[:i:i], fields[i+1:]...), " ")
		}
	}
	for i, f := range fields {
		if cleanWords[strings.ToLower(f)] {
			return StatusClean, strings.Join(append(fields[:i:i], fields[i+1:]...), " ")
		}
	}
	return StatusClean, text
}

func (s *Service) hyperDefaultStatus(year string) string {
	if year == "" {
		return StatusClean
	}
	for _, y := range s.rules.Get("no_duped_years").Array() {
		if y.String() == year {
			return StatusClean
		}
	}
	return StatusDupe
}

// Process parses a full request and matches every item against the
// catalog. When addToStock is set, found items are accumulated into the
// ledger.
func (s *Service) Process(itemsText string, addToStock bool) ([]Result, error) {
	parts := SplitItems(itemsText)
	if len(parts) == 0 {
		return nil, faults.Newf(faults.InvalidInput, "no items in request")
	}

	results := make([]Result, 0, len(parts))
	for _, part := range parts {
		it := s.Parse(part)
		res := Result{Item: it}

		name, fields, ambiguous := s.match(it)
		switch {
		case len(ambiguous) > 1:
			res.Ambiguous = ambiguous
		case name != "":
			res.Found = true
			res.Name = name
			res.Fields = fields
			if addToStock {
				if err := s.addEntry(name, fields, it.Status, it.Quantity); err != nil {
					return nil, err
				}
			}
		default:
			res.CatalogMiss = true
		}
		results = append(results, res)
	}

	if addToStock {
		found := 0
		for _, r := range results {
			if r.Found {
				found++
			}
		}
		logger.InfoCF("stockage", "stock updated", map[string]any{"items": found, "requested": len(parts)})
	}
	return results, nil
}

type candidate struct {
	name   string
	fields map[string]string
	score  float64
}

func (s *Service) match(it Item) (string, map[string]string, []string) {
	cands := s.candidates(it)
	if len(cands) == 0 {
		return "", nil, nil
	}

	search := strings.TrimSpace(parenRe.ReplaceAllString(it.Text, ""))
	scored := make([]candidate, 0, len(cands))
	for _, c := range cands {
		clean := strings.TrimSpace(parenRe.ReplaceAllString(c.name, ""))
		charSim := charSimilarity(search, clean)
		if charSim < 0.4 {
			continue
		}
		score := lcsRatio(search, clean)*0.4 +
			gramSimilarity(search, clean, 2)*0.3 +
			gramSimilarity(search, clean, 3)*0.3 +
			charSim*0.1
		scored = append(scored, candidate{name: c.name, fields: c.fields, score: score})
	}
	if len(scored) == 0 {
		return "", nil, nil
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	best := scored[0]
	if best.score <= matchThreshold {
		return "", nil, nil
	}

	// Same base name under several type suffixes means the caller has
	// to pick one.
	bestClean := strings.TrimSpace(parenRe.ReplaceAllString(best.name, ""))
	var dupes []string
	for _, c := range scored {
		clean := strings.TrimSpace(parenRe.ReplaceAllString(c.name, ""))
		if clean == bestClean && c.score > matchThreshold {
			dupes = append(dupes, c.name)
		}
	}
	if it.Type == "None" && len(dupes) > 1 {
		return "", nil, dupes
	}
	return best.name, best.fields, nil
}

func (s *Service) candidates(it Item) []candidate {
	var out []candidate
	for name, data := range s.catalog.Get("@this").Map() {
		fields := make(map[string]string)
		for k, v := range data.Map() {
			fields[k] = v.String()
		}
		out = append(out, candidate{name: name, fields: fields})
	}
	for name := range s.rules.Get("hyper").Map() {
		out = append(out, candidate{name: name, fields: map[string]string{}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })

	switch {
	case it.Type == "Hyperchrome" && it.Year != "":
		if f := filterCandidates(out, func(n string) bool { return strings.Contains(n, it.Year) }); len(f) > 0 {
			return f
		}
	case it.Type == "Hyperchrome":
		if f := filterCandidates(out, func(n string) bool {
			return strings.Contains(strings.ToLower(n), "hyper")
		}); len(f) > 0 {
			return f
		}
	case it.Type != "None":
		if f := filterCandidates(out, func(n string) bool {
			return strings.Contains(n, "("+it.Type+")")
		}); len(f) > 0 {
			return f
		}
	}
	return out
}

func filterCandidates(cands []candidate, keep func(name string) bool) []candidate {
	var out []candidate
	for _, c := range cands {
		if keep(c.name) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) addEntry(name string, fields map[string]string, status string, quantity int) error {
	key := name
	if status != StatusClean {
		key = fmt.Sprintf("%s (%s)", name, status)
	}

	entries := s.Entries()
	e, ok := entries[key]
	if !ok {
		e = Entry{Status: status, Fields: fields}
	}
	e.Quantity += quantity
	entries[key] = e
	return s.saveEntries(entries)
}

// Entries returns the current stock ledger.
func (s *Service) Entries() map[string]Entry {
	out := make(map[string]Entry)
	raw := s.stock.Raw()
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.WarnCF("stockage", "stock ledger unreadable", map[string]any{"error": err.Error()})
		return map[string]Entry{}
	}
	return out
}

// RefreshValues re-reads catalog fields for every stocked item, leaving
// quantities untouched. Run after the catalog mirror updates.
func (s *Service) RefreshValues() error {
	entries := s.Entries()
	if len(entries) == 0 {
		return nil
	}
	for key, e := range entries {
		base := strings.TrimSuffix(key, " ("+e.Status+")")
		data := s.catalog.Get(base)
		if !data.Exists() {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		for k, v := range data.Map() {
			e.Fields[k] = v.String()
		}
		entries[key] = e
	}
	return s.saveEntries(entries)
}

func (s *Service) saveEntries(entries map[string]Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.stock.Replace(raw)
}

func containsWord(haystack, word string) bool {
	re := regexp.MustCompile(`\b` + strings.ReplaceAll(regexp.QuoteMeta(word), `\ `, `\s+`) + `\b`)
	return re.MatchString(haystack)
}

func charSimilarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range strings.ToLower(s) {
		set[r] = true
	}
	return set
}

func gramSimilarity(a, b string, n int) float64 {
	ga := grams(a, n)
	gb := grams(b, n)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	common := 0
	bonus := 0.0
	for i, p := range ga {
		for j, q := range gb {
			if p == q {
				common++
				if i-j <= 1 && j-i <= 1 {
					bonus += 0.5
				}
			}
		}
	}
	total := float64(len(ga) + len(gb))
	score := float64(common*2)/total + bonus/total
	if score > 1 {
		return 1
	}
	return score
}

func grams(s string, n int) []string {
	s = strings.ToLower(s)
	if len(s) < n {
		return nil
	}
	out := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		out = append(out, s[i:i+n])
	}
	return out
}

// lcsRatio approximates edit similarity as twice the longest common
// subsequence over the combined length.
func lcsRatio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return float64(2*prev[len(rb)]) / float64(len(ra)+len(rb))
}
