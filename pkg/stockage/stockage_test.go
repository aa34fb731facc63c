package stockage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	os.Exit(m.Run())
}

func testRules() map[string]any {
	return map[string]any{
		"type": map[string]any{
			"Vehicle": []string{"car", "vehicle"},
			"Rim":     []string{"rim"},
		},
		"hyper": map[string]any{
			"Blue 2022": []string{"hyper blue"},
		},
		"years_list": map[string]any{
			"aliases": map[string]string{"hc22": "2022"},
			"years":   map[string]any{"2022": map[string]any{}, "2023": map[string]any{}},
		},
		"no_duped_years": []string{"2023"},
	}
}

func testCatalog() map[string]any {
	return map[string]any{
		"Torpedo": map[string]string{
			"Cash Value":  "1,500,000",
			"Duped Value": "900,000",
			"Demand":      "8/10",
		},
		"Arrow (Vehicle)": map[string]string{"Cash Value": "200,000"},
		"Arrow (Rim)":     map[string]string{"Cash Value": "40,000"},
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	rules, err := config.OpenStore(filepath.Join(dir, "item_request.json"), testRules())
	require.NoError(t, err)
	catalog, err := config.OpenStore(filepath.Join(dir, "API_JBChangeLogs.json"), testCatalog())
	require.NoError(t, err)
	stock, err := config.OpenStore(filepath.Join(dir, "stockage_data.json"), nil)
	require.NoError(t, err)
	return NewService(rules, catalog, stock)
}

func TestSplitItems(t *testing.T) {
	items := SplitItems("Torpedo + Volt c, 2x Beam and Arrow")
	assert.Equal(t, []string{"Torpedo", "Volt c", "2x Beam", "Arrow"}, items)
}

func TestSplitItemsEmpty(t *testing.T) {
	assert.Empty(t, SplitItems("   "))
}

func TestParseQuantity(t *testing.T) {
	s := newService(t)

	it := s.Parse("Torpedo x3")
	assert.Equal(t, 3, it.Quantity)
	assert.Equal(t, "Torpedo", it.Text)

	it = s.Parse("2x Torpedo")
	assert.Equal(t, 2, it.Quantity)
	assert.Equal(t, "Torpedo", it.Text)

	it = s.Parse("Torpedo")
	assert.Equal(t, 1, it.Quantity)
}

func TestParseStatus(t *testing.T) {
	s := newService(t)

	it := s.Parse("Torpedo d")
	assert.Equal(t, StatusDupe, it.Status)
	assert.Equal(t, "Torpedo", it.Text)

	it = s.Parse("Torpedo duped")
	assert.Equal(t, StatusDupe, it.Status)

	it = s.Parse("Torpedo clean")
	assert.Equal(t, StatusClean, it.Status)
	assert.Equal(t, "Torpedo", it.Text)

	it = s.Parse("Torpedo")
	assert.Equal(t, StatusClean, it.Status)
}

func TestParseType(t *testing.T) {
	s := newService(t)

	it := s.Parse("arrow rim")
	assert.Equal(t, "Rim", it.Type)
	assert.Equal(t, "arrow", it.Text)

	it = s.Parse("arrow vehicle")
	assert.Equal(t, "Vehicle", it.Type)

	it = s.Parse("arrow")
	assert.Equal(t, "None", it.Type)
}

func TestParseHyperchrome(t *testing.T) {
	s := newService(t)

	it := s.Parse("hyper blue 2022")
	assert.Equal(t, "Hyperchrome", it.Type)
	assert.Equal(t, "2022", it.Year)
	assert.Equal(t, StatusDupe, it.Status)

	it = s.Parse("hyper blue hc22")
	assert.Equal(t, "2022", it.Year)

	it = s.Parse("hyper blue 2023")
	assert.Equal(t, StatusClean, it.Status)
}

func TestProcessAddsToStock(t *testing.T) {
	s := newService(t)

	results, err := s.Process("Torpedo x2", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Found)
	assert.Equal(t, "Torpedo", results[0].Name)
	assert.Equal(t, "1,500,000", results[0].Fields["Cash Value"])

	entries := s.Entries()
	require.Contains(t, entries, "Torpedo")
	assert.Equal(t, 2, entries["Torpedo"].Quantity)

	_, err = s.Process("Torpedo x2", true)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Entries()["Torpedo"].Quantity)
}

func TestDupeStockedUnderOwnKey(t *testing.T) {
	s := newService(t)

	_, err := s.Process("Torpedo d", true)
	require.NoError(t, err)

	entries := s.Entries()
	require.Contains(t, entries, "Torpedo (Dupe)")
	assert.Equal(t, StatusDupe, entries["Torpedo (Dupe)"].Status)
	assert.NotContains(t, entries, "Torpedo")
}

func TestFuzzyMatch(t *testing.T) {
	s := newService(t)

	results, err := s.Process("torpedoo", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Found)
	assert.Equal(t, "Torpedo", results[0].Name)
}

func TestAmbiguousTypes(t *testing.T) {
	s := newService(t)

	results, err := s.Process("arrow", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Found)
	assert.Len(t, results[0].Ambiguous, 2)

	results, err = s.Process("arrow rim", false)
	require.NoError(t, err)
	assert.True(t, results[0].Found)
	assert.Equal(t, "Arrow (Rim)", results[0].Name)
}

func TestCatalogMiss(t *testing.T) {
	s := newService(t)

	results, err := s.Process("zzqq", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Found)
	assert.True(t, results[0].CatalogMiss)
	assert.Empty(t, s.Entries())
}

func TestProcessRejectsEmpty(t *testing.T) {
	s := newService(t)
	_, err := s.Process("  ", true)
	assert.Error(t, err)
}

func TestHyperchromeMatchesByYear(t *testing.T) {
	s := newService(t)

	results, err := s.Process("hyper blue 2022", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Found)
	assert.Equal(t, "Blue 2022", results[0].Name)

	entries := s.Entries()
	assert.Contains(t, entries, "Blue 2022 (Dupe)")
}

func TestRefreshValues(t *testing.T) {
	s := newService(t)

	_, err := s.Process("Torpedo", true)
	require.NoError(t, err)

	require.NoError(t, s.catalog.Set("Torpedo.Cash Value", "2,000,000"))
	require.NoError(t, s.RefreshValues())

	assert.Equal(t, "2,000,000", s.Entries()["Torpedo"].Fields["Cash Value"])
	assert.Equal(t, 1, s.Entries()["Torpedo"].Quantity)
}
