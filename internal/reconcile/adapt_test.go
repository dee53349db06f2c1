package reconcile

import (
	"testing"

	"github.com/sydlexius/playbill/internal/provider/douban"
	"github.com/sydlexius/playbill/internal/provider/tmdb"
)

func TestAdaptRegionalCastDeduplicates(t *testing.T) {
	celebrities := []douban.Celebrity{
		{ID: "c1", Name: "张三", Character: "饰 老大"},
		{ID: "c1", Name: "张三"},
		{Name: "李 四"},
		{Name: "李四"},
		{Name: ""},
	}
	got := adaptRegionalCast(celebrities)
	if len(got) != 2 {
		t.Fatalf("len = %d, want duplicates and empty names dropped", len(got))
	}
	if got[0].Character != "老大" {
		t.Errorf("character = %q, want cleaned", got[0].Character)
	}
	if got[1].Name != "李 四" {
		t.Errorf("name = %q", got[1].Name)
	}
}

func TestAdaptCredits(t *testing.T) {
	credits := []tmdb.Credit{
		{ID: 10, Name: "Main Star", Character: "Hero", Order: 0},
		{ID: 0, Name: "broken"},
		{ID: 11, Name: "Guest", Order: 999},
	}
	got := adaptCredits(credits, map[string]string{"10": "p1"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want zero-id credits dropped", len(got))
	}
	if got[0].ServerPersonID != "p1" {
		t.Errorf("server person id = %q", got[0].ServerPersonID)
	}
	if got[0].Source != SourceAuthoritative {
		t.Errorf("source = %q", got[0].Source)
	}
	if got[1].ServerPersonID != "" {
		t.Errorf("unknown credit got server id %q", got[1].ServerPersonID)
	}
}
