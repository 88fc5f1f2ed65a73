package persona

import "testing"

func TestFindByNameIgnoresCase(t *testing.T) {
	store := NewMemoryStore(Seed())

	for _, name := range []string{"shark", "SHARK", " Shark ", "Shark"} {
		got, ok := store.FindByName(name)
		if !ok {
			t.Fatalf("FindByName(%q) not found", name)
		}
		if got.Name != "Shark" {
			t.Fatalf("FindByName(%q) = %s", name, got.Name)
		}
	}
}

func TestFindByNameMissing(t *testing.T) {
	store := NewMemoryStore(Seed())

	if _, ok := store.FindByName("nobody"); ok {
		t.Fatal("expected unknown persona to be missing")
	}
	if _, ok := store.FindByName("  "); ok {
		t.Fatal("expected blank persona name to be missing")
	}
}

func TestSeedContainsDefault(t *testing.T) {
	store := NewMemoryStore(Seed())
	if _, ok := store.FindByName(DefaultName); !ok {
		t.Fatalf("seed must contain %s persona", DefaultName)
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "mutated"

	if store.List()[0].Name == "mutated" {
		t.Fatal("List must not expose internal slice")
	}
}
