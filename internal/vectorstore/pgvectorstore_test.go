package vectorstore

import "testing"

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Errorf("expected nil for empty string, got %v", got)
	}
	if got := nullIfEmpty("preference"); got != "preference" {
		t.Errorf("expected value passed through, got %v", got)
	}
}

func TestPGVectorStoreSatisfiesStore(t *testing.T) {
	var _ Store = (*PGVectorStore)(nil)
}
