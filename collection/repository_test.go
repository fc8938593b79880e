package collection

import (
	"context"
	"errors"
	"testing"
)

func TestMalformedCaseIDIsNotFound(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	for _, id := range []string{"abc", "", "1234"} {
		if _, err := repo.GetCase(ctx, id); !errors.Is(err, ErrCaseNotFound) {
			t.Fatalf("GetCase(%q): expected ErrCaseNotFound, got %v", id, err)
		}
		stage := 2
		if err := repo.UpdateCase(ctx, id, CaseUpdate{CurrentStage: &stage}); !errors.Is(err, ErrCaseNotFound) {
			t.Fatalf("UpdateCase(%q): expected ErrCaseNotFound, got %v", id, err)
		}
	}
}
