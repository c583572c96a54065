package repo_test

import (
	"testing"

	"github.com/hamed0406/healthwatch/internal/repo"
	"github.com/hamed0406/healthwatch/internal/repo/memory"
	pg "github.com/hamed0406/healthwatch/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.ResultStore = memory.New(10)
	var _ repo.IncidentJournal = (*pg.Store)(nil)
}
