package migrations_test

import (
	"strings"
	"testing"

	"github.com/medconnect/telehealth/internal/platform/db"
	"github.com/medconnect/telehealth/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := db.NewMigrator(nil, migrations.FS, "").LoadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migs))
	}
	for i, m := range migs {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
	}

	// Names the services rely on when mapping constraint violations.
	all := migs[0].SQL + migs[1].SQL
	for _, name := range []string{
		"doctor_profile_user_id_key",
		"doctor_profile_license_number_key",
		"availability_no_overlap",
		"teleconsultation_booking_key",
	} {
		if !strings.Contains(all, name) {
			t.Errorf("constraint %s not declared", name)
		}
	}
}
