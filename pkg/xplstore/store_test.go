package xplstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRecordAndRecentSightings(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "gxpl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.RecordSighting(ctx, Sighting{SeenAtMs: 1000, MsgType: "xpl-stat", Source: "acme-cm12.kit", Target: "*", Class: "hbeat", SchemaType: "app", Broadcast: true}); err != nil {
		t.Fatalf("RecordSighting: %v", err)
	}
	if err := s.RecordSighting(ctx, Sighting{SeenAtMs: 2000, MsgType: "xpl-cmnd", Source: "acme-cm12.srv", Target: "acme-cm12.kit", Class: "x10", SchemaType: "basic"}); err != nil {
		t.Fatalf("RecordSighting: %v", err)
	}

	got, err := s.RecentSightings(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSightings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(got))
	}
	if got[0].SeenAtMs != 2000 {
		t.Fatalf("expected newest-first ordering, got %+v", got[0])
	}
}

func TestHubClientUpsertAndDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "gxpl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.UpsertHubClient(ctx, 55000, "127.0.0.1", "acme-cm12.srv", 300, 1000); err != nil {
		t.Fatalf("UpsertHubClient: %v", err)
	}
	if err := s.UpsertHubClient(ctx, 55000, "127.0.0.1", "acme-cm12.srv", 600, 2000); err != nil {
		t.Fatalf("UpsertHubClient (update): %v", err)
	}
	if err := s.DeleteHubClient(ctx, 55000); err != nil {
		t.Fatalf("DeleteHubClient: %v", err)
	}
}
