package scraper

import (
	"testing"

	"nextgoal/internal/model"
)

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	p := model.Posting{Title: "Backend Engineer", Company: "Stripe", Location: "Remote"}
	a := Fingerprint(p)
	b := Fingerprint(p)
	if a != b {
		t.Fatalf("expected stable fingerprint, got %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprintCaseInsensitive(t *testing.T) {
	t.Parallel()

	a := Fingerprint(model.Posting{Title: "Backend Engineer", Company: "Stripe", Location: "Remote"})
	b := Fingerprint(model.Posting{Title: "BACKEND ENGINEER", Company: "stripe", Location: "REMOTE"})
	if a != b {
		t.Fatalf("expected case-insensitive fingerprints to match")
	}
}

func TestFingerprintIgnoresDescription(t *testing.T) {
	t.Parallel()

	a := Fingerprint(model.Posting{Title: "Counsel", Company: "Visa", Location: "Remote", Description: "v1"})
	b := Fingerprint(model.Posting{Title: "Counsel", Company: "Visa", Location: "Remote", Description: "v2"})
	if a != b {
		t.Fatalf("expected description changes not to affect fingerprint")
	}
}

func TestFingerprintDistinguishesFields(t *testing.T) {
	t.Parallel()

	a := Fingerprint(model.Posting{Title: "Counsel", Company: "Visa", Location: "Remote"})
	b := Fingerprint(model.Posting{Title: "Counsel", Company: "Visa", Location: "Bangalore"})
	if a == b {
		t.Fatalf("expected different locations to produce different fingerprints")
	}
}
