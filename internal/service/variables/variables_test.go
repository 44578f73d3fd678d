package variables

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

func TestResolveDefaults(t *testing.T) {
	vars := Resolve(Input{})

	if vars["owner_name"] != "the team" {
		t.Errorf("expected owner_name fallback, got %q", vars["owner_name"])
	}
	if vars["project_type"] != "wardrobe" {
		t.Errorf("expected project_type fallback, got %q", vars["project_type"])
	}
	for _, key := range []string{"name", "first_name", "amount", "date", "time", "meet_link", "payment_link", "booking_link"} {
		if _, ok := vars[key]; !ok {
			t.Errorf("expected key %q to be present", key)
		}
	}
}

func TestResolveFullContext(t *testing.T) {
	oppID := uuid.New()
	scheduled := time.Date(2026, time.March, 14, 15, 30, 0, 0, time.UTC)

	vars := Resolve(Input{
		Lead:        &domain.Lead{Name: "Jane Doe", Email: "jane@example.com"},
		Opportunity: &domain.Opportunity{ID: oppID, ProjectType: "walk-in wardrobe", ValueEstimate: 500000},
		OwnerName:   "Sam",
		Booking:     &domain.Booking{ScheduledAt: scheduled, MeetLink: "https://meet.example/abc"},
		SiteURL:     "https://pax.example/",
		BookingPath: "/book",
	})

	if vars["name"] != "Jane Doe" || vars["first_name"] != "Jane" {
		t.Errorf("unexpected name vars: %q / %q", vars["name"], vars["first_name"])
	}
	if vars["owner_name"] != "Sam" {
		t.Errorf("unexpected owner_name: %q", vars["owner_name"])
	}
	if vars["project_type"] != "walk-in wardrobe" {
		t.Errorf("unexpected project_type: %q", vars["project_type"])
	}
	if vars["amount"] != "1,500" {
		t.Errorf("expected 30%% deposit of 5000 pounds as 1,500, got %q", vars["amount"])
	}
	if vars["date"] != "Sat 14 Mar" {
		t.Errorf("unexpected date: %q", vars["date"])
	}
	if vars["time"] != "15:30" {
		t.Errorf("unexpected time: %q", vars["time"])
	}
	if vars["meet_link"] != "https://meet.example/abc" {
		t.Errorf("unexpected meet_link: %q", vars["meet_link"])
	}
	want := "https://pax.example/book?opportunity=" + oppID.String()
	if vars["booking_link"] != want {
		t.Errorf("unexpected booking_link: %q", vars["booking_link"])
	}
}

func TestResolveExplicitMeetLinkWins(t *testing.T) {
	vars := Resolve(Input{
		MeetLink: "https://meet.example/explicit",
		Booking:  &domain.Booking{MeetLink: "https://meet.example/booking"},
	})
	if vars["meet_link"] != "https://meet.example/explicit" {
		t.Errorf("unexpected meet_link: %q", vars["meet_link"])
	}
}

func TestFormatPounds(t *testing.T) {
	cases := []struct {
		pence int64
		want  string
	}{
		{0, "0"},
		{9900, "99"},
		{100000, "1,000"},
		{150000, "1,500"},
		{123456700, "1,234,567"},
	}
	for _, tc := range cases {
		if got := FormatPounds(tc.pence); got != tc.want {
			t.Errorf("FormatPounds(%d) = %q, want %q", tc.pence, got, tc.want)
		}
	}
}

func TestRenderSubstitutesKnownKeys(t *testing.T) {
	vars := map[string]string{"first_name": "Jane", "date": "Sat 14 Mar"}
	got := Render("Hi {{first_name}}, see you {{ date }}!", vars)
	want := "Hi Jane, see you Sat 14 Mar!"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderLeavesUnresolvedPlaceholders(t *testing.T) {
	vars := map[string]string{"first_name": "Jane", "meet_link": ""}
	got := Render("Join here: {{meet_link}} or ask {{owner_name}}", vars)
	want := "Join here: {{meet_link}} or ask {{owner_name}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
