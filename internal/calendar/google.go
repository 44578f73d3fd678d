package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cachimiro/pax-website-sub000/internal/config"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
)

// GoogleProvider reads events from a single Google calendar using a
// pre-authorized OAuth token stored on disk.
type GoogleProvider struct {
	service    *gcal.Service
	calendarID string
}

// NewProvider builds the calendar provider for the given config.
// Missing credentials yield the Unconfigured provider rather than an
// error so the rest of the system can run without calendar access.
func NewProvider(ctx context.Context, cfg config.CalendarConfig) (Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenFile == "" {
		return Unconfigured{}, nil
	}
	return NewGoogleProvider(ctx, cfg)
}

// NewGoogleProvider creates a provider backed by the Calendar API.
func NewGoogleProvider(ctx context.Context, cfg config.CalendarConfig) (*GoogleProvider, error) {
	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gcal.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	client := oauthCfg.Client(ctx, token)
	service, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	return &GoogleProvider{service: service, calendarID: calendarID}, nil
}

// GetEvent fetches a single event by ID.
func (p *GoogleProvider) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	ev, err := p.service.Events.Get(p.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("calendar: get event %s: %w", eventID, err)
	}

	event := &Event{
		ID:      ev.Id,
		Status:  ev.Status,
		Created: parseEventTime(ev.Created),
		Updated: parseEventTime(ev.Updated),
	}
	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			event.Start = parseEventTime(ev.Start.DateTime)
		} else if ev.Start.Date != "" {
			if d, err := time.Parse("2006-01-02", ev.Start.Date); err == nil {
				event.Start = d
			}
		}
	}
	for _, a := range ev.Attendees {
		event.Attendees = append(event.Attendees, Attendee{
			Email:          a.Email,
			ResponseStatus: a.ResponseStatus,
			Organizer:      a.Organizer,
			Self:           a.Self,
		})
	}

	return event, nil
}

func parseEventTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: open token file: %w", err)
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("calendar: decode token: %w", err)
	}
	return &token, nil
}
