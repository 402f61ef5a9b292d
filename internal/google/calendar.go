package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"bookingsync/internal/models"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	maxResults int64
}

// NewCalendarClient creates a new Google Calendar client.
// It handles loading credentials and setting up an authenticated HTTP client.
// The accountName selects the token file saved by the auth command.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, calendarID string, maxResults int64) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	if maxResults <= 0 {
		maxResults = 250
	}
	return &CalendarClient{service: service, logger: logger, calendarID: calendarID, maxResults: maxResults}, nil
}

// Events fetches the events in the given time window, ordered by start time.
func (c *CalendarClient) Events(ctx context.Context, from, to time.Time) ([]*models.Event, error) {
	c.logger.Debug("Fetching events", "calendarID", c.calendarID, "from", from, "to", to)

	events, err := c.service.Events.List(c.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(c.maxResults).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events.Items), "calendarID", c.calendarID)
	return c.toInternalEvents(events.Items), nil
}

// Event fetches a single event by its identifier.
func (c *CalendarClient) Event(ctx context.Context, id string) (*models.Event, error) {
	item, err := c.service.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve event %s: %w", id, err)
	}
	ev := c.toInternalEvent(item)
	if ev == nil {
		return nil, fmt.Errorf("event %s has no usable time window", id)
	}
	return ev, nil
}

// CreateEvent creates an event and returns its assigned identifier.
func (c *CalendarClient) CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error) {
	item := &calendar.Event{
		Summary: title,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	created, err := c.service.Events.Insert(c.calendarID, item).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	c.logger.Info("Created calendar event", "id", created.Id, "title", title)
	return created.Id, nil
}

// UpdateEvent overwrites an event's title and time window.
func (c *CalendarClient) UpdateEvent(ctx context.Context, id, title string, start, end time.Time) error {
	item := &calendar.Event{
		Summary: title,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	if _, err := c.service.Events.Update(c.calendarID, id, item).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event %s: %w", id, err)
	}
	c.logger.Info("Updated calendar event", "id", id, "title", title)
	return nil
}

// CheckAccess verifies that the calendar is reachable with the current token.
func (c *CalendarClient) CheckAccess(ctx context.Context) error {
	if _, err := c.service.Calendars.Get(c.calendarID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar %s is not accessible: %w", c.calendarID, err)
	}
	return nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
// Events without a concrete start time (all-day entries) are skipped.
func (c *CalendarClient) toInternalEvents(items []*calendar.Event) []*models.Event {
	var internalEvents []*models.Event
	for _, item := range items {
		if ev := c.toInternalEvent(item); ev != nil {
			internalEvents = append(internalEvents, ev)
		}
	}
	return internalEvents
}

func (c *CalendarClient) toInternalEvent(item *calendar.Event) *models.Event {
	if item == nil || item.Start == nil || item.Start.DateTime == "" || item.End == nil {
		return nil
	}

	startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		c.logger.Warn("Skipping event with unparseable start time", "id", item.Id)
		return nil
	}
	endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		c.logger.Warn("Skipping event with unparseable end time", "id", item.Id)
		return nil
	}

	var attendees []models.Attendee
	for _, a := range item.Attendees {
		attendees = append(attendees, models.Attendee{DisplayName: a.DisplayName, Email: a.Email})
	}
	var organizer *models.Attendee
	if item.Organizer != nil {
		organizer = &models.Attendee{DisplayName: item.Organizer.DisplayName, Email: item.Organizer.Email}
	}

	timezone := "UTC"
	if item.Start.TimeZone != "" {
		timezone = item.Start.TimeZone
	}
	updated, _ := time.Parse(time.RFC3339, item.Updated)

	return &models.Event{
		ID:             item.Id,
		Title:          item.Summary,
		Description:    item.Description,
		StartTime:      startTime,
		EndTime:        endTime,
		Timezone:       timezone,
		Location:       item.Location,
		Organizer:      organizer,
		Attendees:      attendees,
		Updated:        updated,
		SourceCalendar: c.calendarID,
	}
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	scopes := []string{calendar.CalendarScope, "https://www.googleapis.com/auth/spreadsheets"}

	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(context.Background(), authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the accounts with a saved token file.
func GetTokenAccounts() ([]string, error) {
	files, err := os.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
