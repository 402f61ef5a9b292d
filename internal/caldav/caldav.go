// Package caldav provides an alternative event source backed by a CalDAV
// server (e.g. iCloud).
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"bookingsync/internal/models"
)

const defaultEndpoint = "https://caldav.icloud.com/"

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "bookingsync/1.0")
	return t.Transport.RoundTrip(req)
}

// Client reads and writes booking events on a CalDAV calendar.
type Client struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarURL  string
	location     *time.Location
}

// NewClient creates and initializes a CalDAV client for the named calendar.
func NewClient(logger *slog.Logger, endpoint, username, password, calendarName string, loc *time.Location) (*Client, error) {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &Client{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     endpoint,
		location:     loc,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarURL, err := c.findCalendar(context.Background(), calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarURL = calendarURL
	logger.Info("Successfully found CalDAV calendar", "url", calendarURL)

	return c, nil
}

// Events fetches the events whose time window intersects [from, to].
func (c *Client) Events(ctx context.Context, from, to time.Time) ([]*models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarURL, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query caldav calendar: %w", err)
	}

	var events []*models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ve := range obj.Data.Events() {
			ev, err := c.toInternalEvent(ve)
			if err != nil {
				c.logger.Warn("Skipping unparseable caldav event", "path", obj.Path, "error", err)
				continue
			}
			events = append(events, ev)
		}
	}
	c.logger.Info("Fetched events from CalDAV calendar", "count", len(events))
	return events, nil
}

// Event fetches a single event by its identifier.
func (c *Client) Event(ctx context.Context, id string) (*models.Event, error) {
	// CalDAV has no direct by-UID lookup in this client; scan a wide window.
	from := time.Now().AddDate(-1, 0, 0)
	to := time.Now().AddDate(1, 0, 0)
	events, err := c.Events(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("no event found with id %s", id)
}

// CreateEvent creates an event and returns its assigned identifier.
func (c *Client) CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error) {
	uid := uuid.New().String()
	if err := c.putEvent(ctx, uid, title, start, end); err != nil {
		return "", err
	}
	c.logger.Info("Created CalDAV event", "uid", uid, "title", title)
	return uid, nil
}

// UpdateEvent overwrites an event's title and time window.
func (c *Client) UpdateEvent(ctx context.Context, id, title string, start, end time.Time) error {
	if err := c.putEvent(ctx, id, title, start, end); err != nil {
		return err
	}
	c.logger.Info("Updated CalDAV event", "uid", id, "title", title)
	return nil
}

func (c *Client) putEvent(ctx context.Context, uid, title string, start, end time.Time) error {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//bookingsync//EN")
	cal.Children = append(cal.Children, ve)

	// The event path must be relative to the endpoint for the webdav client.
	eventPath := path.Join(strings.TrimPrefix(c.calendarURL, c.endpoint), fmt.Sprintf("%s.ics", uid))

	writer, err := c.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}

// toInternalEvent converts a VEVENT to the internal Event model.
func (c *Client) toInternalEvent(ve ical.Event) (*models.Event, error) {
	uid, err := ve.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return nil, fmt.Errorf("event has no UID")
	}
	summary, _ := ve.Props.Text(ical.PropSummary)
	description, _ := ve.Props.Text(ical.PropDescription)
	location, _ := ve.Props.Text(ical.PropLocation)

	start, err := ve.DateTimeStart(c.location)
	if err != nil {
		return nil, fmt.Errorf("event %s has no start time: %w", uid, err)
	}
	end, err := ve.DateTimeEnd(c.location)
	if err != nil {
		return nil, fmt.Errorf("event %s has no end time: %w", uid, err)
	}

	var attendees []models.Attendee
	for _, prop := range ve.Props.Values(ical.PropAttendee) {
		attendees = append(attendees, models.Attendee{
			DisplayName: prop.Params.Get(ical.ParamCommonName),
			Email:       strings.TrimPrefix(prop.Value, "mailto:"),
		})
	}

	return &models.Event{
		ID:             uid,
		Title:          summary,
		Description:    description,
		StartTime:      start,
		EndTime:        end,
		Timezone:       c.location.String(),
		Location:       location,
		Attendees:      attendees,
		Updated:        time.Now(),
		SourceCalendar: c.calendarURL,
	}, nil
}

// findCalendar discovers the user's calendars and returns the URL for the one with the matching name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return fmt.Sprintf("%s%s", strings.TrimSuffix(c.endpoint, "/"), cal.Path), nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
