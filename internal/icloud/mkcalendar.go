package icloud

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mappo/internal/models"
	"net/http"
	"net/url"
)

// mkCalendar creates a calendar collection at calPath (RFC 4791 section 5.3.1).
func (c *CalDAVClient) mkCalendar(ctx context.Context, calPath string, cfg models.CalendarConfig) error {
	body, err := mkCalendarBody(cfg)
	if err != nil {
		return err
	}

	target := c.endpoint.ResolveReference(&url.URL{Path: calPath})
	req, err := http.NewRequestWithContext(ctx, "MKCALENDAR", target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build MKCALENDAR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create calendar on CalDAV server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("MKCALENDAR %s: %s: %s", calPath, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func mkCalendarBody(cfg models.CalendarConfig) ([]byte, error) {
	displayName := cfg.Title
	if displayName == "" {
		displayName = cfg.Name
	}
	comp := "VEVENT"
	if cfg.EntityType == models.EntityReminder {
		comp = "VTODO"
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<C:mkcalendar xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:A="http://apple.com/ns/ical/"><D:set><D:prop>`)
	for _, el := range []struct{ tag, value string }{
		{"D:displayname", displayName},
		{"C:calendar-description", cfg.Name},
		{"A:calendar-color", cfg.Color},
	} {
		if el.value == "" {
			continue
		}
		buf.WriteString("<" + el.tag + ">")
		if err := xml.EscapeText(&buf, []byte(el.value)); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", el.tag, err)
		}
		buf.WriteString("</" + el.tag + ">")
	}
	buf.WriteString(`<C:supported-calendar-component-set><C:comp name="` + comp + `"/></C:supported-calendar-component-set>`)
	buf.WriteString(`</D:prop></D:set></C:mkcalendar>`)
	return buf.Bytes(), nil
}
