package monitors

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/florianilch/zmsession/internal/gateway"
)

// Event is one recorded event of a monitor. Like monitors, every scalar is a string.
type Event struct {
	ID            string  `json:"Id"`
	MonitorID     string  `json:"MonitorId"`
	Name          string  `json:"Name"`
	Cause         string  `json:"Cause"`
	StartDateTime string  `json:"StartDateTime"`
	EndDateTime   *string `json:"EndDateTime"`
	Length        string  `json:"Length"`
	Frames        string  `json:"Frames"`
	AlarmFrames   string  `json:"AlarmFrames"`
	MaxScore      string  `json:"MaxScore"`
	Archived      string  `json:"Archived"`
	Notes         string  `json:"Notes"`
}

// Pagination describes the page returned by the events index.
type Pagination struct {
	Page      int  `json:"page"`
	Current   int  `json:"current"`
	Count     int  `json:"count"`
	PrevPage  bool `json:"prevPage"`
	NextPage  bool `json:"nextPage"`
	PageCount int  `json:"pageCount"`
	Limit     int  `json:"limit"`
}

// EventPage is one page of events, newest first.
type EventPage struct {
	Events     []Event
	Pagination Pagination
}

type eventsResponse struct {
	Events []struct {
		Event Event `json:"Event"`
	} `json:"events"`
	Pagination Pagination `json:"pagination"`
}

// Events returns one page of a monitor's events, newest first. Pages start at 1;
// smaller values are treated as 1.
func (s *Service) Events(ctx context.Context, monitorID string, page int) (EventPage, error) {
	if monitorID == "" {
		return EventPage{}, fmt.Errorf("missing monitor id")
	}
	if page < 1 {
		page = 1
	}

	query := url.Values{
		"page":      {strconv.Itoa(page)},
		"sort":      {"StartDateTime"},
		"direction": {"desc"},
	}
	path := "/events/index/MonitorId:" + url.PathEscape(monitorID) + ".json?" + query.Encode()

	res, err := gateway.Request[eventsResponse](ctx, s.gateway, path)
	if err != nil {
		return EventPage{}, fmt.Errorf("listing events: %w", err)
	}

	events := make([]Event, 0, len(res.Events))
	for _, e := range res.Events {
		events = append(events, e.Event)
	}
	return EventPage{Events: events, Pagination: res.Pagination}, nil
}
