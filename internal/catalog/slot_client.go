package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	pkgerrors "github.com/ovenfresh/storefront-cart/pkg/errors"
)

const slotDateParam = "2006-01-02"

// HTTPSlotSource queries the availability service's next-slot endpoint.
type HTTPSlotSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSlotSource builds a slot source against the given base URL.
func NewHTTPSlotSource(baseURL string, client *http.Client) (*HTTPSlotSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("slot service base url required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSlotSource{baseURL: baseURL, client: client}, nil
}

func (s *HTTPSlotSource) FindNextAvailableSlot(ctx context.Context, after time.Time, excludeSlotID string) (*Slot, error) {
	query := url.Values{}
	query.Set("after", after.Format(slotDateParam))
	if excludeSlotID != "" {
		query.Set("exclude", excludeSlotID)
	}
	endpoint := s.baseURL + "/slots/next?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build slot request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query slot availability")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return nil, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("slot availability returned status %d", resp.StatusCode))
	}

	var payload struct {
		Date        string `json:"date"`
		SlotID      string `json:"slotId"`
		DisplayTime string `json:"displayTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode slot payload")
	}
	if payload.SlotID == "" {
		return nil, nil
	}
	date, err := time.Parse(slotDateParam, payload.Date)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse slot date")
	}
	return &Slot{Date: date, SlotID: payload.SlotID, DisplayTime: payload.DisplayTime}, nil
}

// UnavailableSlotSource always reports the availability service as down.
// It is the wiring default when no slot service URL is configured, which
// leaves expired reservations untouched for manual resolution.
type UnavailableSlotSource struct{}

func (UnavailableSlotSource) FindNextAvailableSlot(ctx context.Context, after time.Time, excludeSlotID string) (*Slot, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "slot availability service not configured")
}
