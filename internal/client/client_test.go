package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/kjstillabower/commute-dashboard/internal/models"
	"github.com/kjstillabower/commute-dashboard/internal/observability"
)

const feedJSON = `{
  "header": {"gtfs_realtime_version": "2.0", "incrementality": "FULL_DATASET", "timestamp": 1718200000},
  "entity": [
    {"id": "no-alert"},
    {"id": "a-1", "alert": {
      "effect": "SIGNIFICANT_DELAYS",
      "cause": "TECHNICAL_PROBLEM",
      "severity_level": "SEVERE",
      "effect_detail": {"translation": [{"text": "Trains every 20 minutes", "language": "en"}]},
      "header_text": {"translation": [{"text": "Link delays"}]},
      "active_period": [{"start": 1718190000}],
      "informed_entity": [{"agency_id": "40", "route_id": "100479", "direction_id": 1}],
      "vendor_extension": {"ignored": true}
    }}
  ]
}`

func TestTransitFeedClient_FetchFeed_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedJSON))
	}))
	defer server.Close()

	c, err := NewTransitFeedClient(server.URL, "", 2*time.Second)
	if err != nil {
		t.Fatalf("NewTransitFeedClient() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if len(feed.Entity) != 2 {
		t.Fatalf("len(Entity) = %d, want 2", len(feed.Entity))
	}
	if feed.Entity[0].Alert != nil {
		t.Error("entity without alert should decode with nil Alert")
	}
	a := feed.Entity[1].Alert
	if a.Effect != models.EffectSignificantDelays || a.SeverityLevel != models.SeveritySevere {
		t.Errorf("alert = %+v", a)
	}
	if text, _ := a.EffectDetail.FirstText(); text != "Trains every 20 minutes" {
		t.Errorf("effect_detail = %q", text)
	}
	if a.ActivePeriod[0].End != nil || *a.ActivePeriod[0].Start != 1718190000 {
		t.Errorf("active_period = %+v", a.ActivePeriod)
	}
	if ie := a.InformedEntity[0]; ie.RouteID != "100479" || ie.DirectionID == nil || *ie.DirectionID != 1 {
		t.Errorf("informed_entity = %+v", ie)
	}
}

func TestTransitFeedClient_FetchFeed_Protobuf(t *testing.T) {
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1718200000),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("pb-1"),
				Alert: &gtfs.Alert{
					Cause:         gtfs.Alert_MAINTENANCE.Enum(),
					Effect:        gtfs.Alert_DETOUR.Enum(),
					SeverityLevel: gtfs.Alert_WARNING.Enum(),
					ActivePeriod:  []*gtfs.TimeRange{{Start: proto.Uint64(100), End: proto.Uint64(200)}},
					InformedEntity: []*gtfs.EntitySelector{
						{AgencyId: proto.String("40"), RouteId: proto.String("100479"), RouteType: proto.Int32(0)},
						{Trip: &gtfs.TripDescriptor{TripId: proto.String("t-9"), DirectionId: proto.Uint32(1)}},
					},
					HeaderText: &gtfs.TranslatedString{Translation: []*gtfs.TranslatedString_Translation{
						{Text: proto.String("Detour on Pine St"), Language: proto.String("en")},
					}},
				},
			},
			{Id: proto.String("pb-2")},
		},
	}
	body, err := proto.Marshal(msg)
	if err != nil {
		t.Fatalf("proto.Marshal() error = %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/x-protobuf" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	c, err := NewTransitFeedClient(server.URL, FeedFormatProtobuf, 2*time.Second)
	if err != nil {
		t.Fatalf("NewTransitFeedClient() error = %v", err)
	}
	feed, err := c.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}

	if feed.Header.GTFSRealtimeVersion != "2.0" || feed.Header.Timestamp == nil || *feed.Header.Timestamp != 1718200000 {
		t.Errorf("header = %+v", feed.Header)
	}
	if len(feed.Entity) != 2 || feed.Entity[1].Alert != nil {
		t.Fatalf("entities = %+v", feed.Entity)
	}
	a := feed.Entity[0].Alert
	if a.Cause != models.CauseMaintenance || a.Effect != models.EffectDetour || a.SeverityLevel != models.SeverityWarning {
		t.Errorf("enums = %s %s %s", a.Cause, a.Effect, a.SeverityLevel)
	}
	if *a.ActivePeriod[0].Start != 100 || *a.ActivePeriod[0].End != 200 {
		t.Errorf("active_period = %+v", a.ActivePeriod)
	}
	if a.InformedEntity[0].RouteID != "100479" || a.InformedEntity[0].RouteType == nil {
		t.Errorf("informed_entity[0] = %+v", a.InformedEntity[0])
	}
	if trip := a.InformedEntity[1].Trip; trip == nil || trip.TripID != "t-9" || *trip.DirectionID != 1 {
		t.Errorf("trip = %+v", trip)
	}
	if text, _ := a.HeaderText.FirstText(); text != "Detour on Pine St" {
		t.Errorf("header_text = %q", text)
	}
	if a.EffectDetail != nil {
		t.Error("absent effect_detail should stay nil")
	}
}

func TestTransitFeedClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, "", ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"server error", http.StatusBadGateway, "bad gateway", ErrUpstreamFailure},
		{"forbidden", http.StatusForbidden, "", ErrInvalidAPIKey},
		{"malformed json", http.StatusOK, "{not json", ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewTransitFeedClient(server.URL, FeedFormatJSON, 2*time.Second)
			if err != nil {
				t.Fatalf("NewTransitFeedClient() error = %v", err)
			}
			_, err = c.FetchFeed(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchFeed() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransitFeedClient_NoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewTransitFeedClient(server.URL, "", 2*time.Second)
	if _, err := c.FetchFeed(context.Background()); err == nil {
		t.Fatal("FetchFeed() expected error")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestTransitFeedClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(feedJSON))
	}))
	defer server.Close()

	c, _ := NewTransitFeedClient(server.URL, "", 20*time.Millisecond)
	_, err := c.FetchFeed(context.Background())
	if err == nil {
		t.Fatal("FetchFeed() expected timeout error")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
}

func TestNewTransitFeedClient_Validation(t *testing.T) {
	if _, err := NewTransitFeedClient("", "", time.Second); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewTransitFeedClient("http://x", "xml", time.Second); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestNWSClient_PointThenGridpoint(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "commute-dashboard (test@example.com)" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		switch r.URL.Path {
		case "/points/47.6763,-122.2063":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"properties": map[string]any{
					"forecastGridData": server.URL + "/gridpoints/SEW/129,71",
					"relativeLocation": map[string]any{
						"properties": map[string]any{"city": "Kirkland", "state": "WA"},
					},
				},
			})
		case "/gridpoints/SEW/129,71":
			_, _ = w.Write([]byte(`{"properties": {"temperature": {"uom": "wmoUnit:degC", "values": [{"validTime": "2024-01-01T00:00:00+00:00/PT1H", "value": 0}]}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c, err := NewNWSClient(server.URL+"/", "commute-dashboard (test@example.com)", 2*time.Second)
	if err != nil {
		t.Fatalf("NewNWSClient() error = %v", err)
	}
	point, err := c.GetPoint(context.Background(), 47.6763, -122.2063)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if point.City() != "Kirkland" {
		t.Errorf("City() = %q", point.City())
	}
	grid, err := c.GetGridpoint(context.Background(), point.GridURL())
	if err != nil {
		t.Fatalf("GetGridpoint() error = %v", err)
	}
	if len(grid.Properties.Temperature.Values) != 1 {
		t.Errorf("temperature values = %+v", grid.Properties.Temperature.Values)
	}
}

func TestNWSClient_PointWithoutGrid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"properties": {}}`))
	}))
	defer server.Close()

	c, _ := NewNWSClient(server.URL, "ua", time.Second)
	_, err := c.GetPoint(context.Background(), 1, 2)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("GetPoint() error = %v, want ErrMalformedPayload", err)
	}
}

func TestNewNWSClient_RequiresUserAgent(t *testing.T) {
	if _, err := NewNWSClient("https://api.weather.gov", "", time.Second); err == nil {
		t.Error("expected error without user agent")
	}
}

func TestFormatCoord(t *testing.T) {
	tests := map[float64]string{
		47.6763:      "47.6763",
		-122.3321:    "-122.3321",
		47.60000001:  "47.6",
		-122.2063499: "-122.2063",
		10:           "10",
	}
	for in, want := range tests {
		if got := formatCoord(in); got != want {
			t.Errorf("formatCoord(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestAqiClient_GetReading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/aqi" || r.URL.Query().Get("sensor") != "juanita" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"sensor":"juanita","sensor_index":102160,"pm_field":"pm2.5_alt","pm25":4.2,"aqi":17.5,"category":"Good","last_seen":1718200000,"fetched_at":1718200100}`))
	}))
	defer server.Close()

	c, err := NewAqiClient(server.URL+"/api", 2*time.Second)
	if err != nil {
		t.Fatalf("NewAqiClient() error = %v", err)
	}
	got, err := c.GetReading(context.Background(), "juanita")
	if err != nil {
		t.Fatalf("GetReading() error = %v", err)
	}
	if got.AQI != 17.5 || got.Category != "Good" || got.SensorIndex != 102160 {
		t.Errorf("GetReading() = %+v", got)
	}
}

func TestPurpleAirClient_GetSensorRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "pa-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		q := r.URL.Query()
		if q.Get("show_only") != "102160" || q.Get("max_age") != "3600" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if !strings.Contains(q.Get("fields"), "pm2.5_atm") {
			t.Errorf("fields = %s", q.Get("fields"))
		}
		_, _ = w.Write([]byte(`{"fields":["sensor_index","last_seen","pm2.5_atm"],"data":[[102160,1718200000,8.5]]}`))
	}))
	defer server.Close()

	c, err := NewPurpleAirClient(server.URL, "pa-key", 2*time.Second)
	if err != nil {
		t.Fatalf("NewPurpleAirClient() error = %v", err)
	}
	row, err := c.GetSensorRow(context.Background(), 102160, "pm2.5_atm", 60)
	if err != nil {
		t.Fatalf("GetSensorRow() error = %v", err)
	}
	if v, ok := row.Float("pm2.5_atm"); !ok || v != 8.5 {
		t.Errorf("pm2.5_atm = %v, %v", v, ok)
	}
	if v, ok := row.Int64("last_seen"); !ok || v != 1718200000 {
		t.Errorf("last_seen = %v, %v", v, ok)
	}
}

func TestPurpleAirClient_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fields":["sensor_index"],"data":[]}`))
	}))
	defer server.Close()

	c, _ := NewPurpleAirClient(server.URL, "pa-key", time.Second)
	_, err := c.GetSensorRow(context.Background(), 1, "pm2.5_alt", 60)
	if !errors.Is(err, ErrNoReading) {
		t.Errorf("GetSensorRow() error = %v, want ErrNoReading", err)
	}
}

func TestNewPurpleAirClient_RequiresKey(t *testing.T) {
	_, err := NewPurpleAirClient("https://api.purpleair.com", "  ", time.Second)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("error = %v, want ErrInvalidAPIKey", err)
	}
}
