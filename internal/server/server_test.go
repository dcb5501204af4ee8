package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
	"github.com/playperu/chargehunt/internal/rules"
	"github.com/playperu/chargehunt/internal/session"
	"github.com/playperu/chargehunt/internal/stationsync"
	"github.com/playperu/chargehunt/internal/storage"
)

const (
	stationLat = 59.3293
	stationLng = 18.0686
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSyncer struct {
	rep stationsync.Report
	err error
}

func (f fakeSyncer) Run(context.Context) (stationsync.Report, error) { return f.rep, f.err }

// failingStore refuses every write.
type failingStore struct{ *storage.Repository }

func (failingStore) SaveProgress(context.Context, string, chargehunt.StationProgress) error {
	return errors.New("disk full")
}

func (failingStore) SaveProgression(context.Context, chargehunt.PlayerProgression) error {
	return errors.New("disk full")
}

func (failingStore) SaveLoot(context.Context, chargehunt.LootReward) error {
	return errors.New("disk full")
}

type testEnv struct {
	handler http.Handler
	broker  *Broker
}

func newTestEnv(t *testing.T, store session.Store, syncer Syncer) testEnv {
	t.Helper()
	r, err := rules.Default()
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.New()
	cat.Merge([]chargehunt.Station{
		{ExternalID: "SE_42665", Latitude: stationLat, Longitude: stationLng, DisplayName: "Sergels torg", Operator: "Vattenfall"},
		{ExternalID: "SE_FAR", Latitude: 57.7089, Longitude: 11.9746, DisplayName: "Gothenburg"},
	})
	if store == nil {
		store = storage.NewRepository(storage.NewMemoryKV())
	}
	broker := NewBroker()
	sessions, err := session.NewManager(r, cat, store, broker, discard)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(":0", discard, Deps{Sessions: sessions, Catalog: cat, Broker: broker, Sync: syncer}, nil)
	return testEnv{handler: srv.Handler(), broker: broker}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func fixNear(distance float64) FixRequest {
	lat, lng := geomath.Offset(stationLat, stationLng, 180, distance)
	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	return FixRequest{Lat: lat, Lng: lng, Accuracy: 5, CapturedAt: &at}
}

func TestPlayerFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/players/alice/fixes", fixNear(20))
	if rec.Code != http.StatusOK {
		t.Fatalf("fix: status = %d, body = %s", rec.Code, rec.Body)
	}
	fix := decode[session.FixResult](t, rec)
	if !fix.Accepted || len(fix.Events) != 1 || fix.Events[0].Type != chargehunt.EventStationDiscoverable {
		t.Fatalf("fix = %+v", fix)
	}

	rec = env.do(t, http.MethodPost, "/api/players/alice/claims", ClaimRequest{StationID: "SE_42665"})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d, body = %s", rec.Code, rec.Body)
	}
	claim := decode[session.ClaimResult](t, rec)
	if claim.ExperienceAwarded != 100 || claim.TotalExperience != 100 || claim.AlreadyClaimed || claim.Reward == nil {
		t.Fatalf("claim = %+v", claim)
	}

	rec = env.do(t, http.MethodPost, "/api/players/alice/claims", ClaimRequest{StationID: "SE_42665"})
	again := decode[session.ClaimResult](t, rec)
	if rec.Code != http.StatusOK || !again.AlreadyClaimed || again.TotalExperience != 100 {
		t.Fatalf("second claim: status = %d, result = %+v", rec.Code, again)
	}

	rec = env.do(t, http.MethodPost, "/api/players/alice/loot/"+claim.Reward.ID+"/collect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("collect: status = %d, body = %s", rec.Code, rec.Body)
	}
	collected := decode[session.CollectResult](t, rec)
	if !collected.Reward.Collected || collected.TotalExperience != 100+claim.Reward.ExperienceBonus {
		t.Fatalf("collect = %+v", collected)
	}

	rec = env.do(t, http.MethodGet, "/api/players/alice/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: status = %d", rec.Code)
	}
	st := decode[session.State](t, rec)
	if st.PlayerID != "alice" || st.Progression.TotalExperience != collected.TotalExperience {
		t.Errorf("state = %+v", st)
	}
	if len(st.Stations) != 1 || st.Stations[0].State != chargehunt.StateClaimed || len(st.Loot) != 1 {
		t.Errorf("state stations = %+v loot = %+v", st.Stations, st.Loot)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodPost, "/api/players/bob/fixes", fixNear(200))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid player", http.MethodGet, "/api/players/a.b/state", nil, http.StatusBadRequest},
		{"invalid fix", http.MethodPost, "/api/players/bob/fixes", FixRequest{Lat: 91, Lng: 0}, http.StatusBadRequest},
		{"negative accuracy", http.MethodPost, "/api/players/bob/fixes", FixRequest{Lat: 1, Lng: 1, Accuracy: -1}, http.StatusBadRequest},
		{"missing station id", http.MethodPost, "/api/players/bob/claims", ClaimRequest{}, http.StatusBadRequest},
		{"unknown station", http.MethodPost, "/api/players/bob/claims", ClaimRequest{StationID: "SE_NOPE"}, http.StatusNotFound},
		{"not discoverable", http.MethodPost, "/api/players/bob/claims", ClaimRequest{StationID: "SE_42665"}, http.StatusConflict},
		{"unknown loot", http.MethodPost, "/api/players/bob/loot/nope/collect", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
			if body := decode[ErrorResponse](t, rec); body.Error == "" {
				t.Error("error body is empty")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/players/bob/claims", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestPersistenceFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, failingStore{storage.NewRepository(storage.NewMemoryKV())}, nil)

	rec := env.do(t, http.MethodPost, "/api/players/carol/fixes", fixNear(5))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("fix: status = %d, want 202", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	fix := decode[session.FixResult](t, rec)
	if !fix.Accepted || !fix.Unsaved || fix.NextPollMs == 0 {
		t.Errorf("fix = %+v, want accepted, unsaved and a poll hint", fix)
	}
	if len(fix.Events) != 1 || fix.Events[0].Type != chargehunt.EventStationDiscoverable {
		t.Errorf("fix events = %+v, want one station_discoverable", fix.Events)
	}

	// The unsaved discovery blocks the claim until it is persisted.
	rec = env.do(t, http.MethodPost, "/api/players/carol/claims", ClaimRequest{StationID: "SE_42665"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("claim: status = %d, want 503", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/players/carol/state", nil)
	st := decode[session.State](t, rec)
	if st.Pending == 0 {
		t.Error("state reports no pending writes")
	}
	if len(st.Stations) != 1 || st.Stations[0].State != chargehunt.StateDiscoverable {
		t.Errorf("stations = %+v, want SE_42665 discoverable", st.Stations)
	}

	rec = env.do(t, http.MethodPost, "/api/players/carol/flush", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("flush: status = %d, want 503", rec.Code)
	}
}

func TestStations(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name    string
		query   string
		status  int
		wantIDs []string
	}{
		{"bbox", "?bbox=59.3,18.0,59.4,18.1", http.StatusOK, []string{"SE_42665"}},
		{"bbox all of sweden", "?bbox=55,10,70,25", http.StatusOK, []string{"SE_42665", "SE_FAR"}},
		{"radius", "?lat=59.3293&lng=18.0686&radius=100", http.StatusOK, []string{"SE_42665"}},
		{"empty area", "?bbox=0,0,1,1", http.StatusOK, nil},
		{"missing query", "", http.StatusBadRequest, nil},
		{"short bbox", "?bbox=1,2,3", http.StatusBadRequest, nil},
		{"inverted bbox", "?bbox=60,18,59,19", http.StatusBadRequest, nil},
		{"huge radius", "?lat=59&lng=18&radius=1e9", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/stations"+tt.query, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.status, rec.Body)
			}
			if tt.status != http.StatusOK {
				return
			}
			resp := decode[StationsResponse](t, rec)
			if resp.Total != 2 {
				t.Errorf("total = %d, want 2", resp.Total)
			}
			if len(resp.Stations) != len(tt.wantIDs) {
				t.Fatalf("stations = %+v, want %v", resp.Stations, tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if resp.Stations[i].ExternalID != id {
					t.Errorf("station %d = %s, want %s", i, resp.Stations[i].ExternalID, id)
				}
			}
		})
	}
}

func TestStationsGeoJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/api/stations?bbox=59.3,18.0,59.4,18.1&format=geojson", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content-type = %q", ct)
	}

	fc := decode[struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}](t, rec)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("collection = %+v", fc)
	}
	f := fc.Features[0]
	if f.ID != "SE_42665" || f.Properties["displayName"] != "Sergels torg" {
		t.Errorf("feature = %+v", f)
	}
	// GeoJSON positions are lng, lat.
	if len(f.Geometry.Coordinates) != 2 || f.Geometry.Coordinates[0] != stationLng || f.Geometry.Coordinates[1] != stationLat {
		t.Errorf("coordinates = %v", f.Geometry.Coordinates)
	}
}

func TestSync(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		if rec := env.do(t, http.MethodPost, "/api/sync", nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("degraded pass", func(t *testing.T) {
		rep := stationsync.Report{Centers: 2, FailedCenters: 1, CatalogSize: 2, Error: "provider unavailable"}
		env := newTestEnv(t, nil, fakeSyncer{rep: rep, err: chargehunt.ErrProviderUnavailable})

		rec := env.do(t, http.MethodPost, "/api/sync", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		got := decode[stationsync.Report](t, rec)
		if got.FailedCenters != 1 || got.Error == "" {
			t.Errorf("report = %+v", got)
		}
	})
}

func waitSubscribed(t *testing.T, b *Broker, playerID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers(playerID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsSSE(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/players/dana/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	waitSubscribed(t, env.broker, "dana")
	env.do(t, http.MethodPost, "/api/players/dana/fixes", fixNear(10))

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	if event != string(chargehunt.EventStationDiscoverable) {
		t.Fatalf("event = %q, want station_discoverable", event)
	}
	var ev chargehunt.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.StationID != "SE_42665" || ev.PlayerID != "dana" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/api/players/erik/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	waitSubscribed(t, env.broker, "erik")
	env.do(t, http.MethodPost, "/api/players/erik/fixes", fixNear(10))
	env.do(t, http.MethodPost, "/api/players/erik/claims", ClaimRequest{StationID: "SE_42665"})

	want := []chargehunt.EventType{chargehunt.EventStationDiscoverable, chargehunt.EventStationClaimed}
	for _, w := range want {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.MessageText {
			t.Fatalf("message type = %v", typ)
		}
		var ev chargehunt.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != w {
			t.Fatalf("event = %s, want %s", ev.Type, w)
		}
		if w == chargehunt.EventStationClaimed && ev.Reward == nil {
			t.Error("claimed event carries no reward")
		}
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestBrokerIsolatesPlayers(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("a")
	other := b.Subscribe("b")
	defer b.Unsubscribe("a", a)
	defer b.Unsubscribe("b", other)

	b.Publish("a", chargehunt.Event{Type: chargehunt.EventLevelUp, Level: 2})

	select {
	case data := <-a:
		if !strings.Contains(string(data), `"level_up"`) {
			t.Errorf("data = %s", data)
		}
	default:
		t.Fatal("subscriber a received nothing")
	}
	select {
	case data := <-other:
		t.Fatalf("subscriber b received %s", data)
	default:
	}

	b.Unsubscribe("a", a)
	if n := b.Subscribers("a"); n != 0 {
		t.Errorf("subscribers after unsubscribe = %d", n)
	}
}
