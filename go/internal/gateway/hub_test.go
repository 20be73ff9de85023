package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhanucoding/retro-app/go/internal/app"
	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/timer"
)

// fakeApp records dispatched calls and returns a configurable error.
type fakeApp struct {
	calls []string
	err   error
}

func (f *fakeApp) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeApp) SessionState() app.SessionState { return app.SessionState{UserID: "user-test"} }
func (f *fakeApp) Board() models.Board            { return models.NewBoard() }
func (f *fakeApp) TimerState() timer.State        { return timer.State{DurationMinutes: 30, RemainingSeconds: 1800} }
func (f *fakeApp) RevealMode() models.RevealMode  { return models.RevealModeNone }
func (f *fakeApp) ParticipantCount() int          { return 1 }

func (f *fakeApp) AddItem(models.Category, string) (models.Item, error) {
	return models.Item{}, f.record("addItem")
}
func (f *fakeApp) EditItem(models.Category, string, string) error { return f.record("editItem") }
func (f *fakeApp) DeleteItem(models.Category, string) error       { return f.record("deleteItem") }
func (f *fakeApp) VoteItem(models.Category, string) error         { return f.record("voteItem") }
func (f *fakeApp) AddTeamMember(string) error                     { return f.record("addTeamMember") }
func (f *fakeApp) RemoveTeamMember(string) error                  { return f.record("removeTeamMember") }
func (f *fakeApp) SetSprintMeta(string, string)                   { f.record("setSprintMeta") }
func (f *fakeApp) ExportMarkdown() (string, string) {
	f.record("export")
	return "# Sprint Retrospective: Unnamed Sprint", "retrospective-unnamed-sprint-.md"
}

func (f *fakeApp) CreateSession(context.Context, bool) (string, error) {
	return "ABC12345", f.record("createSession")
}
func (f *fakeApp) JoinSession(context.Context, string) error { return f.record("joinSession") }
func (f *fakeApp) LeaveSession(context.Context) error        { return f.record("leaveSession") }
func (f *fakeApp) EndSession(context.Context) error          { return f.record("endSession") }
func (f *fakeApp) StartFresh(context.Context) error          { return f.record("startFresh") }

func (f *fakeApp) SetTimerDuration(int) error { return f.record("setTimerDuration") }
func (f *fakeApp) StartTimer() error          { return f.record("startTimer") }
func (f *fakeApp) PauseTimer() error          { return f.record("pauseTimer") }
func (f *fakeApp) ResetTimer() error          { return f.record("resetTimer") }

func (f *fakeApp) SetRevealMode(models.RevealMode) error { return f.record("setRevealMode") }
func (f *fakeApp) ToggleReveal() error                   { return f.record("toggleReveal") }

func newTestClient() *client {
	return &client{id: "c1", send: make(chan []byte, 16)}
}

func readEvent(t *testing.T, c *client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return ev
	default:
		t.Fatal("no event queued for client")
		return Event{}
	}
}

func TestDispatchRoutesActions(t *testing.T) {
	h := NewHub(DefaultConfig())
	a := &fakeApp{}
	h.Bind(a)
	c := newTestClient()

	for _, action := range []string{
		"addItem", "editItem", "deleteItem", "voteItem",
		"addTeamMember", "removeTeamMember", "setSprintMeta",
		"joinSession", "leaveSession", "endSession", "startFresh",
		"setTimerDuration", "startTimer", "pauseTimer", "resetTimer",
		"setRevealMode", "toggleReveal",
	} {
		h.dispatch(context.Background(), a, c, Command{Action: action})
	}

	if len(a.calls) != 17 {
		t.Fatalf("dispatched %d calls: %v", len(a.calls), a.calls)
	}
	select {
	case data := <-c.send:
		t.Fatalf("successful commands produced a client event: %s", data)
	default:
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	h := NewHub(DefaultConfig())
	a := &fakeApp{}
	h.Bind(a)
	c := newTestClient()

	h.dispatch(context.Background(), a, c, Command{Action: "teleport"})

	ev := readEvent(t, c)
	if ev.Type != EventTypeError {
		t.Fatalf("event type = %s, want Error", ev.Type)
	}
	var p ErrorPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Action != "teleport" || p.Kind != "unknown" {
		t.Errorf("error payload = %+v", p)
	}
}

func TestDispatchErrorKinds(t *testing.T) {
	h := NewHub(DefaultConfig())
	a := &fakeApp{err: apperrors.Forbiddenf("only the session host can control the timer")}
	h.Bind(a)
	c := newTestClient()

	h.dispatch(context.Background(), a, c, Command{Action: "startTimer"})

	ev := readEvent(t, c)
	var p ErrorPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Kind != "forbidden" {
		t.Errorf("kind = %q, want forbidden", p.Kind)
	}
	if !strings.Contains(p.Message, "session host") {
		t.Errorf("message = %q", p.Message)
	}
}

func TestDispatchExport(t *testing.T) {
	h := NewHub(DefaultConfig())
	a := &fakeApp{}
	h.Bind(a)
	c := newTestClient()

	h.dispatch(context.Background(), a, c, Command{Action: "export"})

	ev := readEvent(t, c)
	if ev.Type != EventTypeExport {
		t.Fatalf("event type = %s, want Export", ev.Type)
	}
	var p ExportPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.Content, "# Sprint Retrospective") || p.Filename == "" {
		t.Errorf("export payload = %+v", p)
	}
}

func TestCreateSessionBroadcastsCode(t *testing.T) {
	h := NewHub(DefaultConfig())
	a := &fakeApp{}
	h.Bind(a)
	c := newTestClient()

	h.dispatch(context.Background(), a, c, Command{Action: "createSession", StartFresh: true})

	select {
	case ev := <-h.broadcastCh:
		if ev.Type != EventTypeNotice {
			t.Fatalf("broadcast type = %s, want Notice", ev.Type)
		}
		var p NoticePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(p.Message, "ABC12345") {
			t.Errorf("notice = %q, want the session code", p.Message)
		}
	default:
		t.Fatal("no notice broadcast after createSession")
	}
}

// A connecting client receives a full state snapshot before any live
// events.
func TestConnectSendsSnapshot(t *testing.T) {
	h := NewHub(DefaultConfig())
	h.Bind(&fakeApp{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := map[EventType]bool{
		EventTypeSessionChanged:  false,
		EventTypeBoardChanged:    false,
		EventTypeTimerChanged:    false,
		EventTypeRevealChanged:   false,
		EventTypePresenceChanged: false,
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < len(want); i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read snapshot event %d: %v", i, err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		if _, ok := want[ev.Type]; !ok {
			t.Fatalf("unexpected snapshot event %s", ev.Type)
		}
		want[ev.Type] = true
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("snapshot missing %s", typ)
		}
	}
}
