package app

import (
	"net/http"
	"testing"
)

// cardFixture wires a handler with three signed-in users: the creator
// and a teammate on A-Team, plus an outsider on B-Team.
type cardFixture struct {
	handler  http.Handler
	creator  string
	teammate string
	outsider string
}

func newCardFixture(t *testing.T) *cardFixture {
	t.Helper()
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	return &cardFixture{
		handler:  handler,
		creator:  signUp(t, handler, "creator@example.com", "Creator", "A-Team")["accessToken"].(string),
		teammate: signUp(t, handler, "teammate@example.com", "Teammate", "A-Team")["accessToken"].(string),
		outsider: signUp(t, handler, "outsider@example.com", "Outsider", "B-Team")["accessToken"].(string),
	}
}

func (f *cardFixture) createCard(t *testing.T, visibility string) string {
	t.Helper()
	rec := doRequest(t, f.handler, http.MethodPost, "/api/cards", f.creator, map[string]any{
		"title":      "Deployment Notes",
		"content":    "Use blue/green.",
		"visibility": visibility,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card failed with %d: %s", rec.Code, rec.Body.String())
	}
	return decodeJSONBody(t, rec)["id"].(string)
}

func TestPrivateCardVisibility(t *testing.T) {
	f := newCardFixture(t)
	cardID := f.createCard(t, "PRIVATE")

	// Teammates read it, outsiders cannot tell it exists.
	rec := doRequest(t, f.handler, http.MethodGet, "/api/cards/"+cardID, f.teammate, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("teammate read failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/cards/"+cardID, f.outsider, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", rec.Code)
	}
	if body := decodeJSONBody(t, rec); body["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", body["code"])
	}

	// The outsider cannot interact with the hidden card either.
	for _, probe := range []struct {
		method, path string
		payload      any
	}{
		{http.MethodPost, "/api/cards/" + cardID + "/like", map[string]any{}},
		{http.MethodGet, "/api/cards/" + cardID + "/comments", nil},
		{http.MethodPost, "/api/cards/" + cardID + "/comments", map[string]any{"body": "hi"}},
		{http.MethodPut, "/api/cards/" + cardID, map[string]any{"title": "x", "content": "y", "visibility": "PUBLIC"}},
		{http.MethodDelete, "/api/cards/" + cardID, nil},
	} {
		rec := doRequest(t, f.handler, probe.method, probe.path, f.outsider, probe.payload)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", probe.method, probe.path, rec.Code)
		}
	}
}

func TestPublicCardVisibleAcrossTeams(t *testing.T) {
	f := newCardFixture(t)
	cardID := f.createCard(t, "PUBLIC")

	rec := doRequest(t, f.handler, http.MethodGet, "/api/cards/"+cardID, f.outsider, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public card readable across teams, got %d", rec.Code)
	}
	body := decodeJSONBody(t, rec)
	if body["teamName"] != "A-Team" {
		t.Errorf("expected owning team name, got %v", body["teamName"])
	}

	// Readable means likeable and commentable too.
	rec = doRequest(t, f.handler, http.MethodPost, "/api/cards/"+cardID+"/like", f.outsider, map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("outsider like failed with %d: %s", rec.Code, rec.Body.String())
	}
	liked := decodeJSONBody(t, rec)
	if liked["liked"] != true || liked["likeCount"] != float64(1) {
		t.Errorf("unexpected like response %v", liked)
	}
}

func TestMutationsRequireCreator(t *testing.T) {
	f := newCardFixture(t)
	cardID := f.createCard(t, "PUBLIC")

	update := map[string]any{"title": "Edited", "content": "c", "visibility": "PUBLIC"}

	// A teammate can read the card but not rewrite it.
	rec := doRequest(t, f.handler, http.MethodPut, "/api/cards/"+cardID, f.teammate, update)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for teammate update, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSONBody(t, rec); body["code"] != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN, got %v", body["code"])
	}

	rec = doRequest(t, f.handler, http.MethodDelete, "/api/cards/"+cardID, f.outsider, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider delete of public card, got %d", rec.Code)
	}

	rec = doRequest(t, f.handler, http.MethodPut, "/api/cards/"+cardID, f.creator, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("creator update failed with %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSONBody(t, rec); body["title"] != "Edited" {
		t.Errorf("expected updated title, got %v", body["title"])
	}

	rec = doRequest(t, f.handler, http.MethodDelete, "/api/cards/"+cardID, f.creator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("creator delete failed with %d", rec.Code)
	}
	rec = doRequest(t, f.handler, http.MethodGet, "/api/cards/"+cardID, f.creator, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestTeamCatalogOverHTTP(t *testing.T) {
	f := newCardFixture(t)
	f.createCard(t, "PUBLIC")
	f.createCard(t, "PRIVATE")

	teamGroup := func(t *testing.T, token, teamName string) map[string]any {
		t.Helper()
		rec := doRequest(t, f.handler, http.MethodGet, "/api/cards", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("team catalog failed with %d", rec.Code)
		}
		for _, raw := range decodeJSONBody(t, rec)["teams"].([]any) {
			group := raw.(map[string]any)
			if group["teamName"] == teamName {
				return group
			}
		}
		t.Fatalf("no group for %s", teamName)
		return nil
	}

	// Both cards belong to A-Team; the outsider on B-Team counts the
	// private one without seeing it.
	group := teamGroup(t, f.outsider, "A-Team")
	if group["visibleCount"] != float64(1) || group["hiddenCount"] != float64(1) || group["totalCount"] != float64(2) {
		t.Errorf("expected outsider to see 1 of 2 A-Team cards, got %v", group)
	}

	group = teamGroup(t, f.teammate, "A-Team")
	if group["visibleCount"] != float64(2) || group["hiddenCount"] != float64(0) {
		t.Errorf("expected teammate to see both A-Team cards, got %v", group)
	}
}

func TestPublicCatalogScopeOverHTTP(t *testing.T) {
	f := newCardFixture(t)
	f.createCard(t, "PUBLIC")
	f.createCard(t, "PRIVATE")

	rec := doRequest(t, f.handler, http.MethodGet, "/api/cards?scope=public", f.outsider, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public catalog failed with %d", rec.Code)
	}
	body := decodeJSONBody(t, rec)
	cards := body["cards"].([]any)
	if len(cards) != 1 {
		t.Fatalf("expected 1 public card, got %d", len(cards))
	}
	card := cards[0].(map[string]any)
	if card["visibility"] != "PUBLIC" {
		t.Errorf("private cards must not appear in the public catalog, got %v", card)
	}
}

func TestCommentFlowOverHTTP(t *testing.T) {
	f := newCardFixture(t)
	cardID := f.createCard(t, "PUBLIC")

	rec := doRequest(t, f.handler, http.MethodPost, "/api/cards/"+cardID+"/comments", f.outsider, map[string]any{
		"body": "Nice writeup.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment failed with %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeJSONBody(t, rec)
	if created["authorName"] != "Outsider" {
		t.Errorf("expected resolved author name, got %v", created["authorName"])
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/cards/"+cardID+"/comments", f.creator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list comments failed with %d", rec.Code)
	}
	body := decodeJSONBody(t, rec)
	comments := body["comments"].([]any)
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	if comments[0].(map[string]any)["body"] != "Nice writeup." {
		t.Errorf("unexpected comment body %v", comments[0])
	}
}

func TestSearchValidationOverHTTP(t *testing.T) {
	f := newCardFixture(t)

	rec := doRequest(t, f.handler, http.MethodGet, "/api/search?limit=abc", f.creator, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad limit, got %d", rec.Code)
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/search?q=deployment", f.creator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search failed with %d", rec.Code)
	}
	body := decodeJSONBody(t, rec)
	if _, ok := body["results"]; !ok {
		t.Errorf("expected a results field, got %v", body)
	}
}
