package httpd

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/tsawler/lectern/source"
)

func TestOpenSessionUpload(t *testing.T) {
	ts := newServer(t, nil)

	rr := ts.upload(t, "scan.png", pngBytes(t, 4, 3), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	var resp sessionResponse
	decodeBody(t, rr, &resp)
	if resp.ID == "" {
		t.Fatal("response carries no session id")
	}
	if resp.Name != "scan.png" {
		t.Errorf("Name = %q, want scan.png", resp.Name)
	}
	if resp.Pages != 1 || resp.OriginalPages != 1 {
		t.Errorf("Pages/OriginalPages = %d/%d, want 1/1", resp.Pages, resp.OriginalPages)
	}
	if resp.Fingerprint == "" {
		t.Error("response carries no fingerprint")
	}
	if resp.Mode != "single" || resp.CurrentPage != 1 || resp.Zoom != 1 {
		t.Errorf("initial view = %s/%d/%v, want single/1/1", resp.Mode, resp.CurrentPage, resp.Zoom)
	}

	// The new session shows up in the listing.
	rr = ts.do(t, http.MethodGet, "/api/v1/sessions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rr.Code, http.StatusOK)
	}
	var list struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	decodeBody(t, rr, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != resp.ID {
		t.Errorf("sessions = %+v, want the uploaded session", list.Sessions)
	}
}

func TestOpenSessionRequiresFile(t *testing.T) {
	ts := newServer(t, nil)

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions", strings.NewReader("{}"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestOpenSessionRejectsOversizedUpload(t *testing.T) {
	ts := newServerWithConfig(t, nil, Config{
		AllowedOrigins: []string{"http://localhost:5173"},
		MaxUploadBytes: 16,
	})

	rr := ts.upload(t, "big.png", pngBytes(t, 64, 64), nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestOpenSessionRejectsUnknownFormat(t *testing.T) {
	ts := newServer(t, nil)

	rr := ts.upload(t, "notes.txt", []byte("plain text, not a document"), nil)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d: %s", http.StatusUnsupportedMediaType, rr.Code, rr.Body.String())
	}
}

func TestGetAndCloseSession(t *testing.T) {
	ts := newServer(t, nil)
	id, _ := ts.openFake(t, 3)

	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp sessionResponse
	decodeBody(t, rr, &resp)
	if resp.ID != id || resp.Pages != 3 {
		t.Errorf("session = %s/%d pages, want %s/3", resp.ID, resp.Pages, id)
	}

	rr = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("close status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	// Closing again is a 404; the session is gone.
	rr = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second close status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSessionMetadataView(t *testing.T) {
	ts := newServer(t, nil)
	doc := newFakeDoc(2)
	doc.meta = source.Metadata{Title: "Tide Tables", Author: "Harbour Office"}
	id, _ := ts.openDoc(t, doc)

	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	var resp sessionResponse
	decodeBody(t, rr, &resp)
	if resp.Metadata.Title != "Tide Tables" || resp.Metadata.Author != "Harbour Office" {
		t.Errorf("metadata = %+v, want title and author through", resp.Metadata)
	}
	if resp.Metadata.Created != "" {
		t.Errorf("Created = %q, want omitted for zero time", resp.Metadata.Created)
	}
}

func TestGetOutlineFollowsVisualOrder(t *testing.T) {
	ts := newServer(t, nil)
	doc := newFakeDoc(3)
	doc.outline = []source.OutlineItem{
		{Title: "Arrival", Page: 1},
		{Title: "Departure", Page: 3},
	}
	id, _ := ts.openDoc(t, doc)

	rr := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/order", jsonBody(t, map[string][]int{"order": {3, 1, 2}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("reorder status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/outline", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("outline status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Outline []outlineEntry `json:"outline"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Outline) != 2 {
		t.Fatalf("outline has %d entries, want 2", len(resp.Outline))
	}
	// Original 1 is now visual 2, original 3 is visual 1.
	if resp.Outline[0].Page != 2 || resp.Outline[1].Page != 1 {
		t.Errorf("outline pages = %d/%d, want 2/1 after reorder", resp.Outline[0].Page, resp.Outline[1].Page)
	}
}

func TestListPages(t *testing.T) {
	ts := newServer(t, nil)
	id, sess := ts.openFake(t, 3)
	sess.Wait()

	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/pages", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pages status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Pages []pageSummary `json:"pages"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(resp.Pages))
	}
	first := resp.Pages[0]
	if first.Visual != 1 || first.Original != 1 {
		t.Errorf("first page = visual %d original %d, want 1/1", first.Visual, first.Original)
	}
	if !first.Loaded || first.Width != 600 || first.Height != 800 {
		t.Errorf("first page = %+v, want loaded 600x800", first)
	}
	// The far page sits outside the load window.
	if last := resp.Pages[2]; last.Loaded {
		t.Errorf("page 3 reported loaded outside the window: %+v", last)
	}
}

func TestGetPageText(t *testing.T) {
	ts := newServer(t, nil)
	id, _ := ts.openFake(t, 3)

	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/pages/2/text", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("text status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Page int    `json:"page"`
		Text string `json:"text"`
	}
	decodeBody(t, rr, &resp)
	if resp.Page != 2 || !strings.Contains(resp.Text, "page 2") {
		t.Errorf("text response = %+v, want page 2 text", resp)
	}

	// A non-numeric page is the caller's fault.
	rr = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/pages/two/text", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric page status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// So is a page outside the document.
	rr = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/pages/99/text", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("out of range page status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestStateRoundTrip(t *testing.T) {
	ts := newServer(t, nil)
	id, _ := ts.openFake(t, 3)

	// Capture the initial state.
	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/state", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get state status = %d, want %d", rr.Code, http.StatusOK)
	}
	saved := append([]byte(nil), rr.Body.Bytes()...)

	// Drift away from it.
	rr = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/view", jsonBody(t, map[string]interface{}{"zoom": 2.5, "page": 3}))
	if rr.Code != http.StatusOK {
		t.Fatalf("view update status = %d: %s", rr.Code, rr.Body.String())
	}

	// Restoring the snapshot puts the view back.
	rr = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/state", bytes.NewReader(saved))
	if rr.Code != http.StatusOK {
		t.Fatalf("put state status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/view", nil)
	var view viewResponse
	decodeBody(t, rr, &view)
	if view.Zoom != 1 || view.CurrentPage != 1 {
		t.Errorf("restored view = zoom %v page %d, want 1/1", view.Zoom, view.CurrentPage)
	}
}

func TestPutStateRejectsGarbage(t *testing.T) {
	ts := newServer(t, nil)
	id, _ := ts.openFake(t, 2)

	rr := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/state", strings.NewReader("not a state"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}
