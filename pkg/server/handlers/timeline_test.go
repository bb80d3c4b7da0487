package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lorekeeper/chronicle/pkg/server/dto"
	"github.com/lorekeeper/chronicle/pkg/types"
)

func timelineRouter(fake *fakeChronicle) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	th := NewTimelineHandler(fake)
	r.GET("/api/v1/timeline/:user_id", th.GetTimeline)
	r.GET("/api/v1/timeline/:user_id/entries/:entry_id", th.GetEntry)
	r.POST("/api/v1/timeline/:user_id/entries/:entry_id/archive", th.ArchiveEntry)
	r.POST("/api/v1/timeline/:user_id/entries/:entry_id/correct", th.CorrectEntry)
	r.GET("/api/v1/timeline/:user_id/insights", th.GetInsights)

	ah := NewAnchorHandler(fake)
	r.POST("/api/v1/anchors/:user_id", ah.AddAnchor)
	r.GET("/api/v1/anchors/:user_id", ah.GetAnchors)
	r.DELETE("/api/v1/anchors/:user_id/:anchor_id", ah.DeleteAnchor)

	return r
}

func seedEntry(t *testing.T, fake *fakeChronicle, userID, text string) string {
	t.Helper()

	slices, err := fake.Run(context.Background(), userID, text, nil)
	if err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
	<-fake.runs
	return slices[0].EntryID
}

func TestGetTimeline(t *testing.T) {
	fake := newFakeChronicle()
	seedEntry(t, fake, "user-1", "I moved to Lisbon.")
	seedEntry(t, fake, "user-1", "Then I started a new job.")
	seedEntry(t, fake, "user-2", "Someone else's memory.")

	router := timelineRouter(fake)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/user-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response dto.Result
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	if data["count"] != float64(2) {
		t.Errorf("expected 2 entries for user-1, got %v", data["count"])
	}
}

func TestGetTimelineRejectsBadDates(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/user-1?from=not-a-date", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetTimelineRejectsBadLimit(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/user-1?limit=-3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/user-1/entries/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestArchiveEntry(t *testing.T) {
	fake := newFakeChronicle()
	entryID := seedEntry(t, fake, "user-1", "I moved to Lisbon.")
	router := timelineRouter(fake)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timeline/user-1/entries/"+entryID+"/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if !fake.entries[entryID].Archived {
		t.Error("expected entry to be archived")
	}
}

func TestArchiveEntryNotFound(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timeline/user-1/entries/missing/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCorrectEntry(t *testing.T) {
	fake := newFakeChronicle()
	entryID := seedEntry(t, fake, "user-1", "I moved to Lisbon in 2022.")
	router := timelineRouter(fake)

	w := sendJSON(t, router, http.MethodPost, "/api/v1/timeline/user-1/entries/"+entryID+"/correct", dto.CorrectEntryRequest{
		Content: "I moved to Porto in 2022.",
		Date:    time.Date(2022, 3, 15, 12, 0, 0, 0, time.UTC),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response dto.Result
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	replacementID, _ := data["replacement_id"].(string)
	if replacementID == "" {
		t.Fatal("expected a replacement id")
	}

	if !fake.entries[entryID].Archived {
		t.Error("expected the original entry to be archived")
	}

	replacement := fake.entries[replacementID]
	if replacement == nil {
		t.Fatal("expected the replacement to be stored")
	}
	if replacement.Source != types.SourceCorrection {
		t.Errorf("expected correction source, got %s", replacement.Source)
	}
}

func TestCorrectEntryRejectsEmptyContent(t *testing.T) {
	fake := newFakeChronicle()
	entryID := seedEntry(t, fake, "user-1", "I moved to Lisbon.")
	router := timelineRouter(fake)

	w := sendJSON(t, router, http.MethodPost, "/api/v1/timeline/user-1/entries/"+entryID+"/correct", map[string]interface{}{
		"date": time.Now(),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetInsights(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline/user-1/insights", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response dto.Result
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	if data["count"] != float64(1) {
		t.Errorf("expected 1 insight, got %v", data["count"])
	}
}

func TestAnchorLifecycle(t *testing.T) {
	fake := newFakeChronicle()
	router := timelineRouter(fake)

	// Add
	w := sendJSON(t, router, http.MethodPost, "/api/v1/anchors/user-1", dto.AnchorPayload{
		Label: "graduated college",
		Date:  time.Date(2020, 5, 15, 0, 0, 0, 0, time.UTC),
		Type:  "education",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var added dto.Result
	if err := json.Unmarshal(w.Body.Bytes(), &added); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	anchorID, _ := added.Data.(map[string]interface{})["anchor_id"].(string)
	if anchorID == "" {
		t.Fatal("expected an anchor id")
	}

	// List
	req := httptest.NewRequest(http.MethodGet, "/api/v1/anchors/user-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var listed dto.Result
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if listed.Data.(map[string]interface{})["count"] != float64(1) {
		t.Error("expected 1 anchor")
	}

	// Delete
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/anchors/user-1/"+anchorID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if len(fake.anchors["user-1"]) != 0 {
		t.Error("expected the anchor to be gone")
	}
}

func TestAddAnchorRejectsMissingLabel(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	w := sendJSON(t, router, http.MethodPost, "/api/v1/anchors/user-1", map[string]interface{}{
		"date": time.Now(),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestDeleteAnchorNotFound(t *testing.T) {
	router := timelineRouter(newFakeChronicle())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/anchors/user-1/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
