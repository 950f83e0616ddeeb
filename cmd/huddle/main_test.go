package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/huddle/internal/finalize"
	"github.com/antoniostano/huddle/internal/records"
)

func runCommand(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	deps := &clientDeps{
		HTTPClient: srv.Client(),
		Getenv: func(key string) string {
			if key == "HUDDLE_SERVER" {
				return srv.URL
			}
			return ""
		},
	}
	root := newRootCommand(deps)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestReportText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/meetings/m1/report", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get("X-User-ID"))
		dur := 95.0
		_ = json.NewEncoder(w).Encode(finalize.Report{
			MeetingID:       "m1",
			Name:            "Weekly sync",
			Status:          records.StatusCompleted,
			AgentName:       "Coach",
			DurationSeconds: &dur,
			Summary:         "## Summary\nAll good.",
			Transcript:      "user: hi",
		})
	}))
	defer srv.Close()

	out, err := runCommand(t, srv, "report", "m1", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Weekly sync (completed)")
	assert.Contains(t, out, "duration:  1m35s")
	assert.Contains(t, out, "## Summary\nAll good.")
	assert.Contains(t, out, "user: hi")
}

func TestReportFollowPollsUntilFinal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := records.StatusProcessing
		if hits.Add(1) >= 3 {
			status = records.StatusCompleted
		}
		_ = json.NewEncoder(w).Encode(finalize.Report{MeetingID: "m1", Name: "Sync", Status: status, Summary: "done"})
	}))
	defer srv.Close()

	out, err := runCommand(t, srv, "report", "m1", "--follow", "--interval", "10ms", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	var got finalize.Report
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, records.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Summary)
}

func TestReportNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(finalize.Report{MeetingID: "m1", Name: "Sync", Status: records.StatusCancelled})
	}))
	defer srv.Close()

	out, err := runCommand(t, srv, "report", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "no report: meeting cancelled")
}

func TestReportSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"meeting not found","code":"not_found"}`))
	}))
	defer srv.Close()

	_, err := runCommand(t, srv, "report", "nope", "--token", "secret")
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestFinalizePostsMeetingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/finalize-meeting", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m1", body["meetingId"])
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(finalize.Ack{MeetingID: "m1", Status: records.StatusProcessing, Queued: true, ReportURL: "/v1/meetings/m1/report"})
	}))
	defer srv.Close()

	out, err := runCommand(t, srv, "finalize", "m1", "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "meeting m1 is processing (queued: true)")
}

func TestUnknownOutputFormat(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := runCommand(t, srv, "report", "m1", "-o", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
}
