package cli_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ntpoppe/textops/internal/cli"
)

func TestClient_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dev/inbound", r.URL.Path)
		var req cli.InboundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "operator", req.From)
		require.Equal(t, "run demo", req.Body)

		runID := "AB12CD"
		resp := cli.InboundResponse{
			IntentType: "RunJob",
			RunID:      &runID,
			Outbound:   []cli.OutboundDTO{{Body: "Job \"demo\" is ready."}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := cli.NewClient(srv.URL, "operator")
	resp, err := client.SendText("conv-1", "run demo")
	require.NoError(t, err)
	require.Equal(t, "AB12CD", *resp.RunID)
	require.Equal(t, "Job \"demo\" is ready.", resp.Outbound[0].Body)
}

func TestClient_SendText_ProblemDetailsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"type": "about:blank", "title": "Bad Request",
			"status": 400, "detail": "field \"from\" is required",
		})
	}))
	defer srv.Close()

	client := cli.NewClient(srv.URL, "operator")
	_, err := client.SendText("conv-1", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Bad Request")
	require.Contains(t, err.Error(), "from")
}

func TestClient_GetRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/runs/AB12CD", r.URL.Path)
		resp := cli.TimelineResponse{
			Run: cli.RunDTO{RunID: "AB12CD", JobKey: "demo", Status: "Succeeded"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := cli.NewClient(srv.URL, "operator")
	timeline, err := client.GetRun("AB12CD")
	require.NoError(t, err)
	require.Equal(t, "Succeeded", timeline.Run.Status)
}

func TestClient_GetRun_NotFoundWithoutProblemBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := cli.NewClient(srv.URL, "operator")
	_, err := client.GetRun("ZZZZZZ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}
