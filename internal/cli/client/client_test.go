package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fhirchat", "config.json")
	old := getConfigPathFunc
	getConfigPathFunc = func() (string, error) { return path, nil }
	t.Cleanup(func() { getConfigPathFunc = old })
	return path
}

func TestGlobalConfig_SaveAndLoad(t *testing.T) {
	path := withConfigPath(t)

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "https://chat.example", AdminToken: "tok"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err = LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example", cfg.APIURL)
	assert.Equal(t, "tok", cfg.AdminToken)
}

func TestSaveGlobalConfig_Nil(t *testing.T) {
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	path := withConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))

	_, err := LoadGlobalConfig()
	assert.Error(t, err)
}

func TestCurrentSession_PersistsAndResets(t *testing.T) {
	withConfigPath(t)

	first, err := CurrentSession()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, ResetSession())

	fresh, err := CurrentSession()
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
}

func TestNewAPIClientWithCmd_Cascade(t *testing.T) {
	withConfigPath(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "https://saved.example", AdminToken: "saved"}))

	t.Setenv(envAPIURL, "")
	t.Setenv(envAdminToken, "")
	c, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example", c.baseURL)
	assert.Equal(t, "saved", c.adminToken)

	t.Setenv(envAPIURL, "https://env.example")
	c, err = NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", c.baseURL)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("api-url", "", "")
	cmd.Flags().String("admin-token", "", "")
	require.NoError(t, cmd.Flags().Set("api-url", "https://flag.example"))
	require.NoError(t, cmd.Flags().Set("admin-token", "flagtok"))
	c, err = NewAPIClientWithCmd(cmd)
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example", c.baseURL)
	assert.Equal(t, "flagtok", c.adminToken)
}

func TestNewAPIClientWithCmd_Default(t *testing.T) {
	withConfigPath(t)
	t.Setenv(envAPIURL, "")
	t.Setenv(envAdminToken, "")

	c, err := NewAPIClientWithCmd(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAPIURL, c.baseURL)
}

func TestConverse_KeepsHistoryAcrossTurns(t *testing.T) {
	var seen []ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)
		json.NewEncoder(w).Encode(ChatResponse{
			Success:   true,
			Response:  "answer to " + req.Message,
			MessageID: "m",
		})
	}))
	defer srv.Close()

	in := strings.NewReader("What is FHIR?\nAnd R5?\n\n")
	var out bytes.Buffer

	err := converse(NewAPIClientWithConfig(srv.URL, ""), "s1", in, &out)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0].ConversationHistory)
	require.Len(t, seen[1].ConversationHistory, 2)
	assert.Equal(t, "user", seen[1].ConversationHistory[0].Role)
	assert.Equal(t, "What is FHIR?", seen[1].ConversationHistory[0].Content)
	assert.Equal(t, "answer to What is FHIR?", seen[1].ConversationHistory[1].Content)
	assert.Contains(t, out.String(), "answer to And R5?")
}

func TestConverse_FailedTurnNotAddedToHistory(t *testing.T) {
	calls := 0
	var lastHistory int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastHistory = len(req.ConversationHistory)
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(ChatResponse{Success: false, Response: "sorry", Error: "failed to generate a response"})
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{Success: true, Response: "ok"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := converse(NewAPIClientWithConfig(srv.URL, ""), "s1", strings.NewReader("one\ntwo\n"), &out)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, lastHistory)
	assert.Contains(t, out.String(), "sorry")
}

func TestPrintChatResponse(t *testing.T) {
	var out bytes.Buffer
	printChatResponse(&out, &ChatResponse{
		Response:        "Not my topic.",
		Citations:       []Citation{{Source: "FHIR Overview", URL: "https://hl7.org/fhir/overview.html"}, {Source: "Internal note"}},
		SuggestedAction: "contact_expert",
		MessageID:       "m9",
	})

	s := out.String()
	assert.Contains(t, s, "[1] FHIR Overview <https://hl7.org/fhir/overview.html>")
	assert.Contains(t, s, "[2] Internal note\n")
	assert.Contains(t, s, "contact one of our FHIR experts")
	assert.Contains(t, s, "(message m9)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
