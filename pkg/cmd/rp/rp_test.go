package rp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requests struct {
	info  []byte
	merge []byte
}

func fakeServer(t *testing.T) *httptest.Server {
	srv, _ := fakeServerWithRequests(t)
	return srv
}

func fakeServerWithRequests(t *testing.T) (*httptest.Server, *requests) {
	got := &requests{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ocp/launch", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"content": []map[string]interface{}{
					{"id": 3, "name": "run-1", "attributes": []map[string]string{{"key": "team", "value": "OLM"}}},
				},
			})
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{}`))
		}
	})
	mux.HandleFunc("/api/v1/ocp/launch/3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 3, "name": "run-1", "attributes": []map[string]string{{"key": "team", "value": "OLM"}},
		})
	})
	mux.HandleFunc("/api/v1/ocp/launch/info", func(w http.ResponseWriter, r *http.Request) {
		got.info, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/ocp/launch/merge", func(w http.ResponseWriter, r *http.Request) {
		got.merge, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/ocp/item", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "STEP", "name": "OCP-12345:bob:x"},
				{"type": "STEP", "name": "OCP-23456:bob:y"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, got
}

func run(t *testing.T, args ...string) (string, error) {
	t.Cleanup(viper.Reset)
	cmd := NewCmdRP()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFailedCases(t *testing.T) {
	srv := fakeServer(t)

	out, err := run(t, "failed-cases", "--endpoint", srv.URL+"/api", "--project", "ocp", "--token", "x",
		"--launch", "run-1", "--subteam", "OLM")
	require.NoError(t, err)
	assert.Equal(t, "12345|23456\n", out)

	_, err = run(t, "failed-cases", "--endpoint", srv.URL+"/api", "--project", "ocp", "--launch", "run-1", "--subteam", "SDN")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	srv := fakeServer(t)

	out, err := run(t, "delete", "--endpoint", srv.URL+"/api", "--project", "ocp", "--launch", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS [3]\n", out)
}

func TestMissingArguments(t *testing.T) {
	for _, args := range [][]string{
		{"import"},
		{"failed-cases", "--launch", "run-1"},
		{"rerun-filter"},
		{"attr", "--key", "k"},
		{"attr", "--id", "3", "--key", "k", "--action", "rename", "--endpoint", "http://127.0.0.1:1"},
		{"merge"},
		{"delete"},
		{"mark-passed"},
		{"mark-passed", "--subteam", "SDN", "--time-range", "yesterday"},
	} {
		_, err := run(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestRerunFilter(t *testing.T) {
	srv := fakeServer(t)

	out, err := run(t, "rerun-filter", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--launch", "run-1", "--scenarios", "OLM|SDN|custom")
	require.NoError(t, err)
	assert.Equal(t, "12345|23456|SDN|custom\n", out)

	out, err = run(t, "rerun-filter", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--launch", "run-1", "--scenarios", "custom")
	require.NoError(t, err)
	assert.Equal(t, "NOFOUND-NOSUBTEAMINSCENARIO-NOREPLACE\n", out)
}

func TestAttr(t *testing.T) {
	srv, got := fakeServerWithRequests(t)

	out, err := run(t, "attr", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--id", "3", "--action", "update", "--key", "team", "--value", "SDN")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS\n", out)
	assert.JSONEq(t, `{"ids":[3],"attributes":[{"action":"UPDATE","from":{"key":"team","value":"OLM"},"to":{"key":"team","value":"SDN"}}]}`, string(got.info))

	_, err = run(t, "attr", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--id", "3", "--action", "update", "--key", "missing", "--value", "x")
	assert.Error(t, err)

	_, err = run(t, "attr", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--id", "3", "--key", "combined", "--value", "yes")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ids":[3],"attributes":[{"action":"CREATE","to":{"key":"combined","value":"yes"}}]}`, string(got.info))
}

func TestMerge(t *testing.T) {
	srv, got := fakeServerWithRequests(t)

	out, err := run(t, "merge", "--endpoint", srv.URL+"/api", "--project", "ocp", "--launch", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS\n", out)
	assert.Contains(t, string(got.merge), `"launches":[3]`)
}

func TestMarkPassed(t *testing.T) {
	var updated []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ocp/launch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SDN", r.URL.Query().Get("filter.has.attributeValue"))
		assert.NotEmpty(t, r.URL.Query().Get("filter.btw.startTime"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"id": 5, "name": "run-1", "attributes": []map[string]string{{"key": "launchtype", "value": "golang"}}},
			},
		})
	})
	mux.HandleFunc("/api/v1/ocp/item", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{{"id": 50, "type": "STEP"}, {"id": 51, "type": "STEP"}},
		})
	})
	mux.HandleFunc("/api/v1/ocp/item/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/ocp/item/51/update" {
			http.Error(w, "locked", http.StatusConflict)
			return
		}
		updated = append(updated, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	out, err := run(t, "mark-passed", "--endpoint", srv.URL+"/api", "--project", "ocp",
		"--subteam", "SDN", "--time-range", "2024-06-10 08:00:00,2024-06-10 20:00:00")
	assert.ErrorContains(t, err, "[51]")
	assert.Contains(t, out, "SUCCESS 1 items marked passed in launches [5]\n")
	assert.Equal(t, []string{"/api/v1/ocp/item/50/update"}, updated)
}

func TestImportFlags(t *testing.T) {
	cmd := newCmdImport()
	assert.Equal(t, "unknown", cmd.Flags().Lookup("build-num").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("rerun-report"))
}
