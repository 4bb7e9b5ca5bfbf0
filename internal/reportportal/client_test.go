package reportportal

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshift-qe/qetools/internal/config"
)

const launchPath = "/api/v1/ocp/launch"

var fixedNow = time.Date(2024, 6, 11, 8, 30, 0, 0, time.UTC)

// fakeRP serves a fixed set of launches and failed items.
type fakeRP struct {
	t        *testing.T
	launches []Launch
	items    map[int64][]Item
	broken   map[int64]bool

	mu       sync.Mutex
	requests []*http.Request
	bodies   map[string][]byte
}

func newFakeRP(t *testing.T, launches ...Launch) *fakeRP {
	return &fakeRP{t: t, launches: launches, items: map[int64][]Item{}, broken: map[int64]bool{}, bodies: map[string][]byte{}}
}

func (f *fakeRP) record(r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	f.bodies[r.Method+" "+r.URL.Path] = body
	return body
}

func (f *fakeRP) body(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeRP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == launchPath:
		name := r.URL.Query().Get("filter.eq.name")
		page := launchPage{Content: []Launch{}}
		for _, l := range f.launches {
			if l.Name == name {
				page.Content = append(page.Content, l)
			}
		}
		writeJSON(w, page)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/ocp/item":
		var id int64
		fmt.Sscan(r.URL.Query().Get("filter.eq.launchId"), &id)
		if f.broken[id] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeJSON(w, itemPage{Content: f.items[id]})
	case r.Method == http.MethodPut && r.URL.Path == launchPath+"/info",
		r.Method == http.MethodPost && r.URL.Path == launchPath+"/merge",
		r.Method == http.MethodDelete && r.URL.Path == launchPath:
		writeJSON(w, map[string]string{"message": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		Endpoint:     srv.URL + "/api/",
		Project:      "ocp",
		Token:        "tok",
		AttrToken:    "attr-tok",
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})
	c.now = func() time.Time { return fixedNow }
	return c
}

func teamLaunch(id int64, name, team string) Launch {
	return Launch{ID: id, UUID: fmt.Sprintf("uuid-%d", id), Name: name, Attributes: []Attribute{{Key: "team", Value: team}}}
}

func TestFindLaunch(t *testing.T) {
	rp := newFakeRP(t,
		teamLaunch(1, "run-1", "OLM"),
		teamLaunch(2, "run-1", "SDN"),
		teamLaunch(3, "run-1", "OLM"),
		teamLaunch(4, "run-2", "SDN"),
	)
	c := newTestClient(t, rp)
	ctx := context.Background()

	l, err := c.FindLaunch(ctx, "run-1", &Attribute{Key: "team", Value: "SDN"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.ID)

	_, err = c.FindLaunch(ctx, "run-1", &Attribute{Key: "team", Value: "OLM"})
	assert.True(t, errors.Is(err, ErrAmbiguousLaunch), "got %v", err)

	_, err = c.FindLaunch(ctx, "run-1", &Attribute{Key: "team", Value: "Node"})
	assert.True(t, errors.Is(err, ErrLaunchNotFound), "got %v", err)

	all, err := c.FindLaunches(ctx, "run-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.Equal(t, "bearer tok", rp.requests[0].Header.Get("Authorization"))
	assert.Equal(t, "run-1", rp.requests[0].URL.Query().Get("filter.eq.name"))
}

func TestFailedCaseIDs(t *testing.T) {
	rp := newFakeRP(t, teamLaunch(7, "run-1", "SDN"), teamLaunch(8, "run-1", "OLM"))
	rp.items[7] = []Item{
		{Type: "STEP", Name: "Author:a-High-12345-desc OCP-12345 see OCP-99999"},
		{Type: "SUITE", Name: "OCP-11111"},
		{Type: "STEP", Name: "no id here"},
		{Type: "STEP", Name: "OCP-123 too short"},
		{Type: "STEP", Name: "OCP-54321:bob:Medium-54321-other"},
	}
	c := newTestClient(t, rp)

	ids, err := c.FailedCaseIDs(context.Background(), "run-1", "SDN")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"12345", "54321"}, ids); diff != "" {
		t.Errorf("unexpected case IDs (-want +got):\n%s", diff)
	}

	itemReq := rp.requests[len(rp.requests)-1]
	q := itemReq.URL.Query()
	assert.Equal(t, "7", q.Get("filter.eq.launchId"))
	assert.Equal(t, "FAILED", q.Get("filter.eq.status"))
	assert.Equal(t, "false", q.Get("isLatest"))
	assert.Equal(t, "0", q.Get("launchesLimit"))
	assert.Equal(t, "150", q.Get("page.size"))

	_, err = c.FailedCaseIDs(context.Background(), "run-1", "Node")
	assert.True(t, errors.Is(err, ErrLaunchNotFound), "got %v", err)
}

func TestUpdateAttributes(t *testing.T) {
	rp := newFakeRP(t)
	c := newTestClient(t, rp)

	err := c.UpdateAttributes(context.Background(), []int64{5}, []AttributeChange{
		CreateAttribute("a", "b"),
		UpdateAttribute("gbuildnum", "1-x", "1-x,2-y"),
		DeleteAttribute("trial", `""`),
	})
	require.NoError(t, err)

	assert.Equal(t, "bearer attr-tok", rp.requests[0].Header.Get("Authorization"))
	assert.JSONEq(t, `{
		"attributes": [
			{"action": "CREATE", "to": {"key": "a", "value": "b"}},
			{"action": "UPDATE", "from": {"key": "gbuildnum", "value": "1-x"}, "to": {"key": "gbuildnum", "value": "1-x,2-y"}},
			{"action": "DELETE", "from": {"key": "trial", "value": "\"\""}}
		],
		"ids": [5]
	}`, string(rp.body("PUT "+launchPath+"/info")))
}

func TestMergeLaunches(t *testing.T) {
	rp := newFakeRP(t, teamLaunch(1, "run-1", "OLM"), teamLaunch(2, "run-1", "SDN"))
	c := newTestClient(t, rp)

	require.NoError(t, c.MergeLaunches(context.Background(), "run-1"))
	assert.JSONEq(t, `{
		"attributes": [{"key": "combined", "value": "yes"}],
		"description": "testrun run-1",
		"endTime": "2024-06-11T08:30:00.000Z",
		"extendSuitesDescription": "true",
		"launches": [1, 2],
		"mergeType": "BASIC",
		"mode": "DEFAULT",
		"name": "run-1",
		"startTime": "2024-06-11T08:30:00.000Z"
	}`, string(rp.body("POST "+launchPath+"/merge")))

	err := c.MergeLaunches(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrLaunchNotFound), "got %v", err)
}

func TestDeleteLaunches(t *testing.T) {
	rp := newFakeRP(t, teamLaunch(1, "run-1", "OLM"), teamLaunch(2, "run-1", "SDN"))
	c := newTestClient(t, rp)

	ids, err := c.DeleteLaunches(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.JSONEq(t, `{"ids": [1, 2]}`, string(rp.body("DELETE "+launchPath)))

	_, err = c.DeleteLaunches(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrLaunchNotFound), "got %v", err)
}

func TestUnexpectedStatus(t *testing.T) {
	var calls int
	var mu sync.Mutex
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))

	_, err := c.LaunchByUUID(context.Background(), "abc")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, 2, calls, "one retry expected")
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "run-1.xml")
	require.NoError(t, os.WriteFile(report, []byte(`<testsuite name="s" tests="0"></testsuite>`), 0644))

	var uploaded []byte
	var uploadedName, uploadedType string
	rp := newFakeRP(t)
	mux := http.NewServeMux()
	mux.HandleFunc(launchPath+"/import", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, h, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		uploaded, _ = io.ReadAll(f)
		uploadedName, uploadedType = h.Filename, h.Header.Get("Content-Type")
		writeJSON(w, map[string]string{"message": "Launch with id = 6a1c-77 is successfully imported."})
	})
	mux.HandleFunc(launchPath+"/uuid/6a1c-77", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Launch{ID: 42, UUID: "6a1c-77", Name: "run-1"})
	})
	mux.Handle("/", rp)
	c := newTestClient(t, mux)

	launch, err := c.Import(context.Background(), ImportOptions{
		File:        report,
		Subteam:     "SDN",
		Version:     "4.16",
		AttrOption:  "build_version: 4.16.0-rc.1",
		ProfileName: "ipi-on-aws",
		Trial:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), launch.ID)

	assert.Equal(t, "run-1.zip", uploadedName)
	assert.Equal(t, "application/zip", uploadedType)
	zr, err := zip.NewReader(bytes.NewReader(uploaded), int64(len(uploaded)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "run-1.xml", zr.File[0].Name)

	var update struct {
		Attributes []AttributeChange `json:"attributes"`
		IDs        []int64           `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rp.body("PUT "+launchPath+"/info"), &update))
	assert.Equal(t, []int64{42}, update.IDs)
	assert.Contains(t, update.Attributes, CreateAttribute("build_version", "4.16.0-rc.1"))
}

func TestImportAttributes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "4.16"), 0755))
	profile := "custom_fields:\n  env_os: rhcos\n  products: [ocp]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "4.16", "upi.test_run.yaml"), []byte(profile), 0644))

	cases := []struct {
		name string
		opts ImportOptions
		want []AttributeChange
	}{
		{
			name: "defaults",
			opts: ImportOptions{File: "/tmp/launch-a.xml", Subteam: "OLM", Version: "4.15"},
			want: []AttributeChange{
				CreateAttribute("name", "launch-a"),
				CreateAttribute("team", "OLM"),
				CreateAttribute("version", "4_15"),
				CreateAttribute("build_version", NoBuildVersion),
				CreateAttribute("pipeline_type", "unifyci"),
				CreateAttribute("profilename", ""),
				CreateAttribute("launchtype", "golang"),
				CreateAttribute("nontrial", `""`),
			},
		},
		{
			name: "profile",
			opts: ImportOptions{
				File: "launch-b.zip", Subteam: "SDN", Version: "4.16", ProfileName: "upi",
				ProfileDir: dir, AttrOption: "build_version: 4.16.1", Trial: true,
			},
			want: []AttributeChange{
				CreateAttribute("name", "launch-b"),
				CreateAttribute("team", "SDN"),
				CreateAttribute("version", "4_16"),
				CreateAttribute("build_version", "4.16.1"),
				CreateAttribute("pipeline_type", "unifyci"),
				CreateAttribute("profilename", "upi"),
				CreateAttribute("launchtype", "golang"),
				CreateAttribute("trial", `""`),
				CreateAttribute("env_os", "rhcos"),
				CreateAttribute("products", "ocp"),
			},
		},
		{
			name: "build number",
			opts: ImportOptions{File: "d.xml", Subteam: "OLM", Version: "4.16", BuildNum: "1234-nightly"},
			want: []AttributeChange{
				CreateAttribute("name", "d"),
				CreateAttribute("team", "OLM"),
				CreateAttribute("version", "4_16"),
				CreateAttribute("gbuildnum", "1234-nightly"),
				CreateAttribute("build_version", NoBuildVersion),
				CreateAttribute("pipeline_type", "unifyci"),
				CreateAttribute("profilename", ""),
				CreateAttribute("launchtype", "golang"),
				CreateAttribute("nontrial", `""`),
			},
		},
		{
			name: "missing profile",
			opts: ImportOptions{File: "c.xml", Subteam: "SDN", Version: "4.14", ProfileName: "upi", ProfileDir: dir, AttrOption: "other: x"},
			want: []AttributeChange{
				CreateAttribute("name", "c"),
				CreateAttribute("team", "SDN"),
				CreateAttribute("version", "4_14"),
				CreateAttribute("build_version", NoBuildVersion),
				CreateAttribute("pipeline_type", "unifyci"),
				CreateAttribute("profilename", "upi"),
				CreateAttribute("launchtype", "golang"),
				CreateAttribute("nontrial", `""`),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ImportAttributes(tc.opts)); diff != "" {
				t.Errorf("unexpected attributes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRerunFilter(t *testing.T) {
	subteams := config.NewSubteamSet(config.DefaultSubteams...)
	rp := newFakeRP(t, teamLaunch(1, "run-1", "OLM"), teamLaunch(2, "run-1", "SDN"), teamLaunch(3, "run-2", "OLM"))
	rp.items[1] = []Item{{Type: "STEP", Name: "OCP-11111 fails"}, {Type: "STEP", Name: "OCP-22222 fails"}}
	rp.broken[2] = true
	c := newTestClient(t, rp)
	ctx := context.Background()

	cases := []struct {
		name      string
		launch    string
		scenarios string
		want      RerunPlan
		warnings  int
	}{
		{
			name:      "new launch",
			launch:    "run-9",
			scenarios: "OLM",
			want:      RerunPlan{Status: RerunNewLaunch},
		},
		{
			name:      "no subteam",
			launch:    "run-1",
			scenarios: "foo|bar",
			want:      RerunPlan{Status: RerunNoSubteam},
		},
		{
			name:      "failed cases, missing subteams and free filters",
			launch:    "run-1",
			scenarios: "OLM| SDN |Storage|isv]|some-filter",
			want:      RerunPlan{Filter: "11111|22222|Storage|isv]|some-filter"},
			warnings:  1,
		},
		{
			name:      "nothing failed",
			launch:    "run-2",
			scenarios: "OLM",
			want:      RerunPlan{Status: RerunNothingToRerun},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := c.RerunFilter(ctx, tc.launch, tc.scenarios, subteams)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Status, plan.Status)
			assert.Equal(t, tc.want.Filter, plan.Filter)
			assert.Len(t, plan.Warnings, tc.warnings)
		})
	}
}
