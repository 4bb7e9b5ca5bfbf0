package reportportal

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mholt/archiver/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openshift-qe/qetools/internal/attribution"
)

const (
	PipelineType   = "unifyci"
	LaunchType     = "golang"
	NoBuildVersion = "nobuildversion"
	emptyAttrValue = `""`

	BuildNumAttribute = "gbuildnum"
)

var importedUUIDRegex = regexp.MustCompile(`id\s*=\s*(\S+)`)

// ImportOptions describes a launch import and the attributes attached to it.
type ImportOptions struct {
	// File is the JUnit report, or a zip holding it.
	File    string
	Subteam string
	Version string
	// AttrOption is the YAML attribute option of the CI job; its
	// build_version becomes a launch attribute.
	AttrOption  string
	ProfileName string
	// ProfileDir, when set, adds the custom fields of the test-run profile.
	ProfileDir string
	Trial      bool
	// BuildNum identifies the CI build, <job>-<type>[-...]. It is kept in
	// the gbuildnum attribute; a rerun of another build type appends to it.
	BuildNum string
	// RerunReport is the JUnit report replayed onto an existing launch,
	// import-<subteam>.xml when empty.
	RerunReport string
}

// LaunchName is the name ReportPortal gives to an imported file.
func LaunchName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ImportAttributes builds the attributes attached to an imported launch.
func ImportAttributes(opts ImportOptions) []AttributeChange {
	buildVersion := NoBuildVersion
	if opts.AttrOption != "" {
		if doc, err := attribution.Parse([]byte(opts.AttrOption)); err != nil {
			log.WithError(err).Warn("ignoring attribute option")
		} else if v, err := doc.GetString("build_version"); err == nil && v != "" {
			buildVersion = v
		}
	}

	changes := []AttributeChange{
		CreateAttribute("name", LaunchName(opts.File)),
		CreateAttribute("team", opts.Subteam),
		CreateAttribute("version", strings.ReplaceAll(opts.Version, ".", "_")),
	}
	if opts.BuildNum != "" {
		changes = append(changes, CreateAttribute(BuildNumAttribute, opts.BuildNum))
	}
	changes = append(changes,
		CreateAttribute("build_version", buildVersion),
		CreateAttribute("pipeline_type", PipelineType),
		CreateAttribute("profilename", opts.ProfileName),
		CreateAttribute("launchtype", LaunchType),
	)
	if opts.Trial {
		changes = append(changes, CreateAttribute("trial", emptyAttrValue))
	} else {
		changes = append(changes, CreateAttribute("nontrial", emptyAttrValue))
	}

	if opts.ProfileDir == "" {
		return changes
	}
	profile, err := attribution.LoadProfile(opts.ProfileDir, opts.Version, opts.ProfileName)
	if err != nil {
		log.WithError(err).Warn("launch imported without profile attributes")
		return changes
	}
	attrs := profile.Attributes(attribution.ProfileAttributeKeys)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		changes = append(changes, CreateAttribute(k, attrs[k]))
	}
	return changes
}

// zipReport packs file into a zip under dir, unless it already is one.
func zipReport(file, dir string) (string, error) {
	if strings.EqualFold(filepath.Ext(file), ".zip") {
		return file, nil
	}
	dest := filepath.Join(dir, LaunchName(file)+".zip")
	z := archiver.NewZip()
	z.OverwriteExisting = true
	if err := z.Archive([]string{file}, dest); err != nil {
		return "", errors.Wrapf(err, "unable to zip %s", file)
	}
	return dest, nil
}

func multipartZip(path string) (string, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filepath.Base(path)+`"`)
	h.Set("Content-Type", "application/zip")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", nil, errors.Wrapf(err, "unable to read %s", path)
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

// ImportLaunch uploads a JUnit report and returns the launch it created.
func (c *Client) ImportLaunch(ctx context.Context, file string) (*Launch, error) {
	tmp, err := os.MkdirTemp("", "qetools-import-")
	if err != nil {
		return nil, errors.Wrap(err, "unable to create temp dir")
	}
	defer os.RemoveAll(tmp)

	zipPath, err := zipReport(file, tmp)
	if err != nil {
		return nil, err
	}
	contentType, body, err := multipartZip(zipPath)
	if err != nil {
		return nil, err
	}

	resp := struct {
		Message string `json:"message"`
	}{}
	if err := c.do(ctx, http.MethodPost, c.launchURL+"/import", c.token, contentType, body, &resp); err != nil {
		return nil, errors.Wrapf(err, "unable to import %s", file)
	}
	m := importedUUIDRegex.FindStringSubmatch(resp.Message)
	if m == nil {
		return nil, errors.Errorf("no launch id in import answer %q", resp.Message)
	}
	return c.LaunchByUUID(ctx, m[1])
}

// Import uploads the report of opts and tags the new launch with
// ImportAttributes.
func (c *Client) Import(ctx context.Context, opts ImportOptions) (*Launch, error) {
	launch, err := c.ImportLaunch(ctx, opts.File)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"launch": launch.ID, "subteam": opts.Subteam}).Info("imported launch")
	if err := c.UpdateAttributes(ctx, []int64{launch.ID}, ImportAttributes(opts)); err != nil {
		return launch, err
	}
	return launch, nil
}
