// Package attribution reads launch attributes out of YAML documents: the
// attribute options passed by the CI job and the test-run profiles kept
// next to the job definitions.
package attribution

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// NotFoundValue is printed by the CLI when a lookup fails.
const NotFoundValue = "failtogetvalue"

var ErrNotFound = errors.New("attribute not found")

// ProfileAttributeKeys are the custom fields of a test-run profile copied to
// a launch on import.
var ProfileAttributeKeys = []string{
	"plannedin", "caseautomation", "env_network_plugin", "env_container_runtime", "env_auth",
	"env_iaas_cloud_provider", "env_os", "env_docker_storage_driver", "env_install_method",
	"env_network_backend", "env_cluster", "env_fips", "env_disconnected", "env_behind_proxy",
	"env_private_cluster", "env_networking_address", "products",
}

type Document struct {
	root interface{}
}

func Parse(data []byte) (*Document, error) {
	var root interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "unable to parse YAML document")
	}
	return &Document{root: root}, nil
}

// Get walks a colon separated path, e.g. "build:version", through maps and
// lists (numeric segments index lists).
func (d *Document) Get(path string) (interface{}, error) {
	value := d.root
	for _, key := range strings.Split(path, ":") {
		switch node := value.(type) {
		case map[interface{}]interface{}:
			v, ok := node[key]
			if !ok {
				return nil, errors.Wrapf(ErrNotFound, "key %q of %q", key, path)
			}
			value = v
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, errors.Wrapf(ErrNotFound, "index %q of %q", key, path)
			}
			value = node[i]
		default:
			return nil, errors.Wrapf(ErrNotFound, "%q of %q is not a map", key, path)
		}
	}
	return value, nil
}

// GetString returns the value at path rendered as a string.
func (d *Document) GetString(path string) (string, error) {
	v, err := d.Get(path)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	switch v.(type) {
	case map[interface{}]interface{}, []interface{}:
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	}
	return fmt.Sprint(v), nil
}

// Profile is a test-run profile, <dir>/<version>/<name>.test_run.yaml.
type Profile struct {
	CustomFields map[string]interface{} `yaml:"custom_fields"`
}

func ProfilePath(dir, version, name string) string {
	return filepath.Join(dir, version, name+".test_run.yaml")
}

func LoadProfile(dir, version, name string) (*Profile, error) {
	path := ProfilePath(dir, version, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read profile %s", path)
	}
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "unable to parse profile %s", path)
	}
	return p, nil
}

// Attributes returns the profile custom fields listed in keys. List values
// contribute their first element.
func (p *Profile) Attributes(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		v, ok := p.CustomFields[k]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]interface{}); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
