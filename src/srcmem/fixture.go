package srcmem

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Fixture is a set of keys by data type, as read from yaml documents:
//
//	strings:
//	  user:1:name: alice
//	hashes:
//	  user:1: {name: alice, age: "31"}
//	lists:
//	  queue: [a, b]
//	sets:
//	  tags: [red, blue]
//	zsets:
//	  scores: {alice: 3.5}
//	ttls:
//	  queue: 60s
type Fixture struct {
	Strings map[string]string             `yaml:"strings"`
	Hashes  map[string]map[string]string  `yaml:"hashes"`
	Lists   map[string][]string           `yaml:"lists"`
	Sets    map[string][]string           `yaml:"sets"`
	Zsets   map[string]map[string]float64 `yaml:"zsets"`
	TTLs    map[string]time.Duration      `yaml:"ttls"`
}

// ReadFixture decodes all yaml documents from r and merges them into one fixture.
func ReadFixture(r io.Reader) (*Fixture, error) {
	res := &Fixture{}
	dec := yaml.NewDecoder(r)
	for {
		var f Fixture
		err := dec.Decode(&f)
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "decode fixture")
		}
		res.merge(&f)
	}
}

// ReadFixturePath returns the fixture found at path or an error.
//
// Path must either point to a yaml file or a directory of yaml files. Files named with an
// additional '.gz' extension are read gzipped. Directory entries are read in lexical order and
// merged, with later files overwriting keys of earlier ones.
func ReadFixturePath(path string) (*Fixture, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture at path %q", path)
	}
	if !fi.IsDir() {
		return readFixtureFile(path)
	}
	fis, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture dir at path %q", path)
	}
	names := make([]string, 0, len(fis))
	for _, fi := range fis {
		n := strings.TrimSuffix(fi.Name(), ".gz")
		if !fi.IsDir() && (strings.HasSuffix(n, ".yaml") || strings.HasSuffix(n, ".yml")) {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	res := &Fixture{}
	for _, n := range names {
		f, err := readFixtureFile(filepath.Join(path, n))
		if err != nil {
			return nil, err
		}
		res.merge(f)
	}
	return res, nil
}

func readFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture at path %q", path)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "read gzipped fixture %q", path)
		}
		defer gz.Close()
		r = gz
	}
	res, err := ReadFixture(r)
	if err != nil {
		return nil, errors.Wrapf(err, "fixture %q", path)
	}
	return res, nil
}

func (f *Fixture) merge(o *Fixture) {
	f.Strings = mergeMap(f.Strings, o.Strings)
	f.Hashes = mergeMap(f.Hashes, o.Hashes)
	f.Lists = mergeMap(f.Lists, o.Lists)
	f.Sets = mergeMap(f.Sets, o.Sets)
	f.Zsets = mergeMap(f.Zsets, o.Zsets)
	f.TTLs = mergeMap(f.TTLs, o.TTLs)
}

func mergeMap[V any](a, b map[string]V) map[string]V {
	if len(b) == 0 {
		return a
	}
	if a == nil {
		a = make(map[string]V, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}

// Load adds all keys of the fixture to the backend. Existing keys are replaced.
func (b *Backend) Load(f *Fixture) error {
	for k, v := range f.Strings {
		b.Set(k, v)
	}
	for k, v := range f.Hashes {
		b.Del(k)
		if err := b.HSet(k, v); err != nil {
			return errors.Wrapf(err, "load hash %s", k)
		}
	}
	for k, v := range f.Lists {
		b.Del(k)
		if err := b.RPush(k, v...); err != nil {
			return errors.Wrapf(err, "load list %s", k)
		}
	}
	for k, v := range f.Sets {
		b.Del(k)
		if err := b.SAdd(k, v...); err != nil {
			return errors.Wrapf(err, "load set %s", k)
		}
	}
	for k, v := range f.Zsets {
		b.Del(k)
		if err := b.ZAdd(k, v); err != nil {
			return errors.Wrapf(err, "load sorted set %s", k)
		}
	}
	for k, d := range f.TTLs {
		if !b.Expire(k, d) {
			return errors.Errorf("ttl for missing key %s", k)
		}
	}
	return nil
}

// Open returns a new backend loaded with the fixture at path.
func Open(path string) (*Backend, error) {
	f, err := ReadFixturePath(path)
	if err != nil {
		return nil, err
	}
	b := New()
	if err = b.Load(f); err != nil {
		return nil, err
	}
	return b, nil
}
