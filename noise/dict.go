package noise

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/3cs/benchcal/calerr"
)

const (
	// DictFile holds key -> 5 coefficients
	DictFile = "noise_dict.json"

	// DomainFile holds key -> [min, max] of the fitted x values
	DomainFile = "noise_domain.json"
)

// WriteDict writes the coefficient dictionary as a JSON object
func (p Profile) WriteDict(w io.Writer) error {
	m := make(map[string][]float64, len(p))
	for k, e := range p {
		c := e.Coeffs
		m[k.String()] = c[:]
	}
	return json.NewEncoder(w).Encode(m)
}

// WriteDomain writes the fit domains of the entries that have one
func (p Profile) WriteDomain(w io.Writer) error {
	m := make(map[string][2]float64, len(p))
	for k, e := range p {
		if e.HasDomain {
			m[k.String()] = [2]float64{e.Min, e.Max}
		}
	}
	return json.NewEncoder(w).Encode(m)
}

// ReadDict reads a coefficient dictionary.  The entries have no domain.
func ReadDict(r io.Reader) (Profile, error) {
	m := map[string][]float64{}
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrapf(calerr.ErrMalformedRecord, "decoding noise dictionary: %v", err)
	}
	p := make(Profile, len(m))
	for s, c := range m {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		if len(c) != len(Entry{}.Coeffs) {
			return nil, errors.Wrapf(calerr.ErrMalformedRecord, "%s has %d coefficients, want %d", s, len(c), len(Entry{}.Coeffs))
		}
		e := Entry{}
		copy(e.Coeffs[:], c)
		if !e.Coeffs.Valid() {
			return nil, errors.Wrapf(calerr.ErrMalformedRecord, "%s has a non finite coefficient", s)
		}
		p[k] = e
	}
	return p, nil
}

// ReadDomain attaches the domains in r to the entries of p.  A domain for a
// key p does not hold is an error.
func (p Profile) ReadDomain(r io.Reader) error {
	m := map[string][2]float64{}
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return errors.Wrapf(calerr.ErrMalformedRecord, "decoding noise domain: %v", err)
	}
	for s, d := range m {
		k, err := ParseKey(s)
		if err != nil {
			return err
		}
		e, err := p.Lookup(k)
		if err != nil {
			return errors.Wrap(err, "domain file")
		}
		if !(d[0] <= d[1]) {
			return errors.Wrapf(calerr.ErrMalformedRecord, "%s domain [%v, %v] is empty", s, d[0], d[1])
		}
		e.Min, e.Max, e.HasDomain = d[0], d[1], true
		p[k] = e
	}
	return nil
}

// Save writes the dictionary and the domain sidecar into dir.  Existing
// files are not overwritten.
func (p Profile) Save(dir string) error {
	for _, f := range []struct {
		name  string
		write func(io.Writer) error
	}{
		{DictFile, p.WriteDict},
		{DomainFile, p.WriteDomain},
	} {
		if err := writeNew(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the dictionary in dir, and the domain sidecar if present
func Load(dir string) (Profile, error) {
	return LoadFile(filepath.Join(dir, DictFile))
}

// LoadFile reads the dictionary at path.  The domain sidecar is looked for
// next to it.
func LoadFile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := ReadDict(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	dpath := filepath.Join(filepath.Dir(path), DomainFile)
	df, err := os.Open(dpath)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	} else if err != nil {
		return nil, err
	}
	defer df.Close()
	if err := p.ReadDomain(df); err != nil {
		return nil, errors.Wrap(err, dpath)
	}
	return p, nil
}

func writeNew(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}
