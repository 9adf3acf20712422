package fhirpackage

import (
	"archive/tar"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// maxEntrySize bounds a single archive entry.
const maxEntrySize = 100 * 1024 * 1024

const entryPrefix = "package/"

// ReadArchive reads an npm-style .tgz and keeps its JSON entries.
func ReadArchive(id Identifier, r io.Reader) (*Package, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open archive of %s", id)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var entries []Entry
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read archive of %s", id)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Clean(strings.TrimPrefix(header.Name, "./"))
		name = strings.TrimPrefix(name, entryPrefix)
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "../") {
			continue
		}
		if header.Size > maxEntrySize {
			return nil, errors.Errorf("archive of %s: entry %s exceeds %d bytes", id, name, maxEntrySize)
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s from archive of %s", name, id)
		}
		entries = append(entries, Entry{Name: name, Data: data})
	}

	return New(id, entries), nil
}

// WriteArchive writes the package entries as an npm-style .tgz.
func (p *Package) WriteArchive(w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, e := range p.entries {
		header := &tar.Header{
			Name:     entryPrefix + e.Name,
			Mode:     0o644,
			Size:     int64(len(e.Data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return errors.Wrapf(err, "failed to write archive of %s", p.id)
		}
		if _, err := tw.Write(e.Data); err != nil {
			return errors.Wrapf(err, "failed to write archive of %s", p.id)
		}
	}
	if err := tw.Close(); err != nil {
		return errors.Wrapf(err, "failed to close archive of %s", p.id)
	}
	return gz.Close()
}

// Archive returns the package as .tgz bytes.
func (p *Package) Archive() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteArchive(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
