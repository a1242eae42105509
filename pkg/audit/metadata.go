package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"
)

const metadataFile = "audit-metadata.json"

// Metadata describes the journal next to it: the schema version the
// tables were created with and when the journal was last written.
type Metadata struct {
	Version   int
	UpdatedAt time.Time
}

// MetadataClient reads and writes the journal metadata file.
type MetadataClient struct {
	path string
}

// MetadataPath returns the metadata file path for a journal directory.
func MetadataPath(dir string) string {
	return filepath.Join(dir, metadataFile)
}

func NewMetadata(dir string) MetadataClient {
	return MetadataClient{
		path: MetadataPath(dir),
	}
}

// Get returns the journal metadata.
func (c MetadataClient) Get() (Metadata, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return Metadata{}, xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	var meta Metadata
	if err = json.NewDecoder(f).Decode(&meta); err != nil {
		return Metadata{}, xerrors.Errorf("unable to decode metadata: %w", err)
	}
	return meta, nil
}

func (c MetadataClient) Update(meta Metadata) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return xerrors.Errorf("mkdir error: %w", err)
	}

	f, err := os.Create(c.path)
	if err != nil {
		return xerrors.Errorf("unable to open a file: %w", err)
	}
	defer f.Close()

	if err = json.NewEncoder(f).Encode(&meta); err != nil {
		return xerrors.Errorf("unable to encode metadata: %w", err)
	}
	return nil
}

// Delete removes the metadata file.
func (c MetadataClient) Delete() error {
	if err := os.Remove(c.path); err != nil {
		return xerrors.Errorf("unable to remove the metadata file: %w", err)
	}
	return nil
}
