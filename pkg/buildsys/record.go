package buildsys

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(Record{})
}

// WriteRecord stores a run record in file, creating parent directories as needed.
func WriteRecord(file string, record *Record) error {
	err := os.MkdirAll(filepath.Dir(file), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", file)
	}

	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", file)
	}
	defer handle.Close()

	err = gob.NewEncoder(handle).Encode(record)
	if err != nil {
		return eris.Wrapf(err, "failed to encode run record")
	}

	return handle.Close()
}

// ReadRecord loads a record previously written by WriteRecord
func ReadRecord(file string) (*Record, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	var record Record
	err = gob.NewDecoder(handle).Decode(&record)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", file)
	}

	return &record, nil
}
