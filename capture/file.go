package capture

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// archive is the on-disk container for a set of exchanges.
type archive struct {
	Version   int         `msgpack:"v"`
	Exchanges []*Exchange `msgpack:"ex"`
}

const archiveVersion = 1

// WriteFile persists exchanges to path as a msgpack archive.
func WriteFile(path string, exchanges []*Exchange) error {
	data, err := msgpack.Marshal(&archive{Version: archiveVersion, Exchanges: exchanges})
	if err != nil {
		return fmt.Errorf("encode capture archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write capture archive: %w", err)
	}
	return nil
}

// ReadFile loads an exchange archive written by WriteFile.
func ReadFile(path string) ([]*Exchange, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture archive: %w", err)
	}
	var a archive
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode capture archive: %w", err)
	}
	if a.Version != archiveVersion {
		return nil, fmt.Errorf("unsupported capture archive version %d", a.Version)
	}
	return a.Exchanges, nil
}
