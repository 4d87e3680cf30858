package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilobridge/kilobridge/internal/id"
)

// Handoff is the transient file carrying one serialized Envelope to the
// agent. It is owned by the invocation that acquired it and must be
// released by that invocation.
type Handoff struct {
	path string
	once sync.Once
	err  error
}

// AcquireHandoff writes env to a new, uniquely named file in dir (the
// system temp dir when empty). On error no file is left behind.
func AcquireHandoff(dir string, env Envelope) (*Handoff, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	path := filepath.Join(dir, "kilobridge-"+id.Handoff()+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create handoff: %w", err)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write handoff: %w", err)
	}

	return &Handoff{path: path}, nil
}

// Path returns the location passed to the agent.
func (h *Handoff) Path() string {
	return h.path
}

// Release removes the handoff file. Only the first call has any effect;
// later calls return the first call's result.
func (h *Handoff) Release() error {
	h.once.Do(func() {
		err := os.Remove(h.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = fmt.Errorf("remove handoff: %w", err)
		}
	})
	return h.err
}
