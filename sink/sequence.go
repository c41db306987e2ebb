package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stillcam/camera"
)

// Stdout is the template that sends stills to standard output.
const Stdout = "-"

// Sequence writes each frame to a file named from a template. A template
// with a printf verb, like image%04d.ppm, is numbered per frame; any other
// template is overwritten by every frame.
type Sequence struct {
	Template string
	// Stdout receives frames when Template is "-".
	Stdout io.Writer

	l    sync.Mutex
	next int
	last string
}

func NewSequence(template string) *Sequence {
	return &Sequence{
		Template: template,
		Stdout:   os.Stdout,
	}
}

func (s *Sequence) path(n int) string {
	if strings.Contains(s.Template, "%") {
		return fmt.Sprintf(s.Template, n)
	}
	return s.Template
}

func (s *Sequence) Put(f camera.Frame) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.Template == Stdout {
		if err := NewPNMWriter(s.Stdout).WriteFrame(f); err != nil {
			return errors.Wrap(err, "write stdout")
		}
		s.next++
		s.last = Stdout
		return nil
	}

	path := s.path(s.next)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := NewPNMWriter(file).WriteFrame(f); err != nil {
		file.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", path)
	}
	log.WithField("path", path).Infof("Wrote %v still, %d bytes", f.Format, len(f.Data))
	s.next++
	s.last = path
	return nil
}

// Location returns the path of the last still written.
func (s *Sequence) Location() string {
	s.l.Lock()
	defer s.l.Unlock()
	return s.last
}

// Written returns how many stills have been written.
func (s *Sequence) Written() int {
	s.l.Lock()
	defer s.l.Unlock()
	return s.next
}

func (s *Sequence) Close() error {
	return nil
}
