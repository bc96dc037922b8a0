package metadata

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"golang.org/x/sys/unix"
)

// FIFOManager manages the metadata FIFO pipe
type FIFOManager struct {
	log    vgmplay.Logger
	path   string
	format string

	pipe   *os.File
	mutex  sync.Mutex
	closed bool
	buffer chan []byte
	stopCh chan struct{}
	doneCh chan struct{}

	writeCount atomic.Int64
	errorCount atomic.Int64
	dropCount  atomic.Int64
}

func NewFIFOManager(log vgmplay.Logger, path, format string, bufferSize int) *FIFOManager {
	return &FIFOManager{
		log:    log,
		path:   path,
		format: format,
		buffer: make(chan []byte, bufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start creates the named pipe and starts the writer goroutine.
func (fm *FIFOManager) Start() error {
	switch fm.format {
	case "text", "json", "xml":
	default:
		return fmt.Errorf("unknown metadata format: %s", fm.format)
	}

	if err := fm.createFIFO(); err != nil {
		return fmt.Errorf("failed to create FIFO: %w", err)
	}

	fm.log.WithField("path", fm.path).WithField("format", fm.format).
		Infof("metadata FIFO started")

	go fm.writerLoop()

	return nil
}

// Stop stops the writer and removes the named pipe.
func (fm *FIFOManager) Stop() {
	fm.mutex.Lock()
	if fm.closed {
		fm.mutex.Unlock()
		return
	}

	fm.closed = true
	close(fm.stopCh)
	fm.mutex.Unlock()

	<-fm.doneCh

	fm.mutex.Lock()
	if fm.pipe != nil {
		_ = fm.pipe.Close()
		fm.pipe = nil
	}
	fm.mutex.Unlock()

	_ = os.Remove(fm.path)

	fm.log.WithField("writes", fm.writeCount.Load()).
		WithField("errors", fm.errorCount.Load()).
		WithField("drops", fm.dropCount.Load()).
		Infof("metadata FIFO stopped")
}

func (fm *FIFOManager) encode(np *NowPlaying) []byte {
	switch fm.format {
	case "json":
		return np.ToJSONFormat()
	case "xml":
		return np.ToXMLFormat()
	default:
		return np.ToTextFormat()
	}
}

// WriteMetadata queues the readout, dropping it if the writer is behind.
func (fm *FIFOManager) WriteMetadata(np *NowPlaying) {
	fm.mutex.Lock()
	closed := fm.closed
	fm.mutex.Unlock()

	if closed {
		return
	}

	select {
	case fm.buffer <- fm.encode(np):
	case <-time.After(50 * time.Millisecond):
		fm.dropCount.Add(1)
	}
}

func (fm *FIFOManager) createFIFO() error {
	// Remove existing FIFO if it exists
	_ = os.Remove(fm.path)

	if err := unix.Mkfifo(fm.path, 0o666); err != nil {
		return fmt.Errorf("mkfifo failed: %w", err)
	}

	return nil
}

// openFIFO opens the FIFO for writing without waiting for a reader.
func (fm *FIFOManager) openFIFO() error {
	pipe, err := os.OpenFile(fm.path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("failed to open FIFO: %w", err)
	}

	fm.pipe = pipe
	return nil
}

func (fm *FIFOManager) writerLoop() {
	defer close(fm.doneCh)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case data := <-fm.buffer:
			if err := fm.writeToFIFO(data); err != nil {
				// Only log errors occasionally to avoid spam
				if fm.errorCount.Add(1)%50 == 1 {
					fm.log.WithError(err).Debugf("error writing to metadata FIFO")
				}
			} else {
				fm.writeCount.Add(1)
			}

		case <-ticker.C:
			fm.checkFIFOConnection()

		case <-fm.stopCh:
			return
		}
	}
}

// writeToFIFO writes data to the FIFO, reopening it if needed. Without a
// reader the open fails with ENXIO and the data is dropped.
func (fm *FIFOManager) writeToFIFO(data []byte) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	if fm.pipe == nil {
		if err := fm.openFIFO(); errors.Is(err, unix.ENXIO) {
			fm.dropCount.Add(1)
			return nil
		} else if err != nil {
			return err
		}
	}

	if _, err := fm.pipe.Write(data); err != nil {
		// Close and attempt to reopen on error
		_ = fm.pipe.Close()
		fm.pipe = nil
		return err
	}

	return nil
}

// checkFIFOConnection drops the pipe once the reader went away.
func (fm *FIFOManager) checkFIFOConnection() {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	if fm.pipe == nil {
		return
	}

	if _, err := fm.pipe.Write([]byte{}); err != nil {
		_ = fm.pipe.Close()
		fm.pipe = nil
	}
}
