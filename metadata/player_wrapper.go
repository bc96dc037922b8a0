package metadata

import (
	"sync"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// MetadataPipeConfig represents metadata pipe configuration
type MetadataPipeConfig struct {
	Enabled    bool
	Path       string
	Format     string
	BufferSize int
}

// PlayerMetadata keeps the now playing readout and pushes every change to
// the pipe.
type PlayerMetadata struct {
	fifoManager *FIFOManager
	nowPlaying  *NowPlaying
	mutex       sync.RWMutex
	enabled     bool
}

func NewPlayerMetadata(log vgmplay.Logger, config MetadataPipeConfig) *PlayerMetadata {
	pm := &PlayerMetadata{
		enabled:    config.Enabled,
		nowPlaying: NewNowPlaying(),
	}

	if config.Enabled {
		pm.fifoManager = NewFIFOManager(log, config.Path, config.Format, config.BufferSize)
	}

	return pm
}

func (pm *PlayerMetadata) Start() error {
	if !pm.enabled {
		return nil
	}

	return pm.fifoManager.Start()
}

func (pm *PlayerMetadata) Stop() {
	if !pm.enabled {
		return
	}

	pm.fifoManager.Stop()
}

// UpdateTrack resets the readout for a new track.
func (pm *PlayerMetadata) UpdateTrack(file, title string, duration time.Duration, loop bool) {
	pm.mutex.Lock()
	pm.nowPlaying.Update(file, title, duration.Milliseconds(), 0, loop, true)
	pm.mutex.Unlock()

	pm.writeMetadata()
}

func (pm *PlayerMetadata) UpdatePosition(position time.Duration) {
	pm.mutex.Lock()
	pm.nowPlaying.UpdatePosition(position.Milliseconds())
	pm.mutex.Unlock()

	pm.writeMetadata()
}

func (pm *PlayerMetadata) UpdatePlayingState(playing bool) {
	pm.mutex.Lock()
	pm.nowPlaying.UpdatePlayingState(playing)
	pm.mutex.Unlock()

	pm.writeMetadata()
}

// NowPlaying returns a copy of the current readout.
func (pm *PlayerMetadata) NowPlaying() NowPlaying {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	return *pm.nowPlaying
}

func (pm *PlayerMetadata) writeMetadata() {
	if !pm.enabled {
		return
	}

	np := pm.NowPlaying()
	pm.fifoManager.WriteMetadata(&np)
}
