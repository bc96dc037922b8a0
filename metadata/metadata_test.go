//go:build test_unit

package metadata

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFormat(t *testing.T) {
	np := NewNowPlaying()
	assert.Equal(t, "stopped\n", string(np.ToTextFormat()))

	np.Update("music/green hill.ogg", "green hill", 95_500, 12_300, true, true)
	assert.Equal(t, "green hill  12/95\n", string(np.ToTextFormat()))

	np.Update("music/endless.mp3", "endless", 0, 3_000, false, true)
	assert.Equal(t, "endless  3/?\n", string(np.ToTextFormat()))
}

func TestJSONFormat(t *testing.T) {
	np := NewNowPlaying()
	np.Update("music/a.wav", "a", 2000, 1000, false, true)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(np.ToJSONFormat(), &decoded))
	assert.Equal(t, "a", decoded["title"])
	assert.Equal(t, float64(1000), decoded["position_ms"])
	assert.Equal(t, true, decoded["playing"])
}

func TestXMLFormat(t *testing.T) {
	np := NewNowPlaying()
	np.Update("music/a.wav", "title", 2000, 61_000, false, true)

	data := string(np.ToXMLFormat())
	assert.Contains(t, data, "<type>636f7265</type><code>6d696e6d</code><length>5</length><data>"+base64.StdEncoding.EncodeToString([]byte("title"))+"</data>")
	assert.Contains(t, data, "<code>70706c79</code><length>4</length><data>"+base64.StdEncoding.EncodeToString([]byte("play"))+"</data>")
	assert.Contains(t, data, "<code>70706f73</code><length>2</length><data>"+base64.StdEncoding.EncodeToString([]byte("61"))+"</data>")
}

func TestPlayerMetadataDisabled(t *testing.T) {
	pm := NewPlayerMetadata(&vgmplay.NullLogger{}, MetadataPipeConfig{})
	require.NoError(t, pm.Start())
	defer pm.Stop()

	pm.UpdateTrack("music/a.wav", "a", 2*time.Second, false)
	pm.UpdatePosition(time.Second)

	np := pm.NowPlaying()
	assert.Equal(t, "a", np.Title)
	assert.Equal(t, int64(1000), np.Position)
	assert.True(t, np.Playing)

	pm.UpdatePlayingState(false)
	assert.False(t, pm.NowPlaying().Playing)
}

func TestFIFOManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata")

	fm := NewFIFOManager(&vgmplay.NullLogger{}, path, "text", 4)
	require.NoError(t, fm.Start())

	// a reader must be there before the writer can open the pipe, opening it
	// read-write keeps reads from seeing EOF while no writer is connected
	reader, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer reader.Close()

	np := NewNowPlaying()
	np.Update("music/a.wav", "a", 10_000, 5_000, false, true)
	fm.WriteMetadata(np)

	line, err := bufio.NewReader(reader).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "a  5/10", strings.TrimSpace(line))

	fm.Stop()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFIFOManagerUnknownFormat(t *testing.T) {
	fm := NewFIFOManager(&vgmplay.NullLogger{}, filepath.Join(t.TempDir(), "metadata"), "dacp", 4)
	assert.Error(t, fm.Start())
}
