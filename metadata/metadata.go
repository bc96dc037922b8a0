package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// NowPlaying is the readout of the current track.
type NowPlaying struct {
	Title     string    `json:"title"`
	File      string    `json:"file"`
	Duration  int64     `json:"duration_ms"`
	Position  int64     `json:"position_ms"`
	Loop      bool      `json:"loop"`
	Playing   bool      `json:"playing"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNowPlaying() *NowPlaying {
	return &NowPlaying{
		Timestamp: time.Now(),
	}
}

// ToTextFormat is a single status line: the title and the position over the
// length in seconds.
func (np *NowPlaying) ToTextFormat() []byte {
	if !np.Playing {
		return []byte("stopped\n")
	}

	total := "?"
	if np.Duration > 0 {
		total = fmt.Sprintf("%d", np.Duration/1000)
	}

	return []byte(fmt.Sprintf("%s  %d/%s\n", np.Title, np.Position/1000, total))
}

func (np *NowPlaying) ToJSONFormat() []byte {
	data, _ := json.Marshal(np)
	return append(data, '\n')
}

// ToXMLFormat writes the items in the shairport-sync metadata pipe format.
func (np *NowPlaying) ToXMLFormat() []byte {
	var result []byte

	// Helper function to encode XML metadata item with hex-encoded type/code
	encodeItem := func(itemType, code, data string) []byte {
		typeHex := fmt.Sprintf("%08x", stringToUint32(itemType))
		codeHex := fmt.Sprintf("%08x", stringToUint32(code))

		// the length is the one of the data before encoding
		encodedData := base64.StdEncoding.EncodeToString([]byte(data))

		return []byte(fmt.Sprintf("<item><type>%s</type><code>%s</code><length>%x</length><data>%s</data></item>\n",
			typeHex, codeHex, len(data), encodedData))
	}

	if np.Title != "" {
		result = append(result, encodeItem("core", "minm", np.Title)...)
	}

	playState := "stop"
	if np.Playing {
		playState = "play"
	}
	result = append(result, encodeItem("ssnc", "pply", playState)...)

	// Position (in seconds)
	result = append(result, encodeItem("ssnc", "ppos", fmt.Sprintf("%d", np.Position/1000))...)

	return result
}

func stringToUint32(s string) uint32 {
	if len(s) != 4 {
		return 0
	}
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}

func (np *NowPlaying) Update(file, title string, duration, position int64, loop, playing bool) {
	np.File = file
	np.Title = title
	np.Duration = duration
	np.Position = position
	np.Loop = loop
	np.Playing = playing
	np.Timestamp = time.Now()
}

// UpdatePosition updates only the position and timestamp
func (np *NowPlaying) UpdatePosition(position int64) {
	np.Position = position
	np.Timestamp = time.Now()
}

// UpdatePlayingState updates only the playing state and timestamp
func (np *NowPlaying) UpdatePlayingState(playing bool) {
	np.Playing = playing
	np.Timestamp = time.Now()
}
