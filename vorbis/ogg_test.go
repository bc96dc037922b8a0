//go:build test_unit

package vorbis

import (
	"encoding/binary"
)

// silentBlockFrames is the number of frames each short block adds after the
// first one, with 256 sample blocks.
const silentBlockFrames = 128

// bitWriter packs values least significant bit first, like the Vorbis headers.
type bitWriter struct {
	buf []byte
	bit uint
}

func (w *bitWriter) write(v uint64, bits int) {
	for i := 0; i < bits; i++ {
		if w.bit == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << w.bit
		}
		w.bit = (w.bit + 1) % 8
	}
}

func (w *bitWriter) writeBytes(b []byte) {
	for _, c := range b {
		w.write(uint64(c), 8)
	}
}

func vorbisHeader(typ byte) *bitWriter {
	w := &bitWriter{}
	w.write(uint64(typ), 8)
	w.writeBytes([]byte("vorbis"))
	return w
}

func identificationHeader(channels, rate int) []byte {
	w := vorbisHeader(1)
	w.write(0, 32) // version
	w.write(uint64(channels), 8)
	w.write(uint64(rate), 32)
	w.write(0, 32) // bitrate maximum
	w.write(0, 32) // bitrate nominal
	w.write(0, 32) // bitrate minimum
	w.write(8, 4)  // blocksize 0, 256 samples
	w.write(8, 4)  // blocksize 1, 256 samples
	w.write(1, 1)
	return w.buf
}

func commentHeader(comments []string) []byte {
	w := vorbisHeader(3)
	vendor := "go-vgmplay test"
	w.write(uint64(len(vendor)), 32)
	w.writeBytes([]byte(vendor))
	w.write(uint64(len(comments)), 32)
	for _, c := range comments {
		w.write(uint64(len(c)), 32)
		w.writeBytes([]byte(c))
	}
	w.write(1, 1)
	return w.buf
}

// setupHeader describes a single mode with short blocks, one unused floor 1
// and an empty residue, enough to decode packets of silence.
func setupHeader() []byte {
	w := vorbisHeader(5)

	// one codebook, two entries of length one
	w.write(0, 8)
	w.write(0x564342, 24)
	w.write(1, 16) // dimensions
	w.write(2, 24) // entries
	w.write(0, 1)  // ordered
	w.write(0, 1)  // sparse
	w.write(0, 5)
	w.write(0, 5)
	w.write(0, 4) // no lookup

	// time domain transforms
	w.write(0, 6)
	w.write(0, 16)

	// floor 1 without partitions
	w.write(0, 6)
	w.write(1, 16)
	w.write(0, 5) // partitions
	w.write(0, 2) // multiplier
	w.write(7, 4) // range bits

	// residue 0 covering nothing
	w.write(0, 6)
	w.write(0, 16)
	w.write(0, 24) // begin
	w.write(0, 24) // end
	w.write(0, 24) // partition size
	w.write(0, 6)  // classifications
	w.write(0, 8)  // classbook
	w.write(0, 3)  // cascade
	w.write(0, 1)

	// mapping 0 with a single submap
	w.write(0, 6)
	w.write(0, 16)
	w.write(0, 1) // submaps
	w.write(0, 1) // coupling
	w.write(0, 2) // reserved
	w.write(0, 8) // time
	w.write(0, 8) // floor
	w.write(0, 8) // residue

	// one short block mode
	w.write(0, 6)
	w.write(0, 1)  // block flag
	w.write(0, 16) // window type
	w.write(0, 16) // transform type
	w.write(0, 8)  // mapping

	w.write(1, 1)
	return w.buf
}

var oggCRCTable = func() (table [256]uint32) {
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func oggCRC(data []byte) (crc uint32) {
	for _, b := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

const (
	pageBOS = 0x02
	pageEOS = 0x04
)

// oggPage frames whole packets into a single page.
func oggPage(flags byte, granule int64, seq uint32, packets ...[]byte) []byte {
	var lacing, body []byte
	for _, p := range packets {
		n := len(p)
		for ; n >= 255; n -= 255 {
			lacing = append(lacing, 255)
		}
		lacing = append(lacing, byte(n))
		body = append(body, p...)
	}

	if len(lacing) > 255 {
		panic("too many segments for a single page")
	}

	page := make([]byte, 27, 27+len(lacing)+len(body))
	copy(page, "OggS")
	page[5] = flags
	binary.LittleEndian.PutUint64(page[6:], uint64(granule))
	binary.LittleEndian.PutUint32(page[14:], 0x76676d70)
	binary.LittleEndian.PutUint32(page[18:], seq)
	page[26] = byte(len(lacing))
	page = append(page, lacing...)
	page = append(page, body...)

	binary.LittleEndian.PutUint32(page[22:], oggCRC(page))
	return page
}

// silentOgg builds a stereo 44.1kHz Ogg Vorbis stream of packets audio
// packets of silence, perPage packets to a page. The stream is
// (packets-1)*silentBlockFrames frames long.
func silentOgg(packets, perPage int, comments ...string) []byte {
	var out []byte
	out = append(out, oggPage(pageBOS, 0, 0, identificationHeader(2, 44100))...)
	out = append(out, oggPage(0, 0, 1, commentHeader(comments), setupHeader())...)

	seq := uint32(2)
	for first := 0; first < packets; first += perPage {
		last := min(first+perPage, packets) - 1

		page := make([][]byte, 0, last-first+1)
		for i := first; i <= last; i++ {
			// audio packet, mode 0, both floors unused
			page = append(page, []byte{0})
		}

		var flags byte
		if last == packets-1 {
			flags = pageEOS
		}

		out = append(out, oggPage(flags, int64(last)*silentBlockFrames, seq, page...)...)
		seq++
	}

	return out
}
