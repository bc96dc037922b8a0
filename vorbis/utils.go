package vorbis

import (
	"github.com/xlab/vorbis-go/vorbis"
)

// ReadInfo reads info and comment into Info, a go-friendly struct.
func ReadInfo(vi *vorbis.Info, vc *vorbis.Comment) Info {
	info := Info{
		Channels:   vi.Channels,
		SampleRate: int32(vi.Rate),
		Vendor:     toString(vc.Vendor, 256),
	}
	lengths := vc.CommentLengths[:vc.Comments]
	userComments := vc.UserComments[:vc.Comments]
	for i, text := range userComments {
		info.Comments = append(info.Comments, string(text[:lengths[i]]))
	}
	return info
}

func toString(buf []byte, maxlen int) string {
	buf = buf[:maxlen]
	for i := range buf {
		if buf[i] == 0 {
			return string(buf[:i:i])
		}
	}
	return ""
}
