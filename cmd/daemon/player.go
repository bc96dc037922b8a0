package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/devgianlu/go-vgmplay/mpris"
	"github.com/devgianlu/go-vgmplay/player"
	"github.com/devgianlu/go-vgmplay/tracks"
	"github.com/godbus/dbus/v5"
)

// positionInterval is how often the now playing position is refreshed.
const positionInterval = time.Second

type AppPlayer struct {
	app *App

	emit func(ev *ApiEvent)
}

func newAppPlayer(app *App) *AppPlayer {
	return &AppPlayer{app: app, emit: app.server.Emit}
}

func trackTitle(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (p *AppPlayer) emitSelected() {
	name, _ := p.app.list.Current()
	p.emit(&ApiEvent{
		Type: ApiEventTypeSelected,
		Data: ApiEventDataSelected{File: name, Index: p.app.list.Index()},
	})
}

// playSelected starts the track under the list cursor.
func (p *AppPlayer) playSelected() error {
	name, ok := p.app.list.Current()
	if !ok {
		return fmt.Errorf("%w: no track selected", ErrNotFound)
	}

	return p.app.player.Play(filepath.Join(p.app.cfg.MusicDir, name))
}

func (p *AppPlayer) handlePlayerEvent(ev *player.Event) {
	switch ev.Type {
	case player.EventTypePlay:
		p.app.meta.UpdateTrack(filepath.Base(ev.Path), trackTitle(ev.Path), ev.Track.Duration(), ev.Track.Loop)

		p.app.log.WithField("path", ev.Path).
			Infof("playing %s (%d channels, %d Hz)", trackTitle(ev.Path), ev.Track.Channels, ev.Track.SampleRate)

		p.emit(&ApiEvent{
			Type: ApiEventTypePlaying,
			Data: ApiEventDataPlaying{
				File:     filepath.Base(ev.Path),
				Duration: ev.Track.Duration().Milliseconds(),
			},
		})
	case player.EventTypeNotPlaying:
		p.app.meta.UpdatePlayingState(false)
		p.emit(&ApiEvent{
			Type: ApiEventTypeNotPlaying,
			Data: ApiEventDataNotPlaying{File: filepath.Base(ev.Path)},
		})

		// back to the list, or on to the next track
		if !p.app.cfg.Autoplay || !p.app.list.Next() {
			return
		}

		p.emitSelected()
		if err := p.playSelected(); err != nil {
			p.app.log.WithError(err).Warnf("failed playing next track")
		}
	case player.EventTypeStop:
		p.app.meta.UpdatePlayingState(false)
		p.emit(&ApiEvent{
			Type: ApiEventTypeStopped,
			Data: ApiEventDataStopped{File: filepath.Base(ev.Path)},
		})
	case player.EventTypeError:
		p.app.meta.UpdatePlayingState(false)
		p.emit(&ApiEvent{
			Type: ApiEventTypeError,
			Data: ApiEventDataError{File: filepath.Base(ev.Path), Error: ev.Err.Error()},
		})
	}
}

func (p *AppPlayer) status() *ApiResponseStatus {
	status := p.app.player.Status()
	selected, _ := p.app.list.Current()

	resp := &ApiResponseStatus{
		Stopped:  !status.Playing(),
		State:    status.State.String(),
		Selected: selected,
		Shuffle:  p.app.list.Shuffled(),
		Autoplay: p.app.cfg.Autoplay,
	}

	if status.Playing() {
		resp.Track = &ApiResponseStatusTrack{
			File:       filepath.Base(status.Path),
			Name:       trackTitle(status.Path),
			Channels:   status.Track.Channels,
			SampleRate: status.Track.SampleRate,
			Position:   status.PositionDuration().Milliseconds(),
			Duration:   status.TotalDuration().Milliseconds(),
			Loop:       status.Track.Loop,
			Underruns:  status.Stats.Underruns,
		}
	}

	return resp
}

func (p *AppPlayer) tracks() *ApiResponseTracks {
	return &ApiResponseTracks{Tracks: p.app.list.Items(), Selected: p.app.list.Index()}
}

func (p *AppPlayer) handleApiRequest(req ApiRequest) (any, error) {
	switch req.Type {
	case ApiRequestTypeStatus:
		return p.status(), nil
	case ApiRequestTypeTracks:
		return p.tracks(), nil
	case ApiRequestTypeReload:
		if err := p.app.list.Reload(); err != nil {
			return nil, err
		}

		return p.tracks(), nil
	case ApiRequestTypePlay:
		data := req.Data.(ApiRequestDataPlay)
		if len(data.Name) > 0 {
			if err := p.app.list.Select(data.Name); errors.Is(err, tracks.ErrTrackNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
			} else if err != nil {
				return nil, err
			}

			p.emitSelected()
		}

		return nil, p.playSelected()
	case ApiRequestTypeNext:
		if p.app.list.Next() {
			p.emitSelected()
			return nil, p.playSelected()
		}

		return nil, nil
	case ApiRequestTypePrev:
		if p.app.list.Prev() {
			p.emitSelected()
			return nil, p.playSelected()
		}

		return nil, nil
	case ApiRequestTypeStop:
		p.app.player.Stop()
		return nil, nil
	case ApiRequestTypeShuffle:
		shuffle := req.Data.(bool)
		p.app.list.SetShuffle(shuffle)
		p.emit(&ApiEvent{Type: ApiEventTypeShuffle, Data: ApiEventDataShuffle{Value: shuffle}})
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

func (p *AppPlayer) updatePosition() {
	status := p.app.player.Status()
	if !status.Playing() {
		return
	}

	p.app.meta.UpdatePosition(status.PositionDuration())
}

func (p *AppPlayer) mprisState() mpris.MediaState {
	status := p.app.player.Status()

	state := mpris.MediaState{
		PlaybackStatus: mpris.Stopped,
		LoopStatus:     mpris.GetLoopStatus(p.app.cfg.Autoplay, false),
		Shuffle:        p.app.list.Shuffled(),
	}

	if status.Playing() {
		state.PlaybackStatus = mpris.Playing
		state.LoopStatus = mpris.GetLoopStatus(p.app.cfg.Autoplay, status.Track.Loop)
		state.PositionMs = status.PositionDuration().Milliseconds()
		state.Media = &mpris.Media{
			Path:     status.Path,
			Title:    trackTitle(status.Path),
			Duration: status.TotalDuration(),
			Loop:     status.Track.Loop,
		}
	}

	return state
}

func (p *AppPlayer) emitMprisState() {
	p.app.mpris.EmitStateUpdate(p.mprisState())
}

// handleMprisCommand maps media keys onto api requests. Playback cannot be
// paused, pausing stops the track.
func (p *AppPlayer) handleMprisCommand(cmd mpris.MediaPlayer2PlayerCommand) error {
	var req ApiRequest
	switch cmd.Type {
	case mpris.MediaPlayer2PlayerCommandTypePlay:
		if p.app.player.Status().Playing() {
			return nil
		}

		req = ApiRequest{Type: ApiRequestTypePlay, Data: ApiRequestDataPlay{}}
	case mpris.MediaPlayer2PlayerCommandTypePlayPause:
		if p.app.player.Status().Playing() {
			req = ApiRequest{Type: ApiRequestTypeStop}
		} else {
			req = ApiRequest{Type: ApiRequestTypePlay, Data: ApiRequestDataPlay{}}
		}
	case mpris.MediaPlayer2PlayerCommandTypePause, mpris.MediaPlayer2PlayerCommandTypeStop:
		req = ApiRequest{Type: ApiRequestTypeStop}
	case mpris.MediaPlayer2PlayerCommandTypeNext:
		req = ApiRequest{Type: ApiRequestTypeNext}
	case mpris.MediaPlayer2PlayerCommandTypePrevious:
		req = ApiRequest{Type: ApiRequestTypePrev}
	case mpris.MediaPlayer2PlayerCommandShuffleChanged:
		shuffle, ok := cmd.Argument.(bool)
		if !ok {
			return fmt.Errorf("invalid shuffle value: %v", cmd.Argument)
		}

		req = ApiRequest{Type: ApiRequestTypeShuffle, Data: shuffle}
	default:
		return fmt.Errorf("unsupported mpris command: %d", cmd.Type)
	}

	_, err := p.handleApiRequest(req)
	return err
}

func (p *AppPlayer) Run(ctx context.Context, apiRecv <-chan ApiRequest) {
	playerRecv := p.app.player.Receive()
	mprisRecv := p.app.mpris.Receive()

	positionTicker := time.NewTicker(positionInterval)
	defer positionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-apiRecv:
			data, err := p.handleApiRequest(req)
			req.Reply(data, err)
			p.emitMprisState()
		case cmd := <-mprisRecv:
			var resp mpris.MediaPlayer2PlayerCommandResponse
			if err := p.handleMprisCommand(cmd); err != nil {
				resp.Err = dbus.MakeFailedError(err)
			}

			// the bus call holds the property lock until it gets a reply
			cmd.Reply(resp)
			p.emitMprisState()
		case ev, ok := <-playerRecv:
			if !ok {
				return
			}

			p.handlePlayerEvent(&ev)
			p.emitMprisState()
		case <-positionTicker.C:
			p.updatePosition()
			p.emitMprisState()
		}
	}
}
