package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const timeout = 10 * time.Second

type ApiServer struct {
	allowOrigin string
	certFile    string
	keyFile     string

	close    atomic.Bool
	listener net.Listener

	requests chan ApiRequest

	clients     []*websocket.Conn
	clientsLock sync.RWMutex
}

var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

type ApiRequestType string

const (
	ApiRequestTypeStatus  ApiRequestType = "status"
	ApiRequestTypeTracks  ApiRequestType = "tracks"
	ApiRequestTypeReload  ApiRequestType = "reload"
	ApiRequestTypePlay    ApiRequestType = "play"
	ApiRequestTypeNext    ApiRequestType = "next"
	ApiRequestTypePrev    ApiRequestType = "prev"
	ApiRequestTypeStop    ApiRequestType = "stop"
	ApiRequestTypeShuffle ApiRequestType = "shuffle"
)

type ApiEventType string

const (
	ApiEventTypePlaying    ApiEventType = "playing"
	ApiEventTypeNotPlaying ApiEventType = "not_playing"
	ApiEventTypeStopped    ApiEventType = "stopped"
	ApiEventTypeError      ApiEventType = "error"
	ApiEventTypeSelected   ApiEventType = "selected"
	ApiEventTypeShuffle    ApiEventType = "shuffle"
)

type ApiRequest struct {
	Type ApiRequestType
	Data any

	resp chan apiResponse
}

func (r *ApiRequest) Reply(data any, err error) {
	r.resp <- apiResponse{data, err}
}

type ApiRequestDataPlay struct {
	// Name is a file in the music directory, empty plays the selected one.
	Name string `json:"name"`
}

type apiResponse struct {
	data any
	err  error
}

type ApiResponseStatusTrack struct {
	File       string `json:"file"`
	Name       string `json:"name"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	Position   int64  `json:"position"`
	Duration   int64  `json:"duration"`
	Loop       bool   `json:"loop"`
	Underruns  int64  `json:"underruns"`
}

type ApiResponseStatus struct {
	Stopped  bool                    `json:"stopped"`
	State    string                  `json:"state"`
	Selected string                  `json:"selected"`
	Shuffle  bool                    `json:"shuffle"`
	Autoplay bool                    `json:"autoplay"`
	Track    *ApiResponseStatusTrack `json:"track"`
}

type ApiResponseTracks struct {
	Tracks   []string `json:"tracks"`
	Selected int      `json:"selected"`
}

type ApiEvent struct {
	Type ApiEventType `json:"type"`
	Data any          `json:"data"`
}

type ApiEventDataPlaying struct {
	File     string `json:"file"`
	Duration int64  `json:"duration"`
}

type ApiEventDataNotPlaying struct {
	File string `json:"file"`
}

type ApiEventDataStopped struct {
	File string `json:"file"`
}

type ApiEventDataError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type ApiEventDataSelected struct {
	File  string `json:"file"`
	Index int    `json:"index"`
}

type ApiEventDataShuffle struct {
	Value bool `json:"value"`
}

func NewApiServer(address string, port int, allowOrigin string, certFile string, keyFile string) (_ *ApiServer, err error) {
	s := &ApiServer{allowOrigin: allowOrigin, certFile: certFile, keyFile: keyFile}
	s.requests = make(chan ApiRequest)

	s.listener, err = net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("failed starting api listener: %w", err)
	}

	log.Infof("api server listening on %s", s.listener.Addr())

	go s.serve()
	return s, nil
}

func NewStubApiServer() (*ApiServer, error) {
	s := &ApiServer{}
	s.requests = make(chan ApiRequest)
	return s, nil
}

func (s *ApiServer) handleRequest(req ApiRequest, w http.ResponseWriter) {
	req.resp = make(chan apiResponse, 1)
	s.requests <- req
	resp := <-req.resp

	if resp.err != nil {
		switch {
		case errors.Is(resp.err, ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			return
		case errors.Is(resp.err, ErrMethodNotAllowed):
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		case errors.Is(resp.err, ErrBadRequest):
			w.WriteHeader(http.StatusBadRequest)
			return
		default:
			log.WithError(resp.err).Errorf("failed handling request %s", req.Type)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	if resp.data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp.data)
}

func (s *ApiServer) postOnly(typ ApiRequestType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: typ}, w)
	}
}

func (s *ApiServer) handler() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	})
	m.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypeStatus}, w)
	})
	m.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" {
			s.handleRequest(ApiRequest{Type: ApiRequestTypeTracks}, w)
		} else if r.Method == "POST" {
			// rescan the music directory
			s.handleRequest(ApiRequest{Type: ApiRequestTypeReload}, w)
		} else {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	m.HandleFunc("/player/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var data ApiRequestDataPlay
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if strings.ContainsAny(data.Name, "/\\") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypePlay, Data: data}, w)
	})
	m.HandleFunc("/player/next", s.postOnly(ApiRequestTypeNext))
	m.HandleFunc("/player/prev", s.postOnly(ApiRequestTypePrev))
	m.HandleFunc("/player/stop", s.postOnly(ApiRequestTypeStop))
	m.HandleFunc("/player/shuffle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var data struct {
			Shuffle bool `json:"shuffle"`
		}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypeShuffle, Data: data.Shuffle}, w)
	})
	m.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{}
		if len(s.allowOrigin) > 0 {
			allow := s.allowOrigin
			allow = strings.TrimPrefix(allow, "http://")
			allow = strings.TrimPrefix(allow, "https://")
			allow = strings.TrimSuffix(allow, "/")
			opts.OriginPatterns = []string{allow}
		}

		c, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.WithError(err).Error("failed accepting websocket connection")
			return
		}

		// add the client to the list
		s.clientsLock.Lock()
		s.clients = append(s.clients, c)
		s.clientsLock.Unlock()

		log.Debugf("new websocket client")

		for {
			_, _, err := c.Read(context.Background())
			if s.close.Load() {
				return
			} else if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					log.Debugf("websocket client disconnected")
				} else {
					log.WithError(err).Error("websocket connection errored")
				}

				// remove the client from the list
				s.clientsLock.Lock()
				for i, cc := range s.clients {
					if cc == c {
						s.clients = append(s.clients[:i], s.clients[i+1:]...)
						break
					}
				}
				s.clientsLock.Unlock()
				return
			}
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:      []string{s.allowOrigin},
		AllowPrivateNetwork: true,
		AllowCredentials:    true,
	})

	return c.Handler(m)
}

func (s *ApiServer) serve() {
	var err error
	if len(s.certFile) > 0 && len(s.keyFile) > 0 {
		err = http.ServeTLS(s.listener, s.handler(), s.certFile, s.keyFile)
	} else {
		err = http.Serve(s.listener, s.handler())
	}

	if s.close.Load() {
		return
	} else if err != nil {
		log.WithError(err).Fatal("failed serving api")
	}
}

func (s *ApiServer) Emit(ev *ApiEvent) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	log.Tracef("emitting websocket event: %s", ev.Type)

	for _, client := range s.clients {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := wsjson.Write(ctx, client, ev)
		cancel()
		if err != nil {
			// purposely do not propagate this to the caller
			log.WithError(err).Error("failed communicating with websocket client")
		}
	}
}

func (s *ApiServer) Receive() <-chan ApiRequest {
	return s.requests
}

func (s *ApiServer) Close() {
	s.close.Store(true)

	// close all websocket clients
	s.clientsLock.RLock()
	for _, client := range s.clients {
		_ = client.Close(websocket.StatusGoingAway, "")
	}
	s.clientsLock.RUnlock()

	// the stub server has no listener
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
