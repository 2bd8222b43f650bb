package sink

import (
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"armcam/video/source"
)

const boundaryWord = "MJPEGBOUNDARY"
const headerf = "\r\n" +
	"--" + boundaryWord + "\r\n" +
	"Content-Type: image/jpeg\r\n" +
	"Content-Length: %d\r\n" +
	"X-Timestamp: %d.%06d\r\n" +
	"\r\n"

// MJPEGServer serves named MJPEG streams at ?name=<stream>.
type MJPEGServer struct {
	m    map[string]*MJPEGStream
	lock sync.Mutex
}

func NewMJPEGServer() *MJPEGServer {
	return &MJPEGServer{
		m: make(map[string]*MJPEGStream),
	}
}

// NewStream registers a stream. Names must be unique.
func (s *MJPEGServer) NewStream(name string) (*MJPEGStream, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.m[name]; ok {
		return nil, fmt.Errorf("a stream named %q already exists", name)
	}
	ms := &MJPEGStream{
		name:      name,
		listeners: make(map[chan []byte]bool),
		parent:    s,
	}
	s.m[name] = ms
	return ms, nil
}

func (s *MJPEGServer) getStream(name string) *MJPEGStream {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.m[name]
}

// ServeHTTP implements http.Handler interface, serving MJPEG.
func (s *MJPEGServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := r.Form.Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	stream := s.getStream(name)
	if stream == nil {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	clog := log.WithField("addr", r.RemoteAddr)
	clog.Infof("MJPEG stream connected to %v", name)
	defer clog.Infof("MJPEG stream disconnected from %v", name)

	w.Header().Add("Content-Type", "multipart/x-mixed-replace;boundary="+boundaryWord)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	c := stream.listen()
	defer stream.unlisten(c)

	for {
		select {
		case <-r.Context().Done():
			return
		case b, ok := <-c:
			if !ok {
				return
			}
			if _, err := w.Write(b); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// MJPEGStream is a Sink that JPEG-encodes frames for every connected client.
type MJPEGStream struct {
	name      string
	listeners map[chan []byte]bool
	closed    bool

	parent *MJPEGServer
	lock   sync.Mutex
}

func (s *MJPEGStream) listen() chan []byte {
	c := make(chan []byte, 1)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		close(c)
		return c
	}
	s.listeners[c] = true
	return c
}

func (s *MJPEGStream) unlisten(c chan []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.listeners, c)
}

// Listeners returns the number of connected clients.
func (s *MJPEGStream) Listeners() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.listeners)
}

func (s *MJPEGStream) Put(input source.Image) {
	if s.Listeners() == 0 || input.Mat.Empty() {
		// Nobody is listening; don't bother encoding.
		return
	}

	jpeg, err := gocv.IMEncode(".jpg", input.Mat)
	if err != nil {
		log.Errorf("Error encoding to JPG for MJPEG stream %v: %v", s.name, err)
		return
	}
	defer jpeg.Close()

	ts := input.Time
	header := fmt.Sprintf(headerf, jpeg.Len(), ts.Unix(), ts.Nanosecond()/1000)
	// Fresh buffer per Put; clients may still be writing the previous one.
	frame := make([]byte, 0, len(header)+jpeg.Len())
	frame = append(frame, header...)
	frame = append(frame, jpeg.GetBytes()...)

	s.lock.Lock()
	defer s.lock.Unlock()
	for c := range s.listeners {
		select {
		case c <- frame:
		default:
			// Skip listeners not ready for next frame.
		}
	}
}

// Close disconnects all clients and unregisters the stream.
func (s *MJPEGStream) Close() {
	s.parent.lock.Lock()
	delete(s.parent.m, s.name)
	s.parent.lock.Unlock()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for c := range s.listeners {
		close(c)
	}
	s.listeners = make(map[chan []byte]bool)
}
