package control

import (
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// Server accepts control-plane TCP connections and runs one Handler
// goroutine per client.
type Server struct {
	listener net.Listener
	deps     Deps
	done     chan struct{}
}

// NewServer binds the control-plane TCP port and starts accepting. A bind
// failure is fatal: the error is returned and nothing runs.
func NewServer(port int, deps Deps) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind control plane on port %d: %w", port, err)
	}

	s := &Server{
		listener: listener,
		deps:     deps,
		done:     make(chan struct{}),
	}

	go s.acceptLoop()

	logrus.WithFields(logrus.Fields{
		"function": "NewServer",
		"addr":     listener.Addr().String(),
	}).Info("Control plane listening")

	return s, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections. Live handlers keep running until
// their own connections end.
func (s *Server) Close() error {
	err := s.listener.Close()
	<-s.done
	return err
}

func (s *Server) acceptLoop() {
	defer close(s.done)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "acceptLoop",
				}).Info("Control plane stopped")
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptLoop",
				"error":    err,
			}).Error("Accept failed")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "acceptLoop",
			"remote":   conn.RemoteAddr().String(),
		}).Info("Connection accepted")

		go newHandler(conn, s.deps).run()
	}
}
