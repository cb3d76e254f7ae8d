// Command mpack-rpc-server is a minimal MessagePack-RPC demo server (§4.8):
// one goroutine per connection, each owning its own rpc.Session,
// mpack.Parser/Unparser pair, and streambuf.Buffer. It exposes one method,
// "echo", and exists to exercise the ambient stack (logrus, prometheus,
// pflag/viper, xid) around lib/rpc rather than to demonstrate anything new
// about the codec itself.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thebagchi/mpack-go/internal/mvalue"
	"github.com/thebagchi/mpack-go/internal/streambuf"
	"github.com/thebagchi/mpack-go/lib/mpack"
	"github.com/thebagchi/mpack-go/lib/rpc"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpack_rpc_server_requests_total",
		Help: "RPC requests handled, by method and outcome.",
	}, []string{"method", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpack_rpc_server_request_duration_seconds",
		Help:    "Time from request header to reply written.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func main() {
	flag.String("listen", ":9000", "RPC listen address")
	flag.String("metrics-addr", ":9100", "Prometheus /metrics listen address")
	flag.String("log-level", "info", "logrus level (debug, info, warn, error)")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Println("Error: ", err)
		return
	}

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		fmt.Println("Error: ", err)
		return
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logrus.WithField("addr", viper.GetString("metrics-addr")).Info("serving metrics")
		if err := http.ListenAndServe(viper.GetString("metrics-addr"), nil); err != nil {
			logrus.WithError(err).Fatal("metrics server failed")
		}
	}()

	addr := viper.GetString("listen")
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logrus.WithError(err).Fatalf("listen on %s failed", addr)
	}
	logrus.WithField("addr", addr).Info("mpack-rpc-server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			logrus.WithError(err).Error("accept failed")
			continue
		}
		go serveConn(conn)
	}
}

// phase tracks what the connection-level loop expects to decode next. A
// header is 2-3 tokens handled entirely by rpc.Session; method and args are
// separate top-level values the session does not read, per §4.5.
type phase int

const (
	phaseHeader phase = iota
	phaseMethod
	phaseArgs
)

func serveConn(conn net.Conn) {
	connID := xid.New()
	log := logrus.WithFields(logrus.Fields{"conn": connID.String(), "remote": conn.RemoteAddr().String()})
	log.Info("connection accepted")
	defer func() {
		conn.Close()
		log.Info("connection closed")
	}()

	session := rpc.NewSession(64, uint32(time.Now().UnixNano()))
	parser := mpack.NewParser(32)
	unparser := mpack.NewUnparser(32)
	buf := streambuf.New()
	readTmp := make([]byte, 4096)

	var (
		cur     phase
		msg     rpc.Message
		method  string
		started time.Time
	)

	for {
		if buf.Len() == 0 {
			n, err := conn.Read(readTmp)
			if err != nil {
				if err != io.EOF {
					log.WithError(err).Warn("read failed")
				}
				return
			}
			buf.Append(readTmp[:n])
		}

		var needMore bool
		switch cur {
		case phaseHeader:
			consumed, m, status, err := session.Receive(buf.Unread())
			buf.Advance(consumed)
			switch status {
			case mpack.Eof:
				needMore = true
			case mpack.Error:
				log.WithError(err).Error("malformed rpc header")
				return
			case mpack.Request, mpack.Notification:
				msg = m
				started = time.Now()
				cur = phaseMethod
			default:
				log.WithField("status", status).Warn("unexpected header status, resyncing")
				session.ResetReceive()
			}

		case phaseMethod:
			value, consumed, status, err := mvalue.Decode(parser, buf.Unread())
			buf.Advance(consumed)
			switch status {
			case mpack.Eof:
				needMore = true
			case mpack.Ok:
				s, ok := value.(string)
				if !ok {
					log.Error("method token was not a string")
					return
				}
				method = s
				cur = phaseArgs
			default:
				log.WithError(err).Error("malformed method token")
				return
			}

		case phaseArgs:
			value, consumed, status, err := mvalue.Decode(parser, buf.Unread())
			buf.Advance(consumed)
			switch status {
			case mpack.Eof:
				needMore = true
			case mpack.Ok:
				args, _ := value.([]any)
				handleCall(conn, log, session, unparser, msg, method, args, started)
				cur = phaseHeader
			default:
				log.WithError(err).Error("malformed args token")
				return
			}
		}

		if needMore {
			n, err := conn.Read(readTmp)
			if err != nil {
				if err != io.EOF {
					log.WithError(err).Warn("read failed")
				}
				return
			}
			buf.Append(readTmp[:n])
		}
	}
}

func handleCall(conn net.Conn, log *logrus.Entry, session *rpc.Session, unparser *mpack.Unparser, msg rpc.Message, method string, args []any, started time.Time) {
	result, callErr := dispatch(method, args)
	outcome := "ok"
	if callErr != nil {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(method, outcome).Inc()

	if msg.Type == rpc.TypeNotification {
		log.WithField("method", method).Debug("notification handled, no reply")
		return
	}

	requestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())

	if err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		return session.Reply(b, msg.ID)
	}); err != nil {
		log.WithError(err).Error("failed writing reply header")
		return
	}
	if err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		return mvalue.Encode(unparser, callErr, b)
	}); err != nil {
		log.WithError(err).Error("failed writing reply error")
		return
	}
	if err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		return mvalue.Encode(unparser, result, b)
	}); err != nil {
		log.WithError(err).Error("failed writing reply result")
		return
	}
	log.WithFields(logrus.Fields{"method": method, "id": msg.ID}).Info("request served")
}

func dispatch(method string, args []any) (result any, callErr any) {
	switch method {
	case "echo":
		if len(args) != 1 {
			return nil, "echo requires exactly one argument"
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, "echo argument must be a string"
		}
		return strings.ToUpper(s), nil
	default:
		return nil, fmt.Sprintf("unknown method %q", method)
	}
}

// drainWrite repeatedly calls write into a scratch buffer and flushes it to
// conn, exactly the way the mpack/rpc tests drive Write/Unparse against a
// bounded buffer, until the token or message completes.
func drainWrite(conn net.Conn, write func(b []byte) (int, mpack.Status, error)) error {
	buf := make([]byte, 4096)
	for {
		n, status, err := write(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		switch status {
		case mpack.Ok:
			return nil
		case mpack.Eof:
			continue
		default:
			if err == nil {
				err = fmt.Errorf("write failed with status %v", status)
			}
			return err
		}
	}
}
