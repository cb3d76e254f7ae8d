// Command mpack-rpc-client is the counterpart demo to cmd/mpack-rpc-server:
// it dials the server, issues one "echo" request, prints the result, and
// exits. Like the server it exists to exercise the ambient stack around
// lib/rpc, not to add codec behavior.
package main

import (
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thebagchi/mpack-go/internal/mvalue"
	"github.com/thebagchi/mpack-go/internal/streambuf"
	"github.com/thebagchi/mpack-go/lib/mpack"
	"github.com/thebagchi/mpack-go/lib/rpc"
)

func main() {
	flag.String("server", "127.0.0.1:9000", "RPC server address")
	flag.String("message", "hello from mpack-rpc-client", "argument to pass to the echo method")
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

	correlationID := xid.New()
	log := logrus.WithField("correlation_id", correlationID.String())

	addr := viper.GetString("server")
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.WithError(err).Fatalf("dial %s failed", addr)
	}
	defer conn.Close()
	log.WithField("addr", addr).Info("connected")

	session := rpc.NewSession(4, uint32(time.Now().UnixNano()))
	parser := mpack.NewParser(32)
	unparser := mpack.NewUnparser(32)

	message := viper.GetString("message")
	id, err := sendEchoRequest(conn, session, unparser, message)
	if err != nil {
		log.WithError(err).Fatal("failed to send request")
	}
	log.WithFields(logrus.Fields{"id": id, "method": "echo", "args": message}).Info("request sent")

	result, callErr, err := readReply(conn, session, parser, id)
	if err != nil {
		log.WithError(err).Fatal("failed to read reply")
	}
	if callErr != nil {
		log.WithField("error", callErr).Error("server returned an error")
		return
	}
	log.WithField("result", result).Info("reply received")
	fmt.Println(result)
}

func sendEchoRequest(conn net.Conn, session *rpc.Session, unparser *mpack.Unparser, message string) (uint32, error) {
	var id uint32
	err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		n, reqID, status, err := session.Request(b, nil)
		id = reqID
		return n, status, err
	})
	if err != nil {
		return 0, err
	}
	if err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		return mvalue.Encode(unparser, "echo", b)
	}); err != nil {
		return 0, err
	}
	args := []any{message}
	if err := drainWrite(conn, func(b []byte) (int, mpack.Status, error) {
		return mvalue.Encode(unparser, args, b)
	}); err != nil {
		return 0, err
	}
	return id, nil
}

func readReply(conn net.Conn, session *rpc.Session, parser *mpack.Parser, expectID uint32) (result any, callErr any, err error) {
	buf := streambuf.New()
	readTmp := make([]byte, 4096)

	readMore := func() error {
		n, rerr := conn.Read(readTmp)
		if rerr != nil {
			return rerr
		}
		buf.Append(readTmp[:n])
		return nil
	}

	for buf.Len() == 0 {
		if err := readMore(); err != nil {
			return nil, nil, err
		}
	}

	for {
		consumed, m, status, rerr := session.Receive(buf.Unread())
		buf.Advance(consumed)
		if status == mpack.Eof {
			if err := readMore(); err != nil {
				return nil, nil, err
			}
			continue
		}
		if status != mpack.Response {
			return nil, nil, fmt.Errorf("unexpected header status %v: %v", status, rerr)
		}
		if m.ID != expectID {
			return nil, nil, fmt.Errorf("reply id %d does not match request id %d", m.ID, expectID)
		}
		break
	}

	decode := func() (any, error) {
		for {
			value, consumed, status, derr := mvalue.Decode(parser, buf.Unread())
			buf.Advance(consumed)
			if status == mpack.Eof {
				if err := readMore(); err != nil {
					return nil, err
				}
				continue
			}
			if status != mpack.Ok {
				return nil, derr
			}
			return value, nil
		}
	}

	callErr, err = decode()
	if err != nil {
		return nil, nil, err
	}
	result, err = decode()
	if err != nil {
		return nil, nil, err
	}
	return result, callErr, nil
}

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

