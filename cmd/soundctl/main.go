// soundctl - command line client for a soundnode
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/teslashibe/go-soundnode/internal/httpc"
	"github.com/teslashibe/go-soundnode/pkg/push"
)

const usage = `usage: soundctl [flags] <command> [args]

commands:
  ping                  check the node is up
  status                print the node status
  play <file>           play a file from the media directory
  random [dir]          play a random .wav from dir
  tone [hz] [ms]        play a test tone
  url <url>             play from an http, ws or rtp url
  stop                  stop playback
  volume <0..1>         set the volume
  upload <file>         stream a local file with the upload protocol
  direct <file>         stream a local file as a direct request body
  push <file>           push a local file over the raw TCP listener
  ws <file>             stream a local file over the websocket endpoint
  watch                 print status events until interrupted

flags:
`

func main() {
	godotenv.Load()

	addr := flag.String("addr", envOr("SOUNDNODE_ADDR", "http://localhost:8080"), "Node HTTP address")
	pushAddr := flag.String("push", envOr("SOUNDNODE_PUSH_ADDR", "localhost:8081"), "Node push listener address")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{base: strings.TrimRight(*addr, "/"), push: *pushAddr}
	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "soundctl: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type client struct {
	base string
	push string
}

func (c *client) run(ctx context.Context, cmd string, args []string) error {
	arg := func(i int, def string) string {
		if i < len(args) {
			return args[i]
		}
		return def
	}

	switch cmd {
	case "ping":
		return c.call(ctx, http.MethodGet, "/ping", nil, nil)
	case "status":
		return c.call(ctx, http.MethodGet, "/api/status", nil, nil)
	case "play":
		if len(args) < 1 {
			return fmt.Errorf("play needs a file")
		}
		return c.call(ctx, http.MethodPost, "/api/play", url.Values{"file": {args[0]}}, nil)
	case "random":
		q := url.Values{}
		if len(args) > 0 {
			q.Set("dir", args[0])
		}
		return c.call(ctx, http.MethodPost, "/api/play/random", q, nil)
	case "tone":
		q := url.Values{"freq": {arg(0, "440")}, "ms": {arg(1, "1000")}}
		return c.call(ctx, http.MethodPost, "/api/play/tone", q, nil)
	case "url":
		if len(args) < 1 {
			return fmt.Errorf("url needs a url")
		}
		body, _ := json.Marshal(map[string]string{"url": args[0]})
		return c.call(ctx, http.MethodPost, "/api/play/url", nil, bytes.NewReader(body))
	case "stop":
		return c.call(ctx, http.MethodPost, "/api/stop", nil, nil)
	case "volume":
		if len(args) < 1 {
			return fmt.Errorf("volume needs a value")
		}
		return c.call(ctx, http.MethodPost, "/api/volume", url.Values{"v": {args[0]}}, nil)
	case "upload", "direct":
		if len(args) < 1 {
			return fmt.Errorf("%s needs a file", cmd)
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		path := "/api/stream/upload"
		if cmd == "direct" {
			path = "/api/stream/direct"
		}
		return c.stream(ctx, path, f)
	case "push":
		if len(args) < 1 {
			return fmt.Errorf("push needs a file")
		}
		return c.pushFile(ctx, args[0])
	case "ws":
		if len(args) < 1 {
			return fmt.Errorf("ws needs a file")
		}
		return c.wsUpload(ctx, args[0])
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// call issues a short request and prints the response body.
func (c *client) call(ctx context.Context, method, path string, q url.Values, body io.Reader) error {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return printResponse(httpc.Client.Do(req))
}

// stream sends f as a request body and waits for playback to end.
func (c *client) stream(ctx context.Context, path string, f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "audio/wav")
	return printResponse(httpc.Stream.Do(req))
}

func printResponse(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Println(strings.TrimSpace(string(body)))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s", resp.Status)
	}
	return nil
}

func (c *client) pushFile(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := push.Send(ctx, c.push, f, info.Size()); err != nil {
		return err
	}
	fmt.Println(push.ReplyOK)
	return nil
}

func (c *client) wsURL(path string) string {
	u := strings.Replace(c.base, "http", "ws", 1)
	return u + path
}

// wsUpload streams a file as binary frames followed by "end".
func (c *client) wsUpload(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL("/ws/stream"), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("end")); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(time.Minute))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	fmt.Println(string(reply))
	if string(reply) != "OK" {
		return fmt.Errorf("node refused upload")
	}
	return nil
}

// watch prints status events until ctx ends.
func (c *client) watch(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL("/ws/status"), nil)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Println(string(data))
	}
}
