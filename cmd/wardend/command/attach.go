package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wardenterm/warden"
	uio "github.com/wardenterm/warden/io"
)

var (
	flagAttachAddr    string
	flagAttachToken   string
	flagAttachSession string
)

// attachCmd is a debugging client: it spawns (or joins) a session over
// the bridge and wires it to the local terminal, exactly as the GUI
// shell would.
func attachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the local terminal to a bridge session",
		RunE:  attachRunE,
	}

	cmd.Flags().StringVar(&flagAttachAddr, "addr", "127.0.0.1:8329", "bridge address")
	cmd.Flags().StringVar(&flagAttachToken, "token", os.Getenv(warden.BridgeTokenEnvVar), "bridge token")
	cmd.Flags().StringVar(&flagAttachSession, "session", "", "existing session id (spawns a new one when empty)")

	return cmd
}

type bridgeClient struct {
	addr  string
	token string
	http  *http.Client
}

func (b *bridgeClient) post(path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, "http://"+b.addr+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")
	return b.http.Do(req)
}

func (b *bridgeClient) spawn() (string, error) {
	resp, err := b.post("/sessions", struct{}{})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("bridge returned no session id")
	}
	return out.SessionID, nil
}

func (b *bridgeClient) write(sessionID string, data []byte) error {
	resp, err := b.post("/sessions/"+sessionID+"/write", map[string]string{"data": string(data)})
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("write rejected: %s", resp.Status)
	}
	return nil
}

func (b *bridgeClient) resize(sessionID string, cols, rows int) error {
	resp, err := b.post("/sessions/"+sessionID+"/resize", map[string]int{"cols": cols, "rows": rows})
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func attachRunE(c *cobra.Command, args []string) error {
	client := &bridgeClient{addr: flagAttachAddr, token: flagAttachToken, http: http.DefaultClient}

	sessionID := flagAttachSession
	if sessionID == "" {
		var err error
		if sessionID, err = client.spawn(); err != nil {
			return err
		}
	}

	wsURL := url.URL{
		Scheme:   "ws",
		Host:     flagAttachAddr,
		Path:     "/events",
		RawQuery: url.Values{"token": {flagAttachToken}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("unable to dial bridge: %w", err)
	}
	defer conn.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("unable to set terminal to raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

		if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			_ = client.resize(sessionID, w, h)
		}
	}

	var g run.Group
	{
		// output: bridge events -> stdout
		g.Add(func() error {
			for {
				var frame warden.EventFrame
				if err := conn.ReadJSON(&frame); err != nil {
					return err
				}
				if frame.Event != warden.EventTerminalOutput {
					continue
				}
				var out struct {
					SessionID string `json:"session_id"`
					Data      string `json:"data"`
				}
				if err := json.Unmarshal(frame.Payload, &out); err != nil {
					continue
				}
				if out.SessionID == sessionID {
					_, _ = os.Stdout.WriteString(out.Data)
				}
			}
		}, func(err error) {
			_ = conn.Close()
		})
	}
	{
		// input: stdin -> bridge write
		ctx, cancel := context.WithCancel(c.Context())
		g.Add(func() error {
			buf := make([]byte, 1024)
			r := uio.NewContextReader(ctx, os.Stdin)
			for {
				n, err := r.Read(buf)
				if n > 0 {
					if werr := client.write(sessionID, buf[:n]); werr != nil {
						return werr
					}
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
			}
		}, func(err error) {
			cancel()
		})
	}

	return g.Run()
}
